package domain

import (
	"fmt"
	"time"
)

// FailedRewrite is a rewrite that could not be stored even on its own.
type FailedRewrite struct {
	Rewrite URLRewrite
	Err     error
}

func (f FailedRewrite) String() string {
	return fmt.Sprintf("%s %d: request path %q (store %d) could not be saved: %v",
		f.Rewrite.EntityType, f.Rewrite.EntityID, f.Rewrite.RequestPath, f.Rewrite.StoreID, f.Err)
}

// SkippedRewrite is a candidate dropped before persistence.
type SkippedRewrite struct {
	Rewrite URLRewrite
	Reason  string
}

// SaveResult summarizes one Save call.
type SaveResult struct {
	Saved      int
	Retired    int
	Deleted    int
	Renamed    int
	Skipped    []SkippedRewrite
	Failed     []FailedRewrite
	RetriedRow bool
}

// ReconcileResult summarizes one association reconciliation.
type ReconcileResult struct {
	Pruned   int
	Inserted int
	Failed   []string
}

// Diagnostics collects messages about entities that could not be fully
// regenerated. They are reported after the run instead of aborting it.
type Diagnostics struct {
	messages []string
}

// Addf records one formatted message.
func (d *Diagnostics) Addf(format string, args ...any) {
	d.messages = append(d.messages, fmt.Sprintf(format, args...))
}

// Merge appends the messages of other.
func (d *Diagnostics) Merge(other *Diagnostics) {
	if other == nil {
		return
	}
	d.messages = append(d.messages, other.messages...)
}

// Messages returns the recorded messages in order.
func (d *Diagnostics) Messages() []string {
	return d.messages
}

// Len returns the number of recorded messages.
func (d *Diagnostics) Len() int {
	return len(d.messages)
}

// RunStats counts the work done by one driver pass.
type RunStats struct {
	Categories      int
	Products        int
	RewritesSaved   int
	RewritesRetired int
	Collisions      int
	Failed          int
	Diagnostics     Diagnostics
}

// Add accumulates other into s.
func (s *RunStats) Add(other *RunStats) {
	if other == nil {
		return
	}
	s.Categories += other.Categories
	s.Products += other.Products
	s.RewritesSaved += other.RewritesSaved
	s.RewritesRetired += other.RewritesRetired
	s.Collisions += other.Collisions
	s.Failed += other.Failed
	s.Diagnostics.Merge(&other.Diagnostics)
}

// AddSave accounts for one Save call, turning its failed rows into
// diagnostics.
func (s *RunStats) AddSave(res *SaveResult) {
	if res == nil {
		return
	}
	s.RewritesSaved += res.Saved
	s.RewritesRetired += res.Retired
	s.Collisions += res.Renamed
	for _, f := range res.Failed {
		s.Failed++
		s.Diagnostics.Addf("%s", f.String())
	}
}

// AddReconcile accounts for a reconciliation pass.
func (s *RunStats) AddReconcile(res *ReconcileResult) {
	if res == nil {
		return
	}
	for _, msg := range res.Failed {
		s.Diagnostics.Addf("%s", msg)
	}
}

// StoreReport is the outcome of a run for one store.
type StoreReport struct {
	Store Store
	Stats RunStats
}

// RunReport is the outcome of a whole run.
type RunReport struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Stores      []StoreReport
	Purged      int64
	Diagnostics Diagnostics
}

// Totals sums the per-store stats.
func (r *RunReport) Totals() RunStats {
	var total RunStats
	for i := range r.Stores {
		total.Add(&r.Stores[i].Stats)
	}
	return total
}

// StoreIDs lists the stores covered by the run.
func (r *RunReport) StoreIDs() []int64 {
	ids := make([]int64, 0, len(r.Stores))
	for _, s := range r.Stores {
		ids = append(ids, s.Store.ID)
	}
	return ids
}
