package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/utafrali/urlrewrite/internal/domain"
	pkgkafka "github.com/utafrali/urlrewrite/pkg/kafka"
)

// Aggregate type constant.
const AggregateTypeRun = "urlrewrite"

// TopicRegenerated is the Kafka topic of the regeneration events.
var TopicRegenerated = pkgkafka.Topic(AggregateTypeRun, "regenerated")

// Source identifier for events originating from the regeneration tool.
const SourceURLRewrite = "urlrewrite-cli"

// StoreStats is the per-store part of a regenerated event.
type StoreStats struct {
	StoreID       int64  `json:"store_id"`
	StoreCode     string `json:"store_code"`
	Categories    int    `json:"categories"`
	Products      int    `json:"products"`
	RewritesSaved int    `json:"rewrites_saved"`
	Collisions    int    `json:"collisions"`
	Failed        int    `json:"failed"`
}

// RegeneratedData is the payload for a urlrewrite.regenerated event.
// Consumers rebuild whatever they index from url rewrites for the listed
// stores.
type RegeneratedData struct {
	RunID      string       `json:"run_id"`
	StoreIDs   []int64      `json:"store_ids"`
	Stores     []StoreStats `json:"stores"`
	Purged     int64        `json:"purged,omitempty"`
	StartedAt  string       `json:"started_at"`
	FinishedAt string       `json:"finished_at"`
}

type publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes regeneration events to Kafka. It is the reindex hook of
// a run.
type Producer struct {
	kafka  publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return newProducer(kafka, logger)
}

func newProducer(kafka publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// Reindex publishes a urlrewrite.regenerated event for report.
func (p *Producer) Reindex(ctx context.Context, report *domain.RunReport) error {
	data := RegeneratedData{
		RunID:      report.RunID,
		StoreIDs:   report.StoreIDs(),
		Stores:     make([]StoreStats, 0, len(report.Stores)),
		Purged:     report.Purged,
		StartedAt:  report.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt: report.FinishedAt.UTC().Format(time.RFC3339),
	}
	for _, s := range report.Stores {
		data.Stores = append(data.Stores, StoreStats{
			StoreID:       s.Store.ID,
			StoreCode:     s.Store.Code,
			Categories:    s.Stats.Categories,
			Products:      s.Stats.Products,
			RewritesSaved: s.Stats.RewritesSaved,
			Collisions:    s.Stats.Collisions,
			Failed:        s.Stats.Failed,
		})
	}

	event, err := pkgkafka.NewEvent(TopicRegenerated, report.RunID, AggregateTypeRun, SourceURLRewrite, data)
	if err != nil {
		return fmt.Errorf("create urlrewrite.regenerated event: %w", err)
	}
	totals := report.Totals()
	event.WithCorrelationID(report.RunID).
		WithMetadata("diagnostics", strconv.Itoa(totals.Diagnostics.Len()+report.Diagnostics.Len()))

	if err := p.kafka.Publish(ctx, TopicRegenerated, event); err != nil {
		return fmt.Errorf("publish urlrewrite.regenerated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published urlrewrite.regenerated event",
		slog.String("run_id", report.RunID),
		slog.Int("stores", len(data.Stores)),
	)
	return nil
}

// NoopReindexer is used when no broker is configured.
type NoopReindexer struct {
	Logger *slog.Logger
}

func (n NoopReindexer) Reindex(ctx context.Context, report *domain.RunReport) error {
	if n.Logger != nil {
		n.Logger.InfoContext(ctx, "no kafka brokers configured, skipping reindex event",
			slog.String("run_id", report.RunID))
	}
	return nil
}
