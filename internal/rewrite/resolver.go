package rewrite

import (
	"context"
	"errors"
	"fmt"
)

// MaxSuffixAttempts bounds the suffix search for one path.
const MaxSuffixAttempts = 10000

// ErrTooManyCollisions is returned when no free suffix was found within
// MaxSuffixAttempts.
var ErrTooManyCollisions = errors.New("too many request path collisions")

// PathLookup reports whether a stored rewrite in the store already uses
// requestPath for an entity other than (entityType, entityID).
type PathLookup interface {
	PathTaken(ctx context.Context, entityType string, storeID, entityID int64, requestPath string) (bool, error)
}

type claimKey struct {
	storeID int64
	path    string
}

type claimOwner struct {
	entityType string
	entityID   int64
}

// Resolver turns candidate paths into paths no other entity uses, appending
// -1, -2, ... to the file name until one is free. Paths it hands out are
// remembered, so a Resolver should live for one batch of rewrites that is
// stored together.
//
// The check is not atomic with the later insert; callers serialize runs.
type Resolver struct {
	lookup      PathLookup
	maxAttempts int
	claimed     map[claimKey]claimOwner
	renamed     int
}

// NewResolver creates a resolver backed by lookup.
func NewResolver(lookup PathLookup) *Resolver {
	return &Resolver{
		lookup:      lookup,
		maxAttempts: MaxSuffixAttempts,
		claimed:     make(map[claimKey]claimOwner),
	}
}

// Resolve returns the first free variant of p for the entity.
func (r *Resolver) Resolve(ctx context.Context, p Path, entityType string, storeID, entityID int64) (string, error) {
	owner := claimOwner{entityType: entityType, entityID: entityID}

	for index := 0; index <= r.maxAttempts; index++ {
		candidate := p.Format(index, true)
		key := claimKey{storeID: storeID, path: candidate}

		if other, ok := r.claimed[key]; ok {
			if other == owner {
				return candidate, nil
			}
			continue
		}

		taken, err := r.lookup.PathTaken(ctx, entityType, storeID, entityID, candidate)
		if err != nil {
			return "", fmt.Errorf("look up request path %q: %w", candidate, err)
		}
		if taken {
			continue
		}

		r.claimed[key] = owner
		if index > 0 {
			r.renamed++
		}
		return candidate, nil
	}

	return "", fmt.Errorf("%w: %q for %s %d in store %d after %d attempts",
		ErrTooManyCollisions, p.String(), entityType, entityID, storeID, r.maxAttempts)
}

// Renamed returns how many paths were given a suffix so far.
func (r *Resolver) Renamed() int {
	return r.renamed
}
