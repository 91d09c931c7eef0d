// Package ledger implements the tamper-evident hash chain at the core of the
// custody audit trail.
//
// Every entry commits to its predecessor: entry i stores the SHA-256 hash of
// entry i-1 as PreviousHash, and its own Hash is a deterministic digest of its
// fields plus that link. The chain has exactly one root — the first entry,
// whose PreviousHash is empty. Any retroactive modification of a stored entry
// is detected by Verify, which replays the full chain and recomputes every
// hash.
//
// Two implementations of the Store interface are provided:
//   - MemoryStore: in-process, the reference implementation.
//   - PostgresStore: durable, for deployments that must survive restarts.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no entry exists for the given id.
var ErrNotFound = errors.New("ledger: entry not found")

// Store is the append-only ordered collection of audit entries.
//
// Append is the single choke point through which every entry enters the
// chain: it assigns the id and timestamp, reads the current chain tail,
// computes the entry hash, and advances the tail — all as one critical
// section that no other append may interleave with.
type Store interface {
	// Append builds a fully populated entry from rec and inserts it.
	// Existing entries are never overwritten or mutated.
	Append(ctx context.Context, rec Record) (*Entry, error)

	// Get returns the entry with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Entry, error)

	// Query returns the entries matching f, ordered by timestamp
	// descending, with f's offset/limit applied after sorting.
	Query(ctx context.Context, f Filter) ([]*Entry, error)

	// All returns every entry ordered by timestamp ascending.
	All(ctx context.Context) ([]*Entry, error)

	// Len returns the total number of entries.
	Len(ctx context.Context) (int, error)

	// Tail returns the hash of the most recently appended entry,
	// or "" when the chain is empty.
	Tail(ctx context.Context) (string, error)

	// Verify replays the full chain in timestamp order and recomputes
	// every hash. It returns nil if the history is intact, or a
	// *VerifyError naming the first offending entry.
	Verify(ctx context.Context) error
}

// Reasons reported by VerifyError.
const (
	ReasonHashMismatch = "hash mismatch"
	ReasonChainBreak   = "chain break"
)

// VerifyError describes the first integrity violation found during a chain
// verification pass.
type VerifyError struct {
	EntryID string
	Reason  string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("ledger: %s at entry %s", e.Reason, e.EntryID)
}

// verifyEntries walks entries in ascending timestamp order, recomputing each
// hash against the running predecessor hash. entries must already be sorted.
// The walk stops at the first violation; everything after a break is suspect
// anyway.
func verifyEntries(entries []*Entry) error {
	prev := ""
	for _, e := range entries {
		if ComputeHash(e) != e.Hash {
			return &VerifyError{EntryID: e.ID, Reason: ReasonHashMismatch}
		}
		if e.PreviousHash != prev {
			return &VerifyError{EntryID: e.ID, Reason: ReasonChainBreak}
		}
		prev = e.Hash
	}
	return nil
}
