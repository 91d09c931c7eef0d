package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls. The value is arbitrary but must be consistent
// across all auditd instances sharing a database.
const advisoryLockKey = int64(7_441_220_019)

const entryColumns = `id, ts, event_type, actor, resource_type, resource_id,
	action, details, metadata, hash, prev_hash, compliance_relevant, retention_until`

// PostgresStore persists the audit chain to PostgreSQL. It implements the
// Store interface and serialises appends with a transaction-scoped advisory
// lock so multiple auditd instances can share one chain.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given connection
// pool. The audit_entries table must already exist (see cmd/migrate).
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Append implements Store. It acquires the advisory lock, reads the chain
// tail, computes the new entry hash, and inserts — all within one
// transaction, so the read-tail/write-tail sequence is a single critical
// section even across processes.
func (s *PostgresStore) Append(ctx context.Context, rec Record) (*Entry, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	// Read the current tail; an empty table means this entry is the root.
	var prevTS int64
	var prevHash string
	err = tx.QueryRow(ctx,
		"SELECT ts, hash FROM audit_entries ORDER BY ts DESC LIMIT 1",
	).Scan(&prevTS, &prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read chain tail: %w", err)
	}

	ts := time.Now().UnixNano()
	if ts <= prevTS {
		ts = prevTS + 1
	}

	e := &Entry{
		ID:                 newEntryID(),
		Timestamp:          ts,
		EventType:          rec.EventType,
		Actor:              rec.Actor,
		ResourceType:       rec.ResourceType,
		ResourceID:         rec.ResourceID,
		Action:             rec.Action,
		Details:            rec.Details,
		Metadata:           rec.Metadata,
		PreviousHash:       prevHash,
		ComplianceRelevant: rec.ComplianceRelevant,
	}
	if rec.ComplianceRelevant && rec.Retention > 0 {
		e.RetentionUntil = ts + rec.Retention.Nanoseconds()
	}
	e.Hash = ComputeHash(e)

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_entries (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.Timestamp, e.EventType, e.Actor, e.ResourceType, e.ResourceID,
		e.Action, e.Details, metaJSON, e.Hash, e.PreviousHash,
		e.ComplianceRelevant, e.RetentionUntil,
	); err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit entry: %w", err)
	}

	s.logger.Debug("audit entry appended",
		zap.String("id", e.ID),
		zap.String("event_type", string(e.EventType)),
		zap.String("actor", e.Actor),
	)
	return e, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+entryColumns+" FROM audit_entries WHERE id = $1", id)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry %s: %w", id, err)
	}
	return e, nil
}

// Query implements Store. Filtering and pagination are pushed down to SQL;
// the result ordering (timestamp descending) matches MemoryStore.
func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]*Entry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.EventTypes) > 0 {
		types := make([]string, len(f.EventTypes))
		for i, t := range f.EventTypes {
			types[i] = string(t)
		}
		where = append(where, "event_type = ANY("+arg(types)+")")
	}
	if len(f.ResourceTypes) > 0 {
		types := make([]string, len(f.ResourceTypes))
		for i, t := range f.ResourceTypes {
			types[i] = string(t)
		}
		where = append(where, "resource_type = ANY("+arg(types)+")")
	}
	if len(f.Actors) > 0 {
		where = append(where, "actor = ANY("+arg(f.Actors)+")")
	}
	if len(f.ResourceIDs) > 0 {
		where = append(where, "resource_id = ANY("+arg(f.ResourceIDs)+")")
	}
	if f.Start != 0 {
		where = append(where, "ts >= "+arg(f.Start))
	}
	if f.End != 0 {
		where = append(where, "ts <= "+arg(f.End))
	}
	if f.ComplianceOnly {
		where = append(where, "compliance_relevant")
	}

	q := "SELECT " + entryColumns + " FROM audit_entries"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY ts DESC"
	if f.Offset > 0 {
		q += " OFFSET " + arg(f.Offset)
	}
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]*Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// All implements Store.
func (s *PostgresStore) All(ctx context.Context) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+entryColumns+" FROM audit_entries ORDER BY ts ASC")
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]*Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Len implements Store.
func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Tail implements Store.
func (s *PostgresStore) Tail(ctx context.Context) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx,
		"SELECT hash FROM audit_entries ORDER BY ts DESC LIMIT 1",
	).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get chain tail: %w", err)
	}
	return hash, nil
}

// Verify implements Store. It streams all rows ordered by timestamp and
// validates the full chain. O(n) in chain length; may be slow for very
// large ledgers.
func (s *PostgresStore) Verify(ctx context.Context) error {
	entries, err := s.All(ctx)
	if err != nil {
		return err
	}
	return verifyEntries(entries)
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	var metaJSON []byte
	if err := row.Scan(
		&e.ID, &e.Timestamp, &e.EventType, &e.Actor, &e.ResourceType,
		&e.ResourceID, &e.Action, &e.Details, &metaJSON, &e.Hash,
		&e.PreviousHash, &e.ComplianceRelevant, &e.RetentionUntil,
	); err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return e, nil
}
