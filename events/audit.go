package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"encore.dev/storage/sqldb"
)

// AuditEntry records one invalidation, gated behind CACHE_AUDIT_ENABLED
// (§6) so it stays inert unless an adapter deployment wires a database.
// Adapted from the teacher's invalidation/audit.go append-only schema.
type AuditEntry struct {
	ID          int64     `json:"id"`
	Pattern     string    `json:"pattern"`
	CacheKey    string    `json:"cacheKey"`
	TriggeredBy string    `json:"triggeredBy"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"requestId"`
	LatencyMs   int64     `json:"latencyMs"`
}

// auditDB is the named Encore SQL database the audit schema lives in,
// provisioned wherever this adapter's Encore app declares its
// infrastructure. Declaring it at package scope (rather than plumbing a
// *sqldb.Database through every constructor) matches the teacher's
// invalidation/service.go, which resolves its audit database the same way.
var auditDB = sqldb.Named("eacore_audit")

// AuditLogger persists invalidation events to Postgres for compliance and
// debugging. Use NewAuditLogger only when CACHE_AUDIT_ENABLED=true; the
// core never calls it implicitly.
type AuditLogger struct {
	db *sqldb.Database
}

// NewDefaultAuditLogger wraps the adapter's default audit database. Callers
// that need a different *sqldb.Database (e.g. tests) use NewAuditLogger
// directly instead.
func NewDefaultAuditLogger() (*AuditLogger, error) {
	return NewAuditLogger(auditDB)
}

// NewAuditLogger wraps db and ensures the audit schema exists.
func NewAuditLogger(db *sqldb.Database) (*AuditLogger, error) {
	logger := &AuditLogger{db: db}
	if err := logger.ensureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("events: init audit schema: %w", err)
	}
	return logger, nil
}

func (al *AuditLogger) ensureSchema(ctx context.Context) error {
	_, err := al.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS invalidation_audit (
			id BIGSERIAL PRIMARY KEY,
			pattern TEXT NOT NULL,
			cache_key TEXT NOT NULL DEFAULT '',
			triggered_by TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			request_id TEXT NOT NULL,
			latency_ms BIGINT DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_invalidation_audit_timestamp
		ON invalidation_audit(timestamp DESC);

		CREATE INDEX IF NOT EXISTS idx_invalidation_audit_request_id
		ON invalidation_audit(request_id);
	`)
	return err
}

// Insert records one audit entry. Every call appends a new row; a repeated
// request ID is not deduplicated.
func (al *AuditLogger) Insert(ctx context.Context, entry AuditEntry) error {
	_, err := al.db.Exec(ctx, `
		INSERT INTO invalidation_audit (pattern, cache_key, triggered_by, timestamp, request_id, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.Pattern, entry.CacheKey, entry.TriggeredBy, entry.Timestamp, entry.RequestID, entry.LatencyMs)
	if err != nil {
		return fmt.Errorf("events: insert audit entry: %w", err)
	}
	return nil
}

// GetRecent returns the most recent audit entries, optionally filtered by
// a pattern substring.
func (al *AuditLogger) GetRecent(ctx context.Context, limit int, patternFilter string) ([]AuditEntry, error) {
	var query string
	var args []interface{}

	if patternFilter != "" {
		query = `
			SELECT id, pattern, cache_key, triggered_by, timestamp, request_id, latency_ms
			FROM invalidation_audit WHERE pattern LIKE $1
			ORDER BY timestamp DESC LIMIT $2
		`
		args = []interface{}{"%" + patternFilter + "%", limit}
	} else {
		query = `
			SELECT id, pattern, cache_key, triggered_by, timestamp, request_id, latency_ms
			FROM invalidation_audit ORDER BY timestamp DESC LIMIT $1
		`
		args = []interface{}{limit}
	}

	rows, err := al.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("events: query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]AuditEntry, 0, limit)
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Pattern, &e.CacheKey, &e.TriggeredBy, &e.Timestamp, &e.RequestID, &e.LatencyMs); err != nil {
			return nil, fmt.Errorf("events: scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: iterate audit entries: %w", err)
	}
	return entries, nil
}

// marshalPayload is a small helper used by callers wanting to stash extra
// structured context (e.g. overrides map) onto a RequestID-correlated log
// line outside the fixed AuditEntry schema.
func marshalPayload(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
