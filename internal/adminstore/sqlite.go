// ABOUTME: SQLite side-store for relay administration using modernc.org/sqlite
// ABOUTME: Indexes checkpoints for fast lookup and records an audit trail of admin actions

package adminstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("adminstore: not found")

// ErrDuplicatePrincipal is returned when a principal's fingerprint already exists.
var ErrDuplicatePrincipal = errors.New("adminstore: duplicate principal")

// Store is the relay's administrative side-store. It never holds event log
// data itself — that lives in store.Store — only the indexes and records an
// operator dashboard or admin API needs: which principals may call
// privileged admin endpoints, a trail of what they did, and a fast index of
// checkpoints so an operator doesn't have to replay a guild's full log to
// see when it was last checkpointed.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the admin SQLite database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "adminstore")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating admin database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening admin database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating admin schema: %w", err)
	}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running admin migrations: %w", err)
	}

	logger.Info("admin store initialized", "path", path)
	return s, nil
}

// Schema segments split for maintainability, following the same layering
// the relay's own event log code uses: principals/audit concerns never
// touch the checkpoint index tables.
var (
	schemaPrincipalsSQL = `
CREATE TABLE IF NOT EXISTS admin_principals (principal_id TEXT PRIMARY KEY, pubkey_fingerprint TEXT NOT NULL UNIQUE, display_name TEXT NOT NULL, status TEXT NOT NULL DEFAULT 'approved', created_at TEXT NOT NULL, last_seen TEXT, CHECK (status IN ('approved', 'revoked')));
CREATE INDEX IF NOT EXISTS idx_admin_principals_status ON admin_principals(status);
`
	schemaAuditSQL = `
CREATE TABLE IF NOT EXISTS audit_log (audit_id TEXT PRIMARY KEY, actor_principal_id TEXT NOT NULL, action TEXT NOT NULL, guild_id TEXT, detail TEXT, ts TEXT NOT NULL, CHECK (action IN ('prune_triggered', 'checkpoint_triggered', 'principal_approved', 'principal_revoked')));
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts DESC);
CREATE INDEX IF NOT EXISTS idx_audit_guild ON audit_log(guild_id);
`
	schemaCheckpointsSQL = `
CREATE TABLE IF NOT EXISTS checkpoint_index (guild_id TEXT NOT NULL, seq INTEGER NOT NULL, event_id TEXT NOT NULL, root_hash TEXT NOT NULL, created_at TEXT NOT NULL, PRIMARY KEY (guild_id, seq));
CREATE INDEX IF NOT EXISTS idx_checkpoint_guild_seq ON checkpoint_index(guild_id, seq DESC);
`
)

func (s *Store) createSchema() error {
	for _, stmt := range []string{schemaPrincipalsSQL, schemaAuditSQL, schemaCheckpointsSQL} {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

type columnMigration struct {
	check  string
	apply  string
	column string
	table  string
}

func (s *Store) applyColumnMigration(m columnMigration) error {
	var exists int
	if err := s.db.QueryRow(m.check).Scan(&exists); err == nil {
		return nil
	}
	if _, err := s.db.Exec(m.apply); err != nil {
		return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
	}
	s.logger.Info("applied migration", "column", m.column, "table", m.table)
	return nil
}

// runMigrations applies schema migrations for databases created by earlier
// relay versions. Idempotent, safe to run on every startup.
func (s *Store) runMigrations() error {
	migrations := []columnMigration{
		{`SELECT 1 FROM pragma_table_info('admin_principals') WHERE name = 'last_seen'`, `ALTER TABLE admin_principals ADD COLUMN last_seen TEXT`, "last_seen", "admin_principals"},
	}
	for _, m := range migrations {
		if err := s.applyColumnMigration(m); err != nil {
			return err
		}
	}
	return nil
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed")
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Info("closing admin store")
	return s.db.Close()
}

// Principal is an identity permitted to call the relay's admin endpoints.
type Principal struct {
	PrincipalID       string
	PubkeyFingerprint string
	DisplayName       string
	Status            string
	CreatedAt         time.Time
	LastSeen          *time.Time
}

// ApprovePrincipal registers a new admin principal, or returns
// ErrDuplicatePrincipal if the fingerprint is already registered.
func (s *Store) ApprovePrincipal(ctx context.Context, p *Principal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_principals (principal_id, pubkey_fingerprint, display_name, status, created_at)
		VALUES (?, ?, ?, 'approved', ?)
	`, p.PrincipalID, p.PubkeyFingerprint, p.DisplayName, p.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicatePrincipal
		}
		return fmt.Errorf("inserting principal: %w", err)
	}
	return nil
}

// RevokePrincipal marks a principal's status revoked. relayadmin's
// JWTVerifier consults this status on every request, so a revoked
// principal is rejected immediately even if its token has not yet expired.
func (s *Store) RevokePrincipal(ctx context.Context, principalID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE admin_principals SET status = 'revoked' WHERE principal_id = ?`, principalID)
	if err != nil {
		return fmt.Errorf("revoking principal: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPrincipal looks up a principal by its fingerprint.
func (s *Store) GetPrincipal(ctx context.Context, fingerprint string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT principal_id, pubkey_fingerprint, display_name, status, created_at, last_seen
		FROM admin_principals WHERE pubkey_fingerprint = ?
	`, fingerprint)

	var p Principal
	var createdAt string
	var lastSeen sql.NullString
	if err := row.Scan(&p.PrincipalID, &p.PubkeyFingerprint, &p.DisplayName, &p.Status, &createdAt, &lastSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying principal: %w", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if lastSeen.Valid {
		t, _ := time.Parse(time.RFC3339, lastSeen.String)
		p.LastSeen = &t
	}
	return &p, nil
}

// GetPrincipalByID looks up a principal by its primary id, the form the
// admin surface's JWTs carry in their "sub" claim.
func (s *Store) GetPrincipalByID(ctx context.Context, principalID string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT principal_id, pubkey_fingerprint, display_name, status, created_at, last_seen
		FROM admin_principals WHERE principal_id = ?
	`, principalID)

	var p Principal
	var createdAt string
	var lastSeen sql.NullString
	if err := row.Scan(&p.PrincipalID, &p.PubkeyFingerprint, &p.DisplayName, &p.Status, &createdAt, &lastSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying principal: %w", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if lastSeen.Valid {
		t, _ := time.Parse(time.RFC3339, lastSeen.String)
		p.LastSeen = &t
	}
	return &p, nil
}

// TouchLastSeen stamps a principal's last_seen time to at.
func (s *Store) TouchLastSeen(ctx context.Context, principalID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE admin_principals SET last_seen = ? WHERE principal_id = ?`,
		at.UTC().Format(time.RFC3339), principalID)
	if err != nil {
		return fmt.Errorf("touching last_seen: %w", err)
	}
	return nil
}

// AuditEntry records one administrative action for the trail an operator
// can replay to answer "who pruned guild X and when".
type AuditEntry struct {
	AuditID           string
	ActorPrincipalID  string
	Action            string
	GuildID           string
	Detail            string
	Timestamp         time.Time
}

// RecordAudit appends one audit log entry.
func (s *Store) RecordAudit(ctx context.Context, e *AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (audit_id, actor_principal_id, action, guild_id, detail, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.AuditID, e.ActorPrincipalID, e.Action, nullableString(e.GuildID), e.Detail, e.Timestamp.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// RecentAudit returns up to limit audit entries, most recent first.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT audit_id, actor_principal_id, action, guild_id, detail, ts
		FROM audit_log ORDER BY ts DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var guildID sql.NullString
		var ts string
		if err := rows.Scan(&e.AuditID, &e.ActorPrincipalID, &e.Action, &guildID, &e.Detail, &ts); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.GuildID = guildID.String
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CheckpointRecord indexes one CHECKPOINT event so an operator can find the
// most recent checkpoint for a guild without scanning its whole log.
type CheckpointRecord struct {
	GuildID   string
	Seq       int64
	EventID   string
	RootHash  string
	CreatedAt time.Time
}

// IndexCheckpoint upserts a checkpoint record, replacing any existing entry
// at the same (guildID, seq).
func (s *Store) IndexCheckpoint(ctx context.Context, c *CheckpointRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoint_index (guild_id, seq, event_id, root_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (guild_id, seq) DO UPDATE SET event_id = excluded.event_id, root_hash = excluded.root_hash, created_at = excluded.created_at
	`, c.GuildID, c.Seq, c.EventID, c.RootHash, c.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("indexing checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the highest-seq checkpoint recorded for a guild.
func (s *Store) LatestCheckpoint(ctx context.Context, guildID string) (*CheckpointRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, seq, event_id, root_hash, created_at
		FROM checkpoint_index WHERE guild_id = ? ORDER BY seq DESC LIMIT 1
	`, guildID)

	var c CheckpointRecord
	var createdAt string
	if err := row.Scan(&c.GuildID, &c.Seq, &c.EventID, &c.RootHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying latest checkpoint: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
