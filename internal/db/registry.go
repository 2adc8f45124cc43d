// Package db implements the database side of the engine: the per-session
// connection registry, schema reflection, natural-language-to-SQL generation
// with a fail-closed safety gate, and read-only execution.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"       // mysql driver
	_ "github.com/jackc/pgx/v5/stdlib"       // pgx database/sql driver
	_ "github.com/mattn/go-sqlite3"          // sqlite driver
	"github.com/patrickmn/go-cache"

	"github.com/querypilot/querypilot/internal/logger"
)

var log = logger.Named("db")

// ErrNotConnected is returned when a session has neither a live handle nor
// a persisted connection record.
var ErrNotConnected = errors.New("no database connected for session")

// Binding is one session's live database connection.
type Binding struct {
	Handle *sql.DB
	Engine string
}

type persistedConfig struct {
	ConnectionString string `json:"connection_string"`
	Engine           string `json:"db_type"`
}

// Registry owns all live database handles, keyed by session id, plus the
// on-disk connection records that let a binding survive a process restart.
// Handles are disposed only on explicit disconnect or reset.
type Registry struct {
	handles *cache.Cache
	dataDir string
}

func NewRegistry(dataDir string) *Registry {
	return &Registry{
		handles: cache.New(cache.NoExpiration, 0),
		dataDir: dataDir,
	}
}

func (r *Registry) sessionDir(sessionID string) string {
	return filepath.Join(r.dataDir, "db", sessionID)
}

func (r *Registry) configPath(sessionID string) string {
	return filepath.Join(r.sessionDir(sessionID), "db_config.json")
}

// Connect binds a database to a session: validates the connection with a
// trivial round trip, caches the handle, and persists the connection record.
// Connecting an already-bound session is a no-op.
func (r *Registry) Connect(ctx context.Context, sessionID, connString string) (string, error) {
	if b, found := r.handles.Get(sessionID); found {
		log.Infow("database already connected", "session", sessionID)
		return b.(*Binding).Engine, nil
	}

	engine, err := DetectEngine(connString)
	if err != nil {
		return "", err
	}

	handle, err := openAndValidate(ctx, connString, engine)
	if err != nil {
		return "", fmt.Errorf("database connection failed: %w", err)
	}

	r.handles.Set(sessionID, &Binding{Handle: handle, Engine: engine}, cache.NoExpiration)

	if err := r.persist(sessionID, connString, engine); err != nil {
		log.Warnw("failed to persist database config", "session", sessionID, "error", err)
	}

	log.Infow("database connected", "session", sessionID, "engine", engine)
	return engine, nil
}

// Binding returns the session's live binding, lazily rehydrating it from
// the persisted record when the handle is gone (e.g. after a restart).
func (r *Registry) Binding(ctx context.Context, sessionID string) (*Binding, error) {
	if b, found := r.handles.Get(sessionID); found {
		return b.(*Binding), nil
	}

	raw, err := os.ReadFile(r.configPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotConnected, sessionID)
		}
		return nil, fmt.Errorf("failed to read persisted database config: %w", err)
	}

	var cfg persistedConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("corrupt persisted database config for session %s: %w", sessionID, err)
	}

	log.Infow("rehydrating database connection", "session", sessionID, "engine", cfg.Engine)

	handle, err := openAndValidate(ctx, cfg.ConnectionString, cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("failed to restore database connection: %w", err)
	}

	binding := &Binding{Handle: handle, Engine: cfg.Engine}
	r.handles.Set(sessionID, binding, cache.NoExpiration)
	return binding, nil
}

// Engine reports the bound engine kind, consulting the persisted record if
// no live handle exists. It does not open a connection.
func (r *Registry) Engine(sessionID string) (string, error) {
	if b, found := r.handles.Get(sessionID); found {
		return b.(*Binding).Engine, nil
	}
	raw, err := os.ReadFile(r.configPath(sessionID))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotConnected, sessionID)
	}
	var cfg persistedConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return "", fmt.Errorf("corrupt persisted database config for session %s: %w", sessionID, err)
	}
	return cfg.Engine, nil
}

// Disconnect disposes the live handle. The persisted record is kept; only
// RemoveConfig (session reset) deletes it.
func (r *Registry) Disconnect(sessionID string) {
	if b, found := r.handles.Get(sessionID); found {
		if err := b.(*Binding).Handle.Close(); err != nil {
			log.Warnw("error closing database handle", "session", sessionID, "error", err)
		}
		r.handles.Delete(sessionID)
		log.Infow("database disconnected", "session", sessionID)
	}
}

// RemoveConfig deletes the persisted connection record as part of a full
// session teardown. Call Disconnect first to dispose any live handle.
func (r *Registry) RemoveConfig(sessionID string) error {
	if err := os.RemoveAll(r.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("failed to remove persisted database config: %w", err)
	}
	return nil
}

// CloseAll disposes every live handle. Used on shutdown.
func (r *Registry) CloseAll() {
	for sessionID, item := range r.handles.Items() {
		if b, ok := item.Object.(*Binding); ok {
			_ = b.Handle.Close()
		}
		r.handles.Delete(sessionID)
	}
}

func (r *Registry) persist(sessionID, connString, engine string) error {
	if err := os.MkdirAll(r.sessionDir(sessionID), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(persistedConfig{ConnectionString: connString, Engine: engine}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.configPath(sessionID), raw, 0o644)
}

func openAndValidate(ctx context.Context, connString, engine string) (*sql.DB, error) {
	driver, err := driverFor(engine)
	if err != nil {
		return nil, err
	}
	dsn, err := normalizeDSN(connString, engine)
	if err != nil {
		return nil, err
	}

	handle, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Trivial round trip; a binding that cannot answer SELECT 1 is rejected.
	var one int
	if err := handle.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		handle.Close()
		return nil, fmt.Errorf("connection validation failed: %w", err)
	}
	return handle, nil
}
