package credentials

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cara/internal/ai"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const settingCurrentProvider = "current_provider"

// SQLiteStore keeps credentials in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	sealer *sealer
	logger *slog.Logger
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path, secret string, logger *slog.Logger) (*SQLiteStore, error) {
	logger = componentLogger(logger)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps the busy timeout and journal mode on every query.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{
		db:     db,
		path:   path,
		sealer: prepareSealer(secret, "sqlite", logger),
		logger: logger,
	}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads every stored credential and the current provider.
func (s *SQLiteStore) Load(ctx context.Context) (ai.CredentialState, error) {
	state := ai.CredentialState{Providers: map[ai.ProviderID]ai.Credential{}}

	rows, err := s.db.QueryContext(ctx, `SELECT provider, api_key, enabled, model, updated_at FROM provider_credentials`)
	if err != nil {
		return state, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			provider, stored, model, updated string
			enabled                          int
		)
		if err := rows.Scan(&provider, &stored, &enabled, &model, &updated); err != nil {
			return state, fmt.Errorf("scan credential: %w", err)
		}
		id := ai.ProviderID(provider)
		key, locked := openKey(s.sealer, s.logger, id, stored)
		cred := ai.Credential{
			APIKey:  key,
			Enabled: enabled != 0,
			Model:   model,
			Locked:  locked,
		}
		if ts, parseErr := time.Parse(time.RFC3339Nano, updated); parseErr == nil {
			cred.UpdatedAt = ts
		}
		if cred.APIKey == "" {
			cred.Enabled = false
		}
		state.Providers[id] = cred
	}
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("iterate credentials: %w", err)
	}
	// Release the only connection before the settings query.
	_ = rows.Close()

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingCurrentProvider).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return state, fmt.Errorf("read current provider: %w", err)
	default:
		state.Current = ai.ProviderID(current)
	}
	return state, nil
}

// Save replaces the stored credentials with state in one transaction. Locked
// credentials keep their stored key and enabled flag; only the model is
// updated.
func (s *SQLiteStore) Save(ctx context.Context, state ai.CredentialState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin credentials tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	ids := make([]string, 0, len(state.Providers))
	var locked []string
	for id, cred := range state.Providers {
		ids = append(ids, string(id))
		if cred.Locked {
			locked = append(locked, string(id))
		}
	}
	sort.Strings(ids)
	if err := deleteUnlocked(ctx, tx, locked); err != nil {
		return err
	}
	for _, id := range ids {
		cred := state.Providers[ai.ProviderID(id)]
		if cred.Locked {
			if _, err := tx.ExecContext(ctx,
				`UPDATE provider_credentials SET model = ? WHERE provider = ?`,
				strings.TrimSpace(cred.Model), id,
			); err != nil {
				return fmt.Errorf("update %s model: %w", id, err)
			}
			continue
		}
		sealed, err := s.sealer.seal(cred.APIKey)
		if err != nil {
			return fmt.Errorf("seal %s key: %w", id, err)
		}
		updated := cred.UpdatedAt
		if updated.IsZero() {
			updated = now()
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO provider_credentials (provider, api_key, enabled, model, updated_at) VALUES (?, ?, ?, ?, ?)`,
			id,
			sealed,
			boolToInt(cred.Enabled),
			strings.TrimSpace(cred.Model),
			updated.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert %s credential: %w", id, err)
		}
	}

	if state.Current == "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, settingCurrentProvider); err != nil {
			return fmt.Errorf("clear current provider: %w", err)
		}
	} else if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingCurrentProvider,
		string(state.Current),
	); err != nil {
		return fmt.Errorf("write current provider: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}
	return nil
}

// deleteUnlocked removes every credential row except the providers in keep.
func deleteUnlocked(ctx context.Context, tx *sql.Tx, keep []string) error {
	query := `DELETE FROM provider_credentials`
	args := make([]any, 0, len(keep))
	if len(keep) > 0 {
		query += ` WHERE provider NOT IN (?` + strings.Repeat(`, ?`, len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, migration{version: strings.TrimSuffix(name, ".sql"), sql: string(data)})
	}
	return migrations, nil
}

func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
