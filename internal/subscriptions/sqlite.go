package subscriptions

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	// SQLite driver.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var driver = "sqlite"

// openDB opens the SQLite database at the provided path and applies
// migrations.
func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open(driver, sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func sqliteDSN(path string) string {
	values := url.Values{}
	values.Set("_fk", "1")
	values.Add("_pragma", "foreign_keys(ON)")
	values.Add("_pragma", "journal_mode(WAL)")
	values.Add("_pragma", "synchronous(NORMAL)")
	values.Add("_pragma", "busy_timeout(5000)")
	values.Add("_pragma", "temp_store(MEMORY)")
	return fmt.Sprintf("file:%s.sqlite?%s", path, values.Encode())
}

func upsertSubscription(db *sql.DB, sub RepoSubscription) error {
	events, err := json.Marshal(sub.EventTypes)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO repo_subscriptions (
			repository, registration_id, event_types, session_override, created_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(repository) DO UPDATE SET
			registration_id = excluded.registration_id,
			event_types = excluded.event_types,
			session_override = excluded.session_override,
			created_at = excluded.created_at,
			updated_at = CURRENT_TIMESTAMP
	`, sub.Repository, sub.RegistrationID, string(events), sub.SessionOverride, sub.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func deleteSubscription(db *sql.DB, repository string) error {
	_, err := db.Exec(`DELETE FROM repo_subscriptions WHERE repository = ?`, repository)
	return err
}

func listSubscriptions(db *sql.DB) ([]RepoSubscription, error) {
	rows, err := db.Query(`
		SELECT repository, registration_id, event_types, session_override, created_at
		FROM repo_subscriptions
		ORDER BY repository ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RepoSubscription, 0)
	for rows.Next() {
		var sub RepoSubscription
		var events, created string
		if err := rows.Scan(&sub.Repository, &sub.RegistrationID, &events, &sub.SessionOverride, &created); err != nil {
			return nil, err
		}
		if events != "" {
			if err := json.Unmarshal([]byte(events), &sub.EventTypes); err != nil {
				return nil, fmt.Errorf("decode event types for %s: %w", sub.Repository, err)
			}
		}
		if created != "" {
			if ts, err := time.Parse(time.RFC3339, created); err == nil {
				sub.CreatedAt = ts
			}
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
