package subscriptions

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Store is the single authoritative source of repository subscriptions for
// one process. All reads are served from memory; mutations are written
// through to SQLite when it is available. The in-memory view is optimistic:
// a failed write is logged and the next process start reconciles against
// whatever the structured store holds.
type Store struct {
	mu   sync.RWMutex
	subs map[string]RepoSubscription
	db   *sql.DB
	log  *slog.Logger
}

type Options struct {
	// DBPath is the SQLite database path (without the .sqlite suffix).
	DBPath string
	// LegacyPath points at the flat-file snapshot of a previous storage
	// generation. When present and readable it is migrated into SQLite
	// once, then deleted.
	LegacyPath string
	// Seed holds config-embedded subscriptions used only when neither the
	// legacy snapshot nor SQLite has any rows.
	Seed []RepoSubscription
	Log  *slog.Logger
}

// Open initializes the store and runs the tiered load exactly once.
// The structured store is an optional capability: when SQLite cannot be
// opened the store degrades to memory-only and keeps serving.
func Open(opts Options) (*Store, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	store := &Store{subs: make(map[string]RepoSubscription), log: log}

	if strings.TrimSpace(opts.DBPath) != "" {
		db, err := openDB(opts.DBPath)
		if err != nil {
			log.Warn("subscription store degraded to memory-only", "path", opts.DBPath, "error", err)
		} else {
			store.db = db
		}
	}

	store.load(opts)
	return store, nil
}

// load resolves the authoritative source: legacy snapshot, then SQLite,
// then config seed. Exactly one tier populates memory.
func (s *Store) load(opts Options) {
	if entries, ok := s.readLegacy(opts.LegacyPath); ok {
		migrated := true
		for _, sub := range entries {
			s.subs[sub.Repository] = sub
			if !s.persist(sub) {
				migrated = false
			}
		}
		// Deleting the snapshot before every entry landed in SQLite would
		// lose data; a retried migration is safe because persist upserts.
		if migrated && s.db != nil {
			if err := os.Remove(opts.LegacyPath); err != nil {
				s.log.Warn("failed to delete migrated legacy snapshot", "path", opts.LegacyPath, "error", err)
			} else {
				s.log.Info("migrated legacy subscription snapshot", "path", opts.LegacyPath, "count", len(entries))
			}
		}
		if len(entries) > 0 {
			return
		}
	}

	if s.db != nil {
		rows, err := listSubscriptions(s.db)
		if err != nil {
			s.log.Warn("failed to load subscriptions from structured store", "error", err)
		} else if len(rows) > 0 {
			for _, sub := range rows {
				s.subs[sub.Repository] = sub
			}
			return
		}
	}

	for _, sub := range opts.Seed {
		sub.Repository = strings.TrimSpace(sub.Repository)
		if sub.Repository == "" {
			continue
		}
		s.subs[sub.Repository] = sub
		s.persist(sub)
	}
}

// readLegacy loads the flat-file snapshot. An unreadable or corrupt file is
// skipped (and never deleted) so nothing is lost to a bad read.
func (s *Store) readLegacy(path string) ([]RepoSubscription, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var byRepo map[string]RepoSubscription
	if err := json.Unmarshal(raw, &byRepo); err != nil {
		s.log.Warn("legacy subscription snapshot unreadable, skipping", "path", path, "error", err)
		return nil, false
	}
	out := make([]RepoSubscription, 0, len(byRepo))
	for repo, sub := range byRepo {
		if strings.TrimSpace(sub.Repository) == "" {
			sub.Repository = repo
		}
		out = append(out, sub)
	}
	return out, true
}

// Get returns the subscription for a repository.
func (s *Store) Get(repository string) (RepoSubscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[repository]
	return sub, ok
}

// Put upserts a subscription in memory and writes it through to SQLite.
func (s *Store) Put(sub RepoSubscription) {
	s.mu.Lock()
	s.subs[sub.Repository] = sub
	s.mu.Unlock()
	s.persist(sub)
}

// Remove deletes a subscription. A missing row in SQLite is not an error.
func (s *Store) Remove(repository string) {
	s.mu.Lock()
	delete(s.subs, repository)
	s.mu.Unlock()
	if s.db == nil {
		return
	}
	if err := deleteSubscription(s.db, repository); err != nil {
		s.log.Warn("failed to persist subscription removal", "repository", repository, "error", err)
	}
}

// List returns all subscriptions; order is not significant.
func (s *Store) List() []RepoSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RepoSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

// Close releases the SQLite handle, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) persist(sub RepoSubscription) bool {
	if s.db == nil {
		return false
	}
	if err := upsertSubscription(s.db, sub); err != nil {
		s.log.Warn("failed to persist subscription", "repository", sub.Repository, "error", err)
		return false
	}
	return true
}
