package sink

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/nitrodev1/telegram-gift-parser/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS owners (
	gift_id INTEGER PRIMARY KEY,
	owner   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS valid_links (
	gift_id INTEGER PRIMARY KEY,
	url     TEXT NOT NULL
);`

// SQLiteSink writes both tables into one SQLite database. Records are
// inserted inside a transaction committed on Flush. A record whose gift ID
// is already stored is ignored, so the first committed owner wins when a
// resumed run overlaps a previous one.
type SQLiteSink struct {
	mu     sync.Mutex
	db     *sql.DB
	tx     *sql.Tx
	owners cursor
	links  cursor
	logger logger.Logger
}

// OpenSQLite opens the database at path. A fresh run drops prior tables; a
// resumed run keeps them.
func OpenSQLite(path string, resuming bool, log logger.Logger) (*SQLiteSink, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	mode := ModeFor(resuming, path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	setup := []string{
		"PRAGMA journal_mode=DELETE",
		"PRAGMA synchronous=FULL",
	}
	if mode == ModeFresh {
		setup = append(setup, "DROP TABLE IF EXISTS owners", "DROP TABLE IF EXISTS valid_links")
	}
	setup = append(setup, schema)

	for _, stmt := range setup {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare sqlite db %s: %w", path, err)
		}
	}

	log = log.WithField("component", "sink")
	log.InfoWithFields("SQLite output opened", map[string]interface{}{
		"database": path,
		"mode":     mode.String(),
	})

	return &SQLiteSink{
		db:     db,
		owners: cursor{table: "owners"},
		links:  cursor{table: "valid_links"},
		logger: log,
	}, nil
}

// AppendOwner inserts an owner record into the open transaction
func (s *SQLiteSink) AppendOwner(id int64, owner string) error {
	return s.insert(&s.owners, "INSERT OR IGNORE INTO owners (gift_id, owner) VALUES (?, ?)", id, owner)
}

// AppendValidLink inserts a valid-link record into the open transaction
func (s *SQLiteSink) AppendValidLink(id int64, url string) error {
	return s.insert(&s.links, "INSERT OR IGNORE INTO valid_links (gift_id, url) VALUES (?, ?)", id, url)
}

func (s *SQLiteSink) insert(c *cursor, query string, id int64, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := c.check(id); err != nil {
		return err
	}
	if s.tx == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		s.tx = tx
	}
	if _, err := s.tx.Exec(query, id, value); err != nil {
		return fmt.Errorf("insert into %s: %w", c.table, err)
	}
	c.accept(id)
	return nil
}

// Flush commits pending records
func (s *SQLiteSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit()
}

func (s *SQLiteSink) commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close commits pending records and closes the database
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.commit(), s.db.Close())
}
