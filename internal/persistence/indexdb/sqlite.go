package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"ideawall.live/internal/protocol"
)

// SQLiteIndex is an optional read-model index of accepted ideas and header
// changes. It is never on the mutation path: writes go through a buffered
// channel into a single writer goroutine, and are dropped when the indexer
// falls behind. The CSV/JSON files remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropIdeaTotal   atomic.Uint64
	dropHeaderTotal atomic.Uint64
}

type reqKind int

const (
	reqIdea reqKind = iota + 1
	reqHeader
)

type req struct {
	kind   reqKind
	idea   protocol.Idea
	header string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style workload; NORMAL is enough durability for a
	// secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ideas (
			id INTEGER PRIMARY KEY,
			author TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ideas_author ON ideas(author);`,
		`CREATE TABLE IF NOT EXISTS headers (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			value TEXT NOT NULL,
			set_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordIdea enqueues one accepted idea. Nil-safe so callers can hold a nil
// index when -disable_db is set.
func (s *SQLiteIndex) RecordIdea(idea protocol.Idea) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqIdea, idea: idea}:
	default:
		s.dropIdeaTotal.Add(1)
	}
}

func (s *SQLiteIndex) RecordHeader(value string) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqHeader, header: value}:
	default:
		s.dropHeaderTotal.Add(1)
	}
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		switch r.kind {
		case reqIdea:
			_, _ = s.db.Exec(
				`INSERT OR REPLACE INTO ideas (id, author, text, created_at) VALUES (?, ?, ?, ?)`,
				r.idea.ID, r.idea.Author, r.idea.Text, r.idea.CreatedAt)
		case reqHeader:
			_, _ = s.db.Exec(
				`INSERT INTO headers (value, set_at) VALUES (?, ?)`,
				r.header, time.Now().UTC().Format(time.RFC3339))
		}
	}
}

// CountIdeas reads back the indexed row count. Intended for tests and
// operational spot checks, not for serving requests.
func (s *SQLiteIndex) CountIdeas() (int, error) {
	if s == nil {
		return 0, nil
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM ideas`).Scan(&n)
	return n, err
}

type Stats struct {
	QueueDepth      int
	QueueCapacity   int
	DropIdeaTotal   uint64
	DropHeaderTotal uint64
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		DropIdeaTotal:   s.dropIdeaTotal.Load(),
		DropHeaderTotal: s.dropHeaderTotal.Load(),
	}
}
