package store

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ideawall.live/internal/protocol"
)

// File names under the data dir. export.csv and export.json serve these
// files raw, so the formats are part of the external contract.
const (
	csvName    = "ideas.csv"
	jsonName   = "ideas.json"
	headerName = "header.txt"
)

var csvHeader = []string{"id", "author", "text", "created_at"}

// FileStore persists the idea wall to three files: an append-only CSV audit
// log, a JSON snapshot rewritten in full on every mutation, and a single-line
// header file. The snapshot is the recovery source; the CSV is write-only.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) CSVPath() string    { return filepath.Join(s.dir, csvName) }
func (s *FileStore) JSONPath() string   { return filepath.Join(s.dir, jsonName) }
func (s *FileStore) HeaderPath() string { return filepath.Join(s.dir, headerName) }

// Bootstrap creates the data dir and initializes any missing files. Existing
// files are left untouched.
func (s *FileStore) Bootstrap() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(s.CSVPath()); errors.Is(err, os.ErrNotExist) {
		f, err := os.OpenFile(s.CSVPath(), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			return err
		}
		w := csv.NewWriter(f)
		_ = w.Write(csvHeader)
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(s.JSONPath()); errors.Is(err, os.ErrNotExist) {
		if err := writeFileAtomic(s.JSONPath(), []byte("[]")); err != nil {
			return err
		}
	}
	if _, err := os.Stat(s.HeaderPath()); errors.Is(err, os.ErrNotExist) {
		if err := writeFileAtomic(s.HeaderPath(), []byte(protocol.DefaultHeader)); err != nil {
			return err
		}
	}
	return nil
}

// AppendIdea appends one row to the audit log.
func (s *FileStore) AppendIdea(idea protocol.Idea) error {
	f, err := os.OpenFile(s.CSVPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{strconv.Itoa(idea.ID), idea.Author, idea.Text, idea.CreatedAt})
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("audit log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the snapshot with the full list. Temp file + rename
// so a crash mid-write leaves the previous snapshot intact.
func (s *FileStore) SaveSnapshot(ideas []protocol.Idea) error {
	if ideas == nil {
		ideas = []protocol.Idea{}
	}
	b, err := json.MarshalIndent(ideas, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := writeFileAtomic(s.JSONPath(), b); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns every record in insertion order. A missing or
// unreadable snapshot yields an empty list; boot treats store absence as
// "initialize with defaults".
func (s *FileStore) LoadSnapshot() ([]protocol.Idea, error) {
	raw, err := os.ReadFile(s.JSONPath())
	if err != nil {
		return []protocol.Idea{}, nil
	}
	var ideas []protocol.Idea
	if err := json.Unmarshal(raw, &ideas); err != nil {
		return []protocol.Idea{}, nil
	}
	if ideas == nil {
		ideas = []protocol.Idea{}
	}
	return ideas, nil
}

// ReadHeader returns the stored header, falling back to the default when the
// file is blank or absent.
func (s *FileStore) ReadHeader() string {
	raw, err := os.ReadFile(s.HeaderPath())
	if err != nil {
		return protocol.DefaultHeader
	}
	txt := strings.TrimSpace(string(raw))
	if txt == "" {
		return protocol.DefaultHeader
	}
	return txt
}

// WriteHeader overwrites the header file.
func (s *FileStore) WriteHeader(value string) error {
	if err := writeFileAtomic(s.HeaderPath(), []byte(strings.TrimSpace(value))); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
