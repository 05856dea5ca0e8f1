package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestLogger_WritesDecodableJSONL(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir)

	if err := l.WriteEvent("idea.new", map[string]any{"id": 1, "author": "Avery"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.WriteEvent("header.set", "New question"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ents, err := os.ReadDir(filepath.Join(dir, "events"))
	if err != nil || len(ents) != 1 {
		t.Fatalf("events dir: ents=%v err=%v", ents, err)
	}
	name := ents[0].Name()
	if !strings.HasPrefix(name, "events-") || !strings.HasSuffix(name, ".jsonl.zst") {
		t.Fatalf("unexpected log name %q", name)
	}

	f, err := os.Open(filepath.Join(dir, "events", name))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var entries []Entry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("entries=%d want 2", len(entries))
	}
	if entries[0].Type != "idea.new" || entries[1].Type != "header.set" {
		t.Fatalf("types=%q,%q", entries[0].Type, entries[1].Type)
	}
	var header string
	if err := json.Unmarshal(entries[1].Data, &header); err != nil || header != "New question" {
		t.Fatalf("header data=%q err=%v", string(entries[1].Data), err)
	}
}
