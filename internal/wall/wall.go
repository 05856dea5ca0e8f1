package wall

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ideawall.live/internal/protocol"
)

// ErrEmptyFields rejects a submission whose author or text is blank after
// trimming. Checked before the store is touched; no id is consumed.
var ErrEmptyFields = errors.New("missing author or text")

// Store is the durable side of the wall. Implemented by
// persistence/store.FileStore.
type Store interface {
	AppendIdea(protocol.Idea) error
	SaveSnapshot([]protocol.Idea) error
	LoadSnapshot() ([]protocol.Idea, error)
	ReadHeader() string
	WriteHeader(string) error
}

type Options struct {
	// MaxAuthorLen / MaxTextLen clamp submissions; 0 disables the limit.
	MaxAuthorLen int
	MaxTextLen   int

	// Now is stubbed in tests; defaults to time.Now.
	Now func() time.Time
}

// Wall owns the in-memory copy of all ideas plus the header and serializes
// every mutation. The mutex is held across compute-id, append-audit,
// rewrite-snapshot and update-cache as one unit, and never across broadcast
// delivery (callers notify the hub after SubmitIdea returns).
type Wall struct {
	store Store
	opts  Options

	mu     sync.Mutex
	ideas  []protocol.Idea
	header string
}

func New(store Store, opts Options) *Wall {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Wall{store: store, opts: opts, header: protocol.DefaultHeader}
}

// Load warms the cache from the snapshot. Called once before the server
// accepts requests.
func (w *Wall) Load() error {
	ideas, err := w.store.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	w.mu.Lock()
	w.ideas = ideas
	w.header = w.store.ReadHeader()
	w.mu.Unlock()
	return nil
}

// SubmitIdea validates, assigns the next id and persists the record. On a
// snapshot write failure the cache is rolled back so the caller-visible
// state matches the snapshot; the already-appended audit row is tolerated
// (the audit log is a write-only trail, never a recovery source).
func (w *Wall) SubmitIdea(author, text string) (protocol.Idea, error) {
	author = strings.TrimSpace(author)
	text = strings.TrimSpace(text)
	if author == "" || text == "" {
		return protocol.Idea{}, ErrEmptyFields
	}
	author = clamp(author, w.opts.MaxAuthorLen)
	text = clamp(text, w.opts.MaxTextLen)

	w.mu.Lock()
	defer w.mu.Unlock()

	idea := protocol.Idea{
		ID:        w.nextIDLocked(),
		Author:    author,
		Text:      text,
		CreatedAt: w.opts.Now().Format("2006-01-02T15:04:05"),
	}

	if err := w.store.AppendIdea(idea); err != nil {
		return protocol.Idea{}, err
	}
	w.ideas = append(w.ideas, idea)
	if err := w.store.SaveSnapshot(w.ideas); err != nil {
		w.ideas = w.ideas[:len(w.ideas)-1]
		return protocol.Idea{}, err
	}
	return idea, nil
}

// SetHeader overwrites the header. A blank value resets to the default
// question.
func (w *Wall) SetHeader(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = protocol.DefaultHeader
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.store.WriteHeader(value); err != nil {
		return "", err
	}
	w.header = value
	return value, nil
}

// Ideas returns a copy of the current list. Read paths never wait on a
// writer beyond the copy itself; a value that is about to change is fine.
func (w *Wall) Ideas() []protocol.Idea {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]protocol.Idea, len(w.ideas))
	copy(out, w.ideas)
	return out
}

func (w *Wall) Header() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.header
}

func (w *Wall) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.ideas)
}

func (w *Wall) nextIDLocked() int {
	max := 0
	for _, i := range w.ideas {
		if i.ID > max {
			max = i.ID
		}
	}
	return max + 1
}

func clamp(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}
