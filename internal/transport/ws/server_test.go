package ws

import (
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ideawall.live/internal/hub"
	"ideawall.live/internal/persistence/store"
	"ideawall.live/internal/protocol"
	"ideawall.live/internal/wall"
)

func newFixture(t *testing.T) (*wall.Wall, *hub.Hub, *httptest.Server) {
	t.Helper()
	fs := store.NewFileStore(t.TempDir())
	if err := fs.Bootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	w := wall.New(fs, wall.Options{})
	if err := w.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	h := hub.New(nil, 8)
	srv := httptest.NewServer(NewServer(w, h, nil).Handler())
	t.Cleanup(srv.Close)
	return w, h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev, err := protocol.DecodeEvent(msg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func TestHandler_FirstFrameIsFullState(t *testing.T) {
	w, _, srv := newFixture(t)
	if _, err := w.SubmitIdea("Avery", "before connect"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := w.SubmitIdea("Jordan", "also before"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	conn := dial(t, srv)
	ev := readEvent(t, conn)
	if ev.Type != protocol.TypeHello {
		t.Fatalf("first frame type=%q want hello", ev.Type)
	}
	var hello protocol.HelloData
	if err := json.Unmarshal(ev.Data, &hello); err != nil {
		t.Fatalf("hello data: %v", err)
	}
	if hello.Header != protocol.DefaultHeader {
		t.Fatalf("hello header=%q", hello.Header)
	}
	if len(hello.Ideas) != 2 || hello.Ideas[0].ID != 1 || hello.Ideas[1].ID != 2 {
		t.Fatalf("hello ideas=%+v", hello.Ideas)
	}
}

func TestHandler_BroadcastReachesAllConnected(t *testing.T) {
	w, h, srv := newFixture(t)

	a := dial(t, srv)
	b := dial(t, srv)
	readEvent(t, a) // hello
	readEvent(t, b)

	idea, err := w.SubmitIdea("Kai", "pushed")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	frame, err := protocol.EncodeIdeaNew(idea)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	h.Broadcast(frame)

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		if ev.Type != protocol.TypeIdeaNew {
			t.Fatalf("type=%q want idea.new", ev.Type)
		}
		var got protocol.Idea
		if err := json.Unmarshal(ev.Data, &got); err != nil {
			t.Fatalf("data: %v", err)
		}
		if got != idea {
			t.Fatalf("got=%+v want %+v", got, idea)
		}
	}
}

func TestHandler_EvictionTearsDownConnection(t *testing.T) {
	fs := store.NewFileStore(t.TempDir())
	if err := fs.Bootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	w := wall.New(fs, wall.Options{})
	if err := w.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	h := hub.New(nil, 1)
	srv := httptest.NewServer(NewServer(w, h, nil).Handler())
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	readEvent(t, conn) // hello

	// Stop reading and flood with large frames until the socket buffers
	// fill, the writer stalls, the single-slot queue overflows and the hub
	// gives up on this subscriber.
	frame, err := protocol.EncodeHeaderSet(strings.Repeat("x", 128*1024))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for h.Count() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not evicted")
		}
		h.Broadcast(frame)
	}

	// The server must close the socket, not just forget the subscription:
	// draining what was already in flight has to end in a connection error,
	// never a read timeout.
	_ = conn.SetReadDeadline(time.Now().Add(8 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			t.Fatalf("socket still open after eviction")
		}
		break
	}
}

func TestHandler_DisconnectRemovesSubscriber(t *testing.T) {
	_, h, srv := newFixture(t)

	a := dial(t, srv)
	b := dial(t, srv)
	readEvent(t, a)
	readEvent(t, b)

	_ = a.Close()
	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not removed, count=%d", h.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The surviving client still gets deliveries.
	frame, _ := protocol.EncodeHeaderSet("still here")
	h.Broadcast(frame)
	ev := readEvent(t, b)
	if ev.Type != protocol.TypeHeaderSet {
		t.Fatalf("type=%q", ev.Type)
	}
}
