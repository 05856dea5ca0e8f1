package wallclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ideawall.live/internal/protocol"
)

const pingEvery = 20 * time.Second

// State is one display's local mirror of the wall: header plus the full idea
// list. The push listener and the reconciliation poller both mutate it, and
// the render loop reads it, so everything goes through the mutex. onRefresh
// fires after every change.
type State struct {
	mu        sync.Mutex
	header    string
	ideas     []protocol.Idea
	onRefresh func()
}

func NewState(onRefresh func()) *State {
	if onRefresh == nil {
		onRefresh = func() {}
	}
	return &State{header: protocol.DefaultHeader, onRefresh: onRefresh}
}

func (s *State) Header() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}

func (s *State) Ideas() []protocol.Idea {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Idea, len(s.ideas))
	copy(out, s.ideas)
	return out
}

func (s *State) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ideas)
}

func (s *State) applyHello(h protocol.HelloData) {
	s.mu.Lock()
	s.header = h.Header
	s.ideas = append([]protocol.Idea(nil), h.Ideas...)
	s.mu.Unlock()
	s.onRefresh()
}

func (s *State) appendIdea(idea protocol.Idea) {
	s.mu.Lock()
	s.ideas = append(s.ideas, idea)
	s.mu.Unlock()
	s.onRefresh()
}

func (s *State) setHeader(v string) {
	s.mu.Lock()
	s.header = v
	s.mu.Unlock()
	s.onRefresh()
}

func (s *State) replaceIdeas(ideas []protocol.Idea) {
	s.mu.Lock()
	s.ideas = append([]protocol.Idea(nil), ideas...)
	s.mu.Unlock()
	s.onRefresh()
}

// Agent keeps a State consistent with the server: one initial REST fetch, a
// persistent push subscription with reconnect backoff, and an independent
// count-based reconciliation poll as the correctness backstop for dropped
// push delivery.
type Agent struct {
	baseURL string
	state   *State
	log     *log.Logger
	httpc   *http.Client

	backoff      time.Duration
	pollInterval time.Duration
}

type AgentOptions struct {
	// ReconnectBackoff defaults to 2s, PollInterval to 15s.
	ReconnectBackoff time.Duration
	PollInterval     time.Duration
	HTTPClient       *http.Client
}

func NewAgent(baseURL string, state *State, logger *log.Logger, opts AgentOptions) *Agent {
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = 2 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Agent{
		baseURL:      strings.TrimRight(baseURL, "/"),
		state:        state,
		log:          logger,
		httpc:        opts.HTTPClient,
		backoff:      opts.ReconnectBackoff,
		pollInterval: opts.PollInterval,
	}
}

// FetchInitial loads header and ideas once over REST. Either half failing is
// tolerated; the push channel and the poller will repair the gap.
func (a *Agent) FetchInitial(ctx context.Context) {
	if header, err := a.fetchHeader(ctx); err == nil {
		a.state.setHeader(header)
	}
	if ideas, err := a.fetchIdeas(ctx); err == nil {
		a.state.replaceIdeas(ideas)
	}
}

// Run blocks until ctx is cancelled, driving the push loop and the
// reconciliation poller as independent tasks.
func (a *Agent) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.pushLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.pollLoop(ctx)
	}()
	wg.Wait()
}

// pushLoop: Disconnected -> Connecting -> Synced, back to Disconnected on
// any channel error, with a fixed backoff before each reconnect.
func (a *Agent) pushLoop(ctx context.Context) {
	url := a.wsURL()
	for {
		if ctx.Err() != nil {
			return
		}
		if err := a.listenOnce(ctx, url); err != nil && a.log != nil {
			a.log.Printf("push channel: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.backoff):
		}
	}
}

func (a *Agent) listenOnce(ctx context.Context, url string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the socket when ctx ends so the read below unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	synced := false
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := protocol.DecodeEvent(msg)
		if err != nil {
			continue
		}
		if !synced {
			// The first frame must be the full state; it makes any events
			// missed while disconnected irrelevant.
			if ev.Type != protocol.TypeHello {
				return fmt.Errorf("expected hello, got %q", ev.Type)
			}
			var hello protocol.HelloData
			if err := json.Unmarshal(ev.Data, &hello); err != nil {
				return err
			}
			a.state.applyHello(hello)
			synced = true
			continue
		}
		switch ev.Type {
		case protocol.TypeIdeaNew:
			var idea protocol.Idea
			if err := json.Unmarshal(ev.Data, &idea); err != nil {
				continue
			}
			a.state.appendIdea(idea)
		case protocol.TypeHeaderSet:
			var header string
			if err := json.Unmarshal(ev.Data, &header); err != nil {
				continue
			}
			a.state.setHeader(header)
		}
	}
}

// pollLoop re-fetches the full list on a fixed period and replaces the local
// copy only when the counts differ. Deliberately coarse: a content mismatch
// with equal counts goes undetected until the next push or reconnect.
func (a *Agent) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ideas, err := a.fetchIdeas(ctx)
			if err != nil {
				continue
			}
			if len(ideas) != a.state.Count() {
				a.state.replaceIdeas(ideas)
			}
		}
	}
}

func (a *Agent) fetchIdeas(ctx context.Context) ([]protocol.Idea, error) {
	var ideas []protocol.Idea
	if err := a.getJSON(ctx, a.baseURL+"/ideas", &ideas); err != nil {
		return nil, err
	}
	return ideas, nil
}

func (a *Agent) fetchHeader(ctx context.Context) (string, error) {
	var resp protocol.HeaderResponse
	if err := a.getJSON(ctx, a.baseURL+"/header", &resp); err != nil {
		return "", err
	}
	return resp.Header, nil
}

func (a *Agent) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := a.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (a *Agent) wsURL() string {
	url := a.baseURL
	switch {
	case strings.HasPrefix(url, "https"):
		url = "wss" + strings.TrimPrefix(url, "https")
	case strings.HasPrefix(url, "http"):
		url = "ws" + strings.TrimPrefix(url, "http")
	}
	return url + "/ws"
}
