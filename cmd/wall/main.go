package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ideawall.live/internal/config"
	"ideawall.live/internal/wallclient"
)

// Terminal wall display. Mirrors the server's state over the push channel and
// redraws the whole screen on every change.
func main() {
	var (
		api        = flag.String("api", "http://127.0.0.1:8000", "server base URL")
		configPath = flag.String("config", "./configs/wall.yaml", "tuning config path (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[wall] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	var state *wallclient.State
	state = wallclient.NewState(func() { render(state) })

	agent := wallclient.NewAgent(*api, state, logger, wallclient.AgentOptions{
		ReconnectBackoff: tune.ReconnectBackoff(),
		PollInterval:     tune.PollInterval(),
	})

	ctx, cancel := signalContext()
	defer cancel()

	agent.FetchInitial(ctx)
	render(state)
	agent.Run(ctx)
}

func render(s *wallclient.State) {
	var b strings.Builder
	// ANSI clear + home.
	b.WriteString("\033[2J\033[H")
	header := s.Header()
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("=", len(header)) + "\n\n")
	ideas := s.Ideas()
	if len(ideas) == 0 {
		b.WriteString("  (no ideas yet)\n")
	}
	for _, idea := range ideas {
		fmt.Fprintf(&b, "  %3d. %s  -- %s\n", idea.ID, idea.Text, idea.Author)
	}
	fmt.Fprintf(&b, "\n%d ideas\n", len(ideas))
	os.Stdout.WriteString(b.String())
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
