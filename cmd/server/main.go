package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"ideawall.live/internal/config"
	"ideawall.live/internal/hub"
	"ideawall.live/internal/persistence/eventlog"
	"ideawall.live/internal/persistence/indexdb"
	"ideawall.live/internal/persistence/store"
	"ideawall.live/internal/transport/ws"
	"ideawall.live/internal/wall"
)

func main() {
	var (
		addr       = flag.String("addr", ":8000", "http listen address")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		configPath = flag.String("config", "./configs/wall.yaml", "tuning config path (optional)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	pin := strings.TrimSpace(os.Getenv("EVENT_PIN"))
	if pin == "" {
		logger.Printf("EVENT_PIN not set; all submissions will be rejected until it is configured")
	}

	files := store.NewFileStore(*dataDir)
	if err := files.Bootstrap(); err != nil {
		logger.Fatalf("bootstrap data dir: %v", err)
	}

	w := wall.New(files, wall.Options{
		MaxAuthorLen: tune.MaxAuthorLen,
		MaxTextLen:   tune.MaxTextLen,
	})
	if err := w.Load(); err != nil {
		logger.Fatalf("warm cache: %v", err)
	}
	logger.Printf("loaded %d ideas from snapshot", w.Count())

	h := hub.New(logger, tune.HubQueueSize)

	var events *eventlog.Logger
	if !tune.DisableEventLog {
		events = eventlog.NewLogger(*dataDir)
		defer events.Close()
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "ideas.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	a := &app{
		log:    logger,
		wall:   w,
		hub:    h,
		files:  files,
		events: events,
		idx:    idx,
		pin:    pin,
	}

	mux := http.NewServeMux()
	a.routes(mux)
	mux.HandleFunc("/ws", ws.NewServer(w, h, logger).Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.metricsHandler())

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func (a *app) metricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP ideawall_ideas_total Ideas currently held.\n")
		fmt.Fprintf(rw, "# TYPE ideawall_ideas_total gauge\n")
		fmt.Fprintf(rw, "ideawall_ideas_total %d\n", a.wall.Count())

		hs := a.hub.Stats()
		fmt.Fprintf(rw, "# HELP ideawall_subscribers Connected push subscribers.\n")
		fmt.Fprintf(rw, "# TYPE ideawall_subscribers gauge\n")
		fmt.Fprintf(rw, "ideawall_subscribers %d\n", hs.Subscribers)

		fmt.Fprintf(rw, "# HELP ideawall_broadcasts_total Broadcasts since start.\n")
		fmt.Fprintf(rw, "# TYPE ideawall_broadcasts_total counter\n")
		fmt.Fprintf(rw, "ideawall_broadcasts_total %d\n", hs.BroadcastTotal)

		fmt.Fprintf(rw, "# HELP ideawall_evictions_total Subscribers evicted for stalling.\n")
		fmt.Fprintf(rw, "# TYPE ideawall_evictions_total counter\n")
		fmt.Fprintf(rw, "ideawall_evictions_total %d\n", hs.EvictTotal)

		if a.idx != nil {
			is := a.idx.Stats()
			fmt.Fprintf(rw, "# HELP ideawall_index_queue_depth Index writer queue depth.\n")
			fmt.Fprintf(rw, "# TYPE ideawall_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "ideawall_index_queue_depth %d\n", is.QueueDepth)

			fmt.Fprintf(rw, "# HELP ideawall_index_dropped_total Index writes dropped under load.\n")
			fmt.Fprintf(rw, "# TYPE ideawall_index_dropped_total counter\n")
			fmt.Fprintf(rw, "ideawall_index_dropped_total %d\n", is.DropIdeaTotal+is.DropHeaderTotal)
		}
	}
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
