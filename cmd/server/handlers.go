package main

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"ideawall.live/internal/hub"
	"ideawall.live/internal/persistence/eventlog"
	"ideawall.live/internal/persistence/indexdb"
	"ideawall.live/internal/persistence/store"
	"ideawall.live/internal/protocol"
	"ideawall.live/internal/wall"
)

// app owns the request-handling context: the wall (serializer + cache), the
// hub, and the side-channel sinks. No package-level mutable state.
type app struct {
	log   *log.Logger
	wall  *wall.Wall
	hub   *hub.Hub
	files *store.FileStore

	events *eventlog.Logger   // nil when the event log is disabled
	idx    *indexdb.SQLiteIndex // nil when -disable_db

	pin string
}

func (a *app) routes(mux *http.ServeMux) {
	mux.HandleFunc("/ideas", withCORS(a.handleIdeas))
	mux.HandleFunc("/header", withCORS(a.handleHeader))
	mux.HandleFunc("/export.csv", withCORS(a.handleExportCSV))
	mux.HandleFunc("/export.json", withCORS(a.handleExportJSON))
}

func (a *app) handleIdeas(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(rw, http.StatusOK, a.wall.Ideas())
	case http.MethodPost:
		a.handleSubmitIdea(rw, r)
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (a *app) handleSubmitIdea(rw http.ResponseWriter, r *http.Request) {
	if status, msg := a.checkPIN(r.PostFormValue("pin")); status != 0 {
		writeJSON(rw, status, protocol.SubmitResponse{OK: false, Error: msg})
		return
	}

	idea, err := a.wall.SubmitIdea(r.PostFormValue("author"), r.PostFormValue("text"))
	if err != nil {
		if err == wall.ErrEmptyFields {
			writeJSON(rw, http.StatusBadRequest, protocol.SubmitResponse{OK: false, Error: protocol.ErrMissingFields})
			return
		}
		a.log.Printf("submit idea: %v", err)
		writeJSON(rw, http.StatusInternalServerError, protocol.SubmitResponse{OK: false, Error: "Write failed."})
		return
	}

	a.notifyIdea(idea)
	writeJSON(rw, http.StatusCreated, protocol.SubmitResponse{OK: true, Idea: &idea})
}

func (a *app) handleHeader(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(rw, http.StatusOK, protocol.HeaderResponse{Header: a.wall.Header()})
	case http.MethodPost:
		if status, msg := a.checkPIN(r.PostFormValue("pin")); status != 0 {
			writeJSON(rw, status, protocol.SubmitResponse{OK: false, Error: msg})
			return
		}
		header, err := a.wall.SetHeader(r.PostFormValue("text"))
		if err != nil {
			a.log.Printf("set header: %v", err)
			writeJSON(rw, http.StatusInternalServerError, protocol.SubmitResponse{OK: false, Error: "Write failed."})
			return
		}
		a.notifyHeader(header)
		writeJSON(rw, http.StatusOK, protocol.SubmitResponse{OK: true})
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleExportCSV serves the raw audit log.
func (a *app) handleExportCSV(rw http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(a.files.CSVPath())
	if err != nil {
		http.Error(rw, "export unavailable", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "text/csv")
	_, _ = rw.Write(data)
}

// handleExportJSON serves the raw snapshot contents.
func (a *app) handleExportJSON(rw http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(a.files.JSONPath())
	if err != nil {
		http.Error(rw, "export unavailable", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_, _ = rw.Write(data)
}

// checkPIN gates every mutation. Returns (0, "") on success. An unset server
// PIN rejects everything: refusing writes beats taking them unprotected.
func (a *app) checkPIN(pin string) (int, string) {
	if a.pin == "" {
		return http.StatusInternalServerError, protocol.ErrPINNotSet
	}
	if subtle.ConstantTimeCompare([]byte(pin), []byte(a.pin)) != 1 {
		return http.StatusUnauthorized, protocol.ErrInvalidPIN
	}
	return 0, ""
}

// notifyIdea fans the accepted idea out to subscribers and the side-channel
// sinks. Runs after the wall's exclusive section has been released; nothing
// here can stall a concurrent writer. The flip side: two overlapping
// submissions can reach Broadcast in the opposite order of id assignment,
// and the client reconciliation poll bounds how long such a swap stays
// visible.
func (a *app) notifyIdea(idea protocol.Idea) {
	frame, err := protocol.EncodeIdeaNew(idea)
	if err != nil {
		a.log.Printf("encode idea.new: %v", err)
		return
	}
	a.hub.Broadcast(frame)
	if a.events != nil {
		if err := a.events.WriteEvent(protocol.TypeIdeaNew, idea); err != nil {
			a.log.Printf("event log: %v", err)
		}
	}
	a.idx.RecordIdea(idea)
}

func (a *app) notifyHeader(header string) {
	frame, err := protocol.EncodeHeaderSet(header)
	if err != nil {
		a.log.Printf("encode header.set: %v", err)
		return
	}
	a.hub.Broadcast(frame)
	if a.events != nil {
		if err := a.events.WriteEvent(protocol.TypeHeaderSet, header); err != nil {
			a.log.Printf("event log: %v", err)
		}
	}
	a.idx.RecordHeader(header)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

// withCORS mirrors the permissive policy of the original deployment: staff
// devices on event Wi-Fi post from whatever origin the intake page has.
func withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Access-Control-Allow-Origin", "*")
		rw.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		rw.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		next(rw, r)
	}
}
