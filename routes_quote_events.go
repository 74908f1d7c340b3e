package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"hirequote-cloud/engine"
	"hirequote-cloud/events"
	"hirequote-cloud/store"
)

// quoteEventsHandler streams the per-quote status stream to the browser over
// SSE or WebSocket. Connecting resumes the session like any other read, so a
// reloaded page gets its calculators re-driven just by reattaching the feed,
// and an open feed counts as activity for the idle janitor.
type quoteEventsHandler struct {
	manager *engine.Manager
	bus     *events.Bus
}

func registerQuoteEventRoutes(r *mux.Router, manager *engine.Manager, bus *events.Bus) {
	h := &quoteEventsHandler{manager: manager, bus: bus}
	r.HandleFunc("/api/quotes/{quoteID}/events", h.handleSSE).Methods("GET")
	r.HandleFunc("/api/quotes/{quoteID}/ws", h.handleWebSocket).Methods("GET")
}

// attach resolves the quote's live session. A missing record 404s; an
// unusable record still tails the stream, which carries its error status.
func (h *quoteEventsHandler) attach(w http.ResponseWriter, r *http.Request) (string, *engine.Session, bool) {
	id := strings.TrimSpace(mux.Vars(r)["quoteID"])
	if id == "" {
		http.Error(w, "quote id is required", http.StatusBadRequest)
		return "", nil, false
	}

	sess, err := h.manager.Resume(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "quote not found", http.StatusNotFound)
			return "", nil, false
		}
		sess = nil
	}
	return id, sess, true
}

func (h *quoteEventsHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		http.Error(w, "status stream unavailable", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	quoteID, sess, ok := h.attach(w, r)
	if !ok {
		return
	}
	lastID := strings.TrimSpace(r.URL.Query().Get("after"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
			continue
		default:
		}

		evts, nextID, err := h.bus.Tail(ctx, quoteID, lastID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("quote events tail error for %s: %v", quoteID, err)
			time.Sleep(300 * time.Millisecond)
			continue
		}
		if sess != nil {
			sess.Touch()
		}

		if len(evts) == 0 {
			continue
		}

		lastID = nextID
		for _, evt := range evts {
			payload, err := json.Marshal(evt)
			if err != nil {
				log.Printf("quote events encode error: %v", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\n", evt.ID)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

var quoteWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Client is trusted (output-only surface).
		return true
	},
}

func (h *quoteEventsHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		http.Error(w, "status stream unavailable", http.StatusServiceUnavailable)
		return
	}

	quoteID, sess, ok := h.attach(w, r)
	if !ok {
		return
	}
	lastID := strings.TrimSpace(r.URL.Query().Get("after"))

	conn, err := quoteWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()

	for {
		evts, nextID, err := h.bus.Tail(ctx, quoteID, lastID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			time.Sleep(300 * time.Millisecond)
			continue
		}
		if sess != nil {
			sess.Touch()
		}
		if len(evts) == 0 {
			continue
		}

		lastID = nextID
		for _, evt := range evts {
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}
