package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"hirequote-cloud/store"
)

// registerQuoteDebugRoutes exposes the raw provider and model payloads kept
// alongside a quote record, for support and adapter-mapping investigations.
func registerQuoteDebugRoutes(r *mux.Router, quotes *store.QuoteStore, debug *store.DebugStore) {
	r.HandleFunc("/admin/quotes/{quoteID}/debug", func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimSpace(mux.Vars(req)["quoteID"])
		if id == "" {
			http.Error(w, "quote id is required", http.StatusBadRequest)
			return
		}
		if _, err := quotes.Load(req.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "quote not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		payloads, err := debug.List(req.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		// Provider payloads are JSON already; embed them unquoted so the
		// dump stays readable. Anything else is served as a JSON string.
		out := make(map[string]json.RawMessage, len(payloads))
		for variant, raw := range payloads {
			if json.Valid([]byte(raw)) {
				out[variant] = json.RawMessage(raw)
				continue
			}
			quoted, _ := json.Marshal(raw)
			out[variant] = quoted
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"quote_id": id,
			"payloads": out,
			"count":    len(out),
		})
	}).Methods("GET")
}
