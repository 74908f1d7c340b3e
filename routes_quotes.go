package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"hirequote-cloud/engine"
	"hirequote-cloud/quote"
	"hirequote-cloud/store"
)

type quoteHandler struct {
	manager *engine.Manager
	quotes  *store.QuoteStore
}

type startQuoteResponse struct {
	QuoteID string `json:"quote_id"`
	Status  string `json:"status"`
}

type quoteStatusResponse struct {
	QuoteID         string                          `json:"quote_id"`
	Status          string                          `json:"status"`
	Loading         bool                            `json:"loading"`
	CurrentProvider string                          `json:"current_provider"`
	ProviderStates  map[string]engine.ProviderState `json:"provider_states"`
	BatchInfo       engine.BatchInfo                `json:"batch_info"`
}

type providerActionRequest struct {
	Provider string `json:"provider"`
}

type switchResponse struct {
	OK              bool   `json:"ok"`
	QuoteID         string `json:"quote_id"`
	CurrentProvider string `json:"current_provider"`
}

type retryResponse struct {
	OK       bool   `json:"ok"`
	QuoteID  string `json:"quote_id"`
	Provider string `json:"provider"`
}

func registerQuoteRoutes(r *mux.Router, manager *engine.Manager, quotes *store.QuoteStore) {
	h := &quoteHandler{manager: manager, quotes: quotes}
	r.HandleFunc("/api/quotes", h.handleStart).Methods("POST")
	r.HandleFunc("/api/quotes/{quoteID}", h.handleGet).Methods("GET")
	r.HandleFunc("/api/quotes/{quoteID}/status", h.handleStatus).Methods("GET")
	r.HandleFunc("/api/quotes/{quoteID}/switch", h.handleSwitch).Methods("POST")
	r.HandleFunc("/api/quotes/{quoteID}/enhance/retry", h.handleRetryEnhancement).Methods("POST")
}

func (h *quoteHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var form quote.FormData
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	id, err := h.manager.StartCalculation(r.Context(), form)
	if err != nil {
		if errors.Is(err, quote.ErrIncompleteForm) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("start calculation failed: %v", err)
		http.Error(w, "failed to start calculation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(startQuoteResponse{
		QuoteID: id,
		Status:  string(quote.StatusCalculating),
	})
}

func (h *quoteHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["quoteID"])
	if id == "" {
		http.Error(w, "quote id is required", http.StatusBadRequest)
		return
	}

	sess, err := h.manager.Resume(r.Context(), id)
	if err == nil {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sess.Data())
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "quote not found", http.StatusNotFound)
		return
	}

	// The record exists but cannot drive a session (marked error). Serve it
	// as stored so the UI can render the failure.
	data, loadErr := h.quotes.Load(r.Context(), id)
	if loadErr != nil {
		log.Printf("load quote %s: %v", id, loadErr)
		http.Error(w, "failed to load quote", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (h *quoteHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["quoteID"])
	if id == "" {
		http.Error(w, "quote id is required", http.StatusBadRequest)
		return
	}

	sess, err := h.manager.Resume(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "quote not found", http.StatusNotFound)
			return
		}
		// Unusable record: terminal status, nothing in flight.
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(quoteStatusResponse{
			QuoteID:        id,
			Status:         string(quote.StatusError),
			ProviderStates: map[string]engine.ProviderState{},
		})
		return
	}

	resp := quoteStatusResponse{
		QuoteID:         id,
		Status:          string(sess.Data().Status),
		Loading:         sess.Loading(),
		CurrentProvider: sess.CurrentProvider(),
		ProviderStates:  sess.ProviderStates(),
		BatchInfo:       sess.BatchInfo(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *quoteHandler) handleSwitch(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	id := strings.TrimSpace(mux.Vars(r)["quoteID"])
	if id == "" {
		http.Error(w, "quote id is required", http.StatusBadRequest)
		return
	}

	var req providerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		http.Error(w, "provider is required", http.StatusBadRequest)
		return
	}

	sess, err := h.manager.Resume(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "quote not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	if err := sess.SwitchProvider(r.Context(), provider); err != nil {
		if errors.Is(err, engine.ErrSwitchRejected) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		// Switch accepted but the dual-currency fill failed and rolled back.
		log.Printf("switch %s -> %s failed: %v", id, provider, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(switchResponse{
		OK:              true,
		QuoteID:         id,
		CurrentProvider: sess.CurrentProvider(),
	})
}

func (h *quoteHandler) handleRetryEnhancement(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	id := strings.TrimSpace(mux.Vars(r)["quoteID"])
	if id == "" {
		http.Error(w, "quote id is required", http.StatusBadRequest)
		return
	}

	var req providerActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		http.Error(w, "provider is required", http.StatusBadRequest)
		return
	}

	sess, err := h.manager.Resume(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "quote not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	if err := sess.RetryEnhancement(provider); err != nil {
		if errors.Is(err, engine.ErrRetryRejected) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		log.Printf("enhancement retry %s/%s failed: %v", id, provider, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(retryResponse{
		OK:       true,
		QuoteID:  id,
		Provider: provider,
	})
}
