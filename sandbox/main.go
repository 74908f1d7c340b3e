package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	Service string `json:"service"`
}

const VERSION = "0.0.1"

// The sandbox stands in for every upstream the cloud server calls: the eight
// provider cost APIs, the OAuth2 token endpoint, the enhancement model and
// the FX rates API. Point the server here for local runs:
//
//	PROVIDERS_CONFIG=sandbox/providers.sandbox.yaml
//	ENHANCE_API_URL=http://localhost:9090/v1/chat/completions
//	FX_API_URL=http://localhost:9090/rates
func main() {
	cfg := sandboxConfigFromEnv()

	r := mux.NewRouter()

	// Health check endpoint
	r.HandleFunc("/healthz", healthHandler).Methods("GET")
	registerSandboxRoutes(r, cfg)

	port := strings.TrimSpace(os.Getenv("SANDBOX_PORT"))
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{
		Handler:      r,
		Addr:         "0.0.0.0:" + port,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	log.Printf("HireQuote provider sandbox v%s starting on %s", VERSION, srv.Addr)
	if len(cfg.fail) > 0 || len(cfg.rateLimit) > 0 || cfg.latency > 0 {
		log.Printf("Fault injection: fail=%v rate_limit=%v latency=%s", keys(cfg.fail), keys(cfg.rateLimit), cfg.latency)
	}
	log.Fatal(srv.ListenAndServe())
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := HealthResponse{
		OK:      true,
		Version: VERSION,
		Service: "hirequote-sandbox",
	}

	json.NewEncoder(w).Encode(response)
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
