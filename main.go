package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"hirequote-cloud/engine"
	"hirequote-cloud/enhance"
	"hirequote-cloud/events"
	"hirequote-cloud/fx"
	"hirequote-cloud/providers"
	"hirequote-cloud/store"
)

type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	Service string `json:"service"`
}

const VERSION = "0.0.1"

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	log.Println("Starting HireQuote Cloud Server...")

	ctx := context.Background()
	redisClient, err := store.InitRedis(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	defer redisClient.Close()
	log.Printf("Redis connected (%s)", redisClient.Options().Addr)

	// Provider catalog and adapters
	catalogPath := getEnv("PROVIDERS_CONFIG", "providers.yaml")
	catalog, err := providers.LoadCatalog(catalogPath)
	if err != nil {
		log.Fatalf("Failed to load provider catalog %s: %v", catalogPath, err)
	}
	registry, err := providers.NewRegistry(ctx, catalog)
	if err != nil {
		log.Fatalf("Failed to build provider registry: %v", err)
	}
	log.Printf("Loaded %d providers (primary: %s)", len(registry.IDs()), registry.Primary())

	// Enhancement model client
	enhancer, err := enhance.NewClient()
	if err != nil {
		log.Fatalf("Failed to init enhancement client: %v", err)
	}

	// Stores, FX converter and the per-quote event bus
	quoteStore := store.NewQuoteStore(redisClient)
	debugStore := store.NewDebugStore(redisClient, quoteStore)
	converter := fx.NewConverter(redisClient)
	bus := events.NewBus(redisClient, quoteStore.TTL())

	// Quote session manager
	manager, err := engine.NewManager(engine.Deps{
		Registry:  registry,
		Enhancer:  enhancer,
		Converter: converter,
		Store:     quoteStore,
		Debug:     debugStore,
		Bus:       bus,
	}, engine.ConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to init quote manager: %v", err)
	}
	manager.Start()

	r := mux.NewRouter()

	// Health check endpoint
	r.HandleFunc("/healthz", healthHandler).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	registerQuoteRoutes(r, manager, quoteStore)
	registerQuoteEventRoutes(r, manager, bus)
	registerQuoteDebugRoutes(r, quoteStore, debugStore)

	// Configure server
	port := getEnv("PORT", "8080")
	srv := &http.Server{
		Handler:      r,
		Addr:         "0.0.0.0:" + port,
		WriteTimeout: 180 * time.Second,
		ReadTimeout:  180 * time.Second,
	}

	log.Printf("HireQuote Cloud Server v%s starting on %s", VERSION, srv.Addr)

	// Setup graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Close live quote sessions before the listener goes away
	manager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := HealthResponse{
		OK:      true,
		Version: VERSION,
		Service: "hirequote-cloud",
	}

	json.NewEncoder(w).Encode(response)
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]string{
		"message": "HireQuote Cloud API Server",
		"version": VERSION,
		"docs":    "/docs",
	}

	json.NewEncoder(w).Encode(response)
}

// Helper function to get environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
