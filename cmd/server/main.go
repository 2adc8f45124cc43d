package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/querypilot/querypilot/internal/agent"
	"github.com/querypilot/querypilot/internal/api"
	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/db"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/logger"
	"github.com/querypilot/querypilot/internal/memory"
	"github.com/querypilot/querypilot/internal/rag"
	"github.com/querypilot/querypilot/internal/session"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	logger.Init(config.AppConfig.LogFile, config.AppConfig.AppEnv == "production")
	defer logger.Sync()
	log := logger.Named("main")

	ctx := context.Background()

	// Initialize LLM client
	client, err := llm.NewClient(ctx, config.AppConfig.GeminiAPIKey)
	if err != nil {
		log.Fatalw("failed to initialize LLM client", "error", err)
	}
	defer client.Close()

	// Initialize vector index
	index, err := rag.NewIndex(ctx, config.AppConfig.VectorDBURL)
	if err != nil {
		log.Fatalw("failed to initialize vector index", "error", err)
	}
	defer index.Close()

	// Initialize shared state
	mem := memory.NewStore()
	sessions := session.NewStore()
	registry := db.NewRegistry(config.AppConfig.DataDir)
	defer registry.CloseAll()

	// Initialize the two tool paths
	retriever := rag.NewRetriever(index, client)
	pipeline := rag.NewPipeline(retriever, client, mem,
		config.AppConfig.BaseUploadURL,
		config.AppConfig.ChunkSize,
		config.AppConfig.ChunkOverlap)
	executor := db.NewExecutor(registry, client, mem)

	// Initialize the routing engine
	finalizer := agent.NewFinalizer(client, mem, pipeline, executor)
	orchestrator := agent.NewOrchestrator(client, pipeline, executor, finalizer)

	// Initialize API handler and router
	uploadDir := filepath.Join(config.AppConfig.DataDir, "uploads")
	apiHandler := api.NewAPIHandler(orchestrator, pipeline, registry, mem, sessions, uploadDir)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infow("starting server", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("could not listen", "addr", serverAddr, "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Infow("server exited gracefully")
}
