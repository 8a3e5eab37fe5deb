package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/api"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/app"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/services"
)

func main() {
	cfg, err := config.Load(os.Getenv("CARDSYNC_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer application.Close()

	registry, err := services.NewRunRegistry(cfg.Server.RunHistory)
	if err != nil {
		log.Fatalf("Failed to create run registry: %v", err)
	}
	runner := services.NewRunner(application.Cards, application.JP, registry, application.Snapshots)

	router := api.SetupRouter(cfg.Server, runner)

	port := cfg.Server.Port
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()

	// Stop accepting new runs first, then cancel in-flight ones.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	registry.Shutdown()

	log.Println("Server exited")
}
