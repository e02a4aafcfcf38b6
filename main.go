package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaot623/manimate/internal/app"
	"github.com/xiaot623/manimate/internal/config"
	"github.com/xiaot623/manimate/internal/hub"
	"github.com/xiaot623/manimate/internal/service"
	handler "github.com/xiaot623/manimate/internal/transport/http"
	"github.com/xiaot623/manimate/internal/transport/ws"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting manimate...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Output dir: %s", cfg.OutputDir)
	if cfg.IsMock() {
		log.Printf("Mode: MOCK")
	}

	// A session whose last client disconnects has its run cancelled.
	var svc *service.Service
	connectionHub := hub.NewHub(func(sessionID string) {
		if svc != nil {
			svc.CancelSession(sessionID)
		}
	})

	ctx := context.Background()
	a, err := app.New(ctx, cfg, connectionHub)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()
	svc = a.Service

	go connectionHub.Run()

	wsServer := ws.NewServer(cfg, connectionHub, svc)
	server := handler.NewServer(cfg, svc, connectionHub, wsServer)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down manimate...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("manimate stopped")
}
