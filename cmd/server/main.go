package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tasks "github.com/tutorlink/chat-service/internal/Tasks"
	"github.com/tutorlink/chat-service/internal/auth"
	"github.com/tutorlink/chat-service/internal/chat"
	"github.com/tutorlink/chat-service/internal/config"
	"github.com/tutorlink/chat-service/internal/db"
	"github.com/tutorlink/chat-service/internal/logger"
	"github.com/tutorlink/chat-service/internal/repository"
)

func main() {
	cfg := config.Load()
	logger.Setup(cfg.Env, cfg.LogLevel)

	pool, err := db.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	membership := repository.NewMembershipRepo(pool)
	messages := repository.NewMessageRepo(pool)
	pairings := repository.NewPairingRepo(pool)
	verifier := auth.NewVerifier(cfg.AuthKey)

	registry := chat.NewRegistry()
	chatServer := chat.NewServer(registry, verifier, membership, messages, pairings)

	syncer := tasks.NewMembershipSyncer(membership)
	if err := syncer.Start(); err != nil {
		log.Fatalf("failed to schedule membership sync: %v", err)
	}
	defer syncer.Stop()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: chatServer.Routes(),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("chat server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	slog.Info("shutdown signal received")

	// Closing the registered transports drives every live session through
	// its normal teardown path before the listener stops.
	registry.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("http shutdown incomplete", "err", err)
	}
	slog.Info("graceful shutdown complete")
}
