package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/TemirB/order-service/internal/logger"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	brokers := []string{"kafka:9092"}
	if env := os.Getenv("KAFKA_BROKERS"); env != "" {
		brokers = strings.Split(env, ",")
	}
	topic := "orders"
	if env := os.Getenv("KAFKA_TOPIC"); env != "" {
		topic = env
	}
	addr := ":8082"
	if env := os.Getenv("LOADGEN_PORT"); env != "" {
		addr = ":" + env
	}

	gen := NewLoadgen(NewKafkaWriter(brokers, topic), log)
	defer func() {
		if err := gen.Close(); err != nil {
			log.Warn("close writer", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(gen),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("loadgen listening",
		zap.String("addr", addr),
		zap.Strings("brokers", brokers),
		zap.String("topic", topic),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("listen", zap.Error(err))
	}
}

func newRouter(gen *Loadgen) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		var duration time.Duration
		if req.Duration != "" {
			d, err := time.ParseDuration(req.Duration)
			if err != nil {
				http.Error(w, "Invalid duration format: "+err.Error(), http.StatusBadRequest)
				return
			}
			duration = d
		}

		if !gen.Start(req.Rate, duration) {
			http.Error(w, "already running", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusAccepted, gen.Stats())
	})

	r.Post("/stop", func(w http.ResponseWriter, _ *http.Request) {
		gen.Stop()
		writeJSON(w, http.StatusOK, gen.Stats())
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, gen.Stats())
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
