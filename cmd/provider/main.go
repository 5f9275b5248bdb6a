package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alex-user-go/hutavail/internal/availability/types"
	"github.com/alex-user-go/hutavail/internal/logging"
	"github.com/alex-user-go/hutavail/internal/providers/suedtirol/suedtiroltest"
)

// Mock Booking Südtirol upstream. Every property listed in PROPERTIES gets random
// rooms and availability for the next DAYS nights.
func main() {
	port := getEnv("PORT", "9001")
	logger := logging.New("mock-bookingsuedtirol", getEnv("LOG_LEVEL", "info"), os.Stdout)

	opts := []suedtiroltest.Option{
		suedtiroltest.WithLatency(50*time.Millisecond, 200*time.Millisecond),
		suedtiroltest.WithFailureRate(getFloat("FAILURE_RATE", 0.1)),
		suedtiroltest.WithMalformedRate(getFloat("MALFORMED_RATE", 0.02)),
		suedtiroltest.WithLogger(logger),
	}
	if getEnv("LENS_CONFLICTS", "") == "true" {
		opts = append(opts, suedtiroltest.WithLensConflicts())
	}
	if seed := getEnv("SEED", ""); seed != "" {
		n, err := strconv.ParseInt(seed, 10, 64)
		if err != nil {
			logger.Error("invalid SEED", "value", seed)
			os.Exit(1)
		}
		opts = append(opts, suedtiroltest.WithSeed(n))
	}

	fake := suedtiroltest.NewServer(opts...)
	days := int(getFloat("DAYS", 365))
	for _, id := range strings.Split(getEnv("PROPERTIES", "10394,10841,11002"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			fake.Generate(id, types.Today(), days)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/properties/", fake)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write healthz response", "error", err)
		}
	})

	addr := ":" + port
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}
