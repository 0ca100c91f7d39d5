package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"webhook-migrate/internal/config"
	"webhook-migrate/internal/failure"
	"webhook-migrate/internal/ioformats"
	"webhook-migrate/internal/jobs"
	"webhook-migrate/internal/metrics"
	"webhook-migrate/internal/migrate"
	"webhook-migrate/pkg/logger"
)

type migrationReq struct {
	Backup    json.RawMessage `json:"backup"`
	From      string          `json:"from"`
	UploadURL string          `json:"uploadUrl"`
	SiteName  string          `json:"siteName"`
	SecretKey string          `json:"secretKey"`
}

type server struct {
	store    *jobs.Store
	observer *metrics.Collector
	getenv   func(string) string
}

func main() {
	l := logger.New(os.Getenv("WEBHOOK_DEBUG") != "")
	if err := config.LoadDotEnv(".env"); err != nil {
		l.WithError(err).Warn("ignoring .env")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	s := &server{
		store:    jobs.NewStore(ctx, 1024, 24*time.Hour, l),
		observer: metrics.New(reg),
		getenv:   os.Getenv,
	}

	addr := ":8080"
	srv := &http.Server{
		Addr:         addr,
		Handler:      logRequest(l, s.routes(reg)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		l.Infof("server listening on %s", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	l.Infof("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	cancel()
	s.store.Wait()
	l.Infof("bye")
}

func (s *server) routes(reg *prometheus.Registry) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	// POST /migrations  { "backup": {...}, "from": "...", "siteName": "...", "secretKey": "..." }
	r.HandleFunc("/migrations", s.startMigration).Methods("POST")
	r.HandleFunc("/migrations/{id}", s.getMigration).Methods("GET")
	return r
}

func (s *server) startMigration(w http.ResponseWriter, r *http.Request) {
	var req migrationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Backup) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	backup, err := ioformats.DecodeBackup(bytes.NewReader(req.Backup))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	cfg := config.Config{
		MigrateFrom: req.From,
		UploadURL:   req.UploadURL,
		SiteName:    req.SiteName,
		SecretKey:   req.SecretKey,
	}
	cfg.ApplyEnv(s.getenv)
	cfg.ApplyDefaults()

	id, err := s.store.Start(backup, migrate.Options{
		MigrateFrom: cfg.MigrateFrom,
		UploadURL:   cfg.UploadURL,
		SiteName:    cfg.SiteName,
		SecretKey:   cfg.SecretKey,
		Observer:    s.observer,
	})
	if failure.Is(err, failure.KindMissingConfiguration) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *server) getMigration(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.Get(mux.Vars(r)["id"])
	if errors.Is(err, jobs.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func logRequest(l logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		l.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"elapsed": time.Since(start).String(),
		}).Info("request")
	})
}
