// main is the entry point of the Students API application.
//
// STARTUP SEQUENCE:
//  1. Load configuration from a YAML file
//  2. Initialise the logger
//  3. Open one record store per student kind (CSV files or SQLite)
//  4. Register all HTTP routes
//  5. Start the HTTP server in a separate goroutine
//  6. Block the main goroutine until an OS signal (Ctrl+C / kill) arrives
//  7. Gracefully shut down: finish in-flight requests, then exit
//
// RUNNING THE SERVER:
//
//	go run ./cmd/students-api --config=config/local.yaml
//
// or (with the environment variable):
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/students-api
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aanand-mishra/student-management-api/internal/config"
	"github.com/aanand-mishra/student-management-api/internal/http/handlers/student"
	"github.com/aanand-mishra/student-management-api/internal/storage"
	"github.com/aanand-mishra/student-management-api/internal/storage/csvfile"
	"github.com/aanand-mishra/student-management-api/internal/storage/sqlite"
	"github.com/aanand-mishra/student-management-api/internal/types"
)

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	// MustLoad exits if anything is wrong: if it returns, cfg is valid.
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// Installed as the default so the handlers' slog.Info calls use it.
	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("starting students-api",
		slog.String("env", cfg.Env),
		slog.String("version", "1.0.0"),
	)

	// ── 3. Initialise Storage ─────────────────────────────────────────────
	// Each kind gets its own store, held as the storage.Store INTERFACE so
	// the handlers never learn which backend is behind it.
	stores, closer, err := openStores(cfg)
	if err != nil {
		log.Error("failed to initialise storage",
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closer.Close()

	log.Info("storage initialised",
		slog.String("path", cfg.StoragePath),
		slog.String("backend", cfg.StorageBackend))

	// ── 4. Register HTTP Routes ───────────────────────────────────────────
	// Every kind gets the same six routes (see student.Register):
	//   POST   /api/{kind}          create one
	//   POST   /api/{kind}/batch    create many
	//   GET    /api/{kind}          list all
	//   GET    /api/{kind}/{id}     get one by studentId
	//   PUT    /api/{kind}/{id}     replace one
	//   DELETE /api/{kind}/{id}     delete one
	router := http.NewServeMux()

	student.Register(router, "/api/students",
		student.NewResource("student", stores.students))
	student.Register(router, "/api/undergraduates",
		student.NewResource("undergraduate", stores.undergraduates))
	student.Register(router, "/api/scientifics",
		student.NewResource("scientific initiation student", stores.scientifics))
	student.Register(router, "/api/postgraduates",
		student.NewResource("postgraduate", stores.postgraduates))

	// ── 5. Create the HTTP Server ─────────────────────────────────────────
	server := &http.Server{
		Addr:    cfg.HTTPServer.Addr,
		Handler: router,

		// Production hardening — set timeouts to prevent slow-client attacks.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── 6. Start Server in a Goroutine ────────────────────────────────────
	// ListenAndServe blocks, so it runs in its own goroutine and main
	// stays free to wait for the shutdown signal.
	go func() {
		log.Info("server started", slog.String("address", cfg.HTTPServer.Addr))

		// ListenAndServe returns http.ErrServerClosed when Shutdown() is
		// called. That's expected — we don't want to log it as an error.
		if err := server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.Error("server encountered an error",
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// ── 7. Wait for Shutdown Signal ───────────────────────────────────────
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	log.Info("shutdown signal received, stopping server...")

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
	// In-flight requests get 5 seconds to finish. Stores are closed by
	// the deferred closer.Close once main returns.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown server gracefully",
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("server stopped gracefully")
}

// stores holds one record store per student kind.
type stores struct {
	students       storage.Store[types.Student]
	undergraduates storage.Store[types.Undergraduate]
	scientifics    storage.Store[types.ScientificInitiation]
	postgraduates  storage.Store[types.PostGraduate]
}

// Backing file (csv) and table (sqlite) names per kind.
const (
	studentsName       = "students"
	undergraduatesName = "undergraduates"
	scientificsName    = "scientifics"
	postgraduatesName  = "postgraduates"
)

// openStores creates the storage directory and opens the four stores on
// the configured backend. The returned io.Closer releases whatever the
// backend holds open.
func openStores(cfg *config.Config) (stores, io.Closer, error) {
	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return stores{}, nil, fmt.Errorf("create storage dir: %w: %w", storage.ErrFileAccess, err)
	}

	switch cfg.StorageBackend {
	case config.BackendSQLite:
		return openSQLite(filepath.Join(cfg.StoragePath, "students.db"))
	default:
		s, err := openCSV(cfg.StoragePath)
		return s, io.NopCloser(nil), err
	}
}

func openCSV(dir string) (stores, error) {
	var (
		s   stores
		err error
	)
	path := func(name string) string { return filepath.Join(dir, name+".csv") }

	if s.students, err = csvfile.New[types.Student](
		path(studentsName), types.StudentFields, types.IDField); err != nil {
		return stores{}, err
	}
	if s.undergraduates, err = csvfile.New[types.Undergraduate](
		path(undergraduatesName), types.UndergraduateFields, types.IDField); err != nil {
		return stores{}, err
	}
	if s.scientifics, err = csvfile.New[types.ScientificInitiation](
		path(scientificsName), types.ScientificInitiationFields, types.IDField); err != nil {
		return stores{}, err
	}
	if s.postgraduates, err = csvfile.New[types.PostGraduate](
		path(postgraduatesName), types.PostGraduateFields, types.IDField); err != nil {
		return stores{}, err
	}
	return s, nil
}

func openSQLite(path string) (stores, io.Closer, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return stores{}, nil, err
	}

	var s stores
	fail := func(err error) (stores, io.Closer, error) {
		db.Close()
		return stores{}, nil, err
	}

	if s.students, err = sqlite.New[types.Student](
		db, studentsName, types.StudentFields, types.IDField); err != nil {
		return fail(err)
	}
	if s.undergraduates, err = sqlite.New[types.Undergraduate](
		db, undergraduatesName, types.UndergraduateFields, types.IDField); err != nil {
		return fail(err)
	}
	if s.scientifics, err = sqlite.New[types.ScientificInitiation](
		db, scientificsName, types.ScientificInitiationFields, types.IDField); err != nil {
		return fail(err)
	}
	if s.postgraduates, err = sqlite.New[types.PostGraduate](
		db, postgraduatesName, types.PostGraduateFields, types.IDField); err != nil {
		return fail(err)
	}
	return s, db, nil
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	default: // "dev" and anything unrecognised
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	}
}
