package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/faciam-dev/gcadmin/internal/audit"
	"github.com/faciam-dev/gcadmin/internal/config"
	"github.com/faciam-dev/gcadmin/internal/logger"
	"github.com/faciam-dev/gcadmin/internal/server"
	"github.com/faciam-dev/gcadmin/pkg/migrator"
	"github.com/faciam-dev/gcadmin/pkg/util"
)

func main() {
	dsn := flag.String("dsn", util.GetEnv("ADMIN_DSN", ""), "database DSN; empty serves from memory")
	driver := flag.String("driver", "", "database driver (postgres or mysql); detected from the DSN when empty")
	tblPrefix := flag.String("table-prefix", util.GetEnv("TABLE_PREFIX", config.DefaultTablePrefix), "prefix of the engine's own tables")
	addr := flag.String("addr", ":8080", "listen address")
	site := flag.String("site", util.GetEnv("ADMIN_SITE", "site.yaml"), "site definition YAML")
	widgetDir := flag.String("widgets", util.GetEnv("ADMIN_WIDGET_DIR", ""), "widget alias directory")
	reservedFile := flag.String("reserved", "", "reserved table patterns YAML")
	createTables := flag.Bool("create-tables", false, "create missing model tables")
	migrate := flag.Bool("migrate", false, "apply engine table migrations before serving")
	redisURL := flag.String("redis", util.GetEnv("ADMIN_REDIS_URL", ""), "Redis URL for the background action queue")
	workers := flag.Int("workers", 2, "background action workers")
	accessPerm := flag.String("access-perm", util.GetEnv("ADMIN_ACCESS_PERM", ""), "permission required for every operation")
	retention := flag.Duration("audit-retention", 0, "delete action runs older than this every night (0 keeps everything)")
	openapi := flag.String("openapi", "", "write OpenAPI JSON and exit")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger.Set(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	resolved, err := util.ResolveDriver(*driver, *dsn)
	if err != nil {
		logger.L.Error("resolve driver", "err", err)
		os.Exit(1)
	}
	*driver = resolved

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if *dsn != "" {
		conn, err := util.DriverDSN(*driver, *dsn)
		if err != nil {
			logger.L.Error("db dsn", "err", err)
			os.Exit(1)
		}
		db, err = sql.Open(*driver, conn)
		if err != nil {
			logger.L.Error("db open", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if *migrate {
			m := migrator.New(*driver, *tblPrefix)
			if err := m.Up(ctx, db, 0); err != nil {
				logger.L.Error("migrate", "err", err)
				os.Exit(1)
			}
		}
		if err := config.CheckPrefix(ctx, db, util.DialectFromDriver(*driver), *tblPrefix); err != nil {
			logger.L.Error("prefix check", "err", err)
			os.Exit(1)
		}
	}

	cfg := server.Config{
		DB:           server.DBConfig{Driver: *driver, DSN: *dsn, TablePrefix: *tblPrefix},
		SiteFile:     *site,
		WidgetDir:    *widgetDir,
		ReservedFile: *reservedFile,
		CreateTables: *createTables,
		RedisURL:     *redisURL,
		Workers:      *workers,
		EventsConfig: os.Getenv("ADMIN_EVENTS_CONFIG"),
		AccessPerm:   *accessPerm,
	}
	app, err := server.New(ctx, db, cfg)
	if err != nil {
		logger.L.Error("start", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	if *openapi != "" {
		data, err := json.MarshalIndent(app.API.OpenAPI(), "", "  ")
		if err != nil {
			logger.L.Error("marshal openapi", "err", err)
			os.Exit(1)
		}
		if err := os.WriteFile(filepath.Clean(*openapi), data, 0o600); err != nil {
			logger.L.Error("write openapi", "err", err)
			os.Exit(1)
		}
		return
	}

	if db != nil && *retention > 0 {
		rec := &audit.Recorder{DB: db, Driver: *driver, TablePrefix: *tblPrefix}
		s := gocron.NewScheduler(time.UTC)
		if _, err := s.Cron("0 3 * * *").Do(func() {
			n, err := rec.PruneRuns(context.Background(), time.Now().Add(-*retention))
			if err != nil {
				logger.L.Error("prune action runs", "err", err)
				return
			}
			logger.L.Info("pruned action runs", "rows", n)
		}); err != nil {
			logger.L.Error("schedule prune", "err", err)
		}
		s.StartAsync()
		defer s.Stop()
	}

	logger.L.Info("listening", "addr", *addr)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      app.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.L.Error("server error", "err", err)
		os.Exit(1)
	}
}
