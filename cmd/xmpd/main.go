package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"example.com/xmpgate/internal/common"
	"example.com/xmpgate/internal/server"
	"example.com/xmpgate/internal/store"
)

func setupLogging(cfg config) (io.Closer, error) {
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logs.Directory, "xmpd.log"),
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	common.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator, nil
}

func main() {
	configPath := pflag.String("config", "config/config.yaml", "path to configuration file")
	addr := pflag.String("addr", "", "listen address (overrides config port)")
	readTimeout := pflag.Duration("read-timeout", 60*time.Second, "HTTP read timeout")
	writeTimeout := pflag.Duration("write-timeout", 10*time.Minute, "HTTP write timeout")
	pflag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		common.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		common.Fatalf("storage dir: %v", err)
	}
	logs, err := setupLogging(cfg)
	if err != nil {
		common.Fatalf("setup logging: %v", err)
	}
	defer logs.Close()
	backupOpts, err := cfg.backupOptions()
	if err != nil {
		common.Fatalf("backup config: %v", err)
	}

	jobs, err := store.Open(cfg.Database, store.WithMkdirAll())
	if err != nil {
		common.Fatalf("open job store: %v", err)
	}
	defer jobs.Close()

	srv, err := server.NewServer(server.Options{
		StorageDir:  cfg.StorageDir,
		RulePack:    cfg.RulePack,
		RuleRepo:    cfg.RuleRepo,
		Concurrency: cfg.Concurrency,
		Backup:      backupOpts,
		AuditLog:    cfg.AuditLog,
		Store:       jobs,
	})
	if err != nil {
		common.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	common.Logf("xmpd listening on %s", listenAddr)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-shutdown:
	case err := <-errc:
		common.Logf("listen: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		common.Logf("shutdown: %v", err)
	}
	common.Logf("xmpd stopped")
}
