package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sheets/api/internal/app"
	"sheets/api/internal/export"
	"sheets/api/internal/gitrepo"
	"sheets/api/internal/objectstore"
	"sheets/api/internal/session"
	"sheets/api/internal/store"
	"sheets/api/internal/toc"
	"sheets/api/internal/web"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/spf13/cobra"
)

func newServeCmd(cli *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the page and API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cli)
		},
	}
}

func serve(cli *cliApp) error {
	cfg := cli.cfg
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	gitService := gitrepo.New(cfg.ReposDir)
	searchService := newSearchService(cfg.MeiliURL, cfg.MeiliMasterKey, db)
	defer searchService.Close()

	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = app.NewWithSessionStore(cfg, dataStore, redisStore, gitService, searchService)
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
		service = app.New(cfg, dataStore, gitService, searchService)
	}

	service.EnableExports(export.NewService())
	if strings.TrimSpace(cfg.MinIOEndpoint) != "" {
		objects, err := objectstore.New(ctx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
		if err != nil {
			log.Fatalf("object storage failed: %v", err)
		}
		log.Printf("Uploading exports to bucket %s", cfg.MinIOBucket)
		service.UploadExportsTo(objects)
	}

	gin.SetMode(gin.ReleaseMode)
	apiServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	pages := web.NewServer(service, toc.NewProvider(cfg.TOCPath), apiServer.Handler(), web.Options{
		SSL:        cfg.SSL,
		RefreshTTL: cfg.RefreshTTL,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gzhttp.GzipHandler(pages),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Sheets listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}
