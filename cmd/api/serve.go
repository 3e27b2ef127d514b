package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"madcrm/api/internal/app"
	"madcrm/api/internal/authpw"
	"madcrm/api/internal/blob"
	"madcrm/api/internal/email"
	"madcrm/api/internal/export"
	"madcrm/api/internal/hrsync"
	"madcrm/api/internal/metrics"
	"madcrm/api/internal/pipeline"
	"madcrm/api/internal/rbac"
	"madcrm/api/internal/search"
	"madcrm/api/internal/session"
	"madcrm/api/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply pending migrations and start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, log := rt.cfg, rt.log

	applied, err := store.ApplyMigrations(ctx, rt.db, cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	log.Info("migrations applied", zap.Strings("versions", applied))

	recorder := metrics.New()

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	defer sessions.Close()

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mailer.IsConfigured() {
		log.Warn("smtp not configured, password reset mails will fail")
	}
	auth := authpw.NewService(rt.pg, sessions, mailer, authpw.Options{
		TokenSecret: cfg.JWTSecret,
		TokenTTL:    cfg.TokenTTL,
		RememberTTL: cfg.RememberTTL,
		FrontendURL: cfg.FrontendURL,
	}, log.Named("auth"))

	uploader, err := blob.New(blob.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		PublicURL: cfg.MinioPublicURL,
	}, log.Named("blob"))
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		log.Warn("document bucket unavailable, uploads will fail", zap.Error(err))
	}
	tracker := pipeline.NewTracker(pipeline.FromPostgres(rt.pg), uploader, recorder, log.Named("pipeline"))

	var index search.Index
	if cfg.MeiliURL != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log.Named("search"))
		defer meili.Close()
		index = meili
	}
	searcher := search.NewService(index, log.Named("search"))
	go func() {
		n, err := searcher.ReindexFromStore(ctx, rt.pg)
		if err != nil {
			log.Warn("initial search reindex failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Info("search index rebuilt", zap.Int("partners", n))
		}
	}()

	deps := app.Deps{
		Store:   rt.pg,
		Tracker: tracker,
		Scope:   rbac.NewResolver(rt.pg),
		Auth:    auth,
		Search:  searcher,
		Export:  export.NewService(rt.pg, cfg.ChromiumPath, log.Named("export")),
		Log:     log,
	}
	if cfg.HasuraEndpoint != "" {
		client, err := hrsync.NewClient(cfg.HasuraEndpoint, cfg.HasuraToken, log.Named("hrsync"))
		if err != nil {
			return fmt.Errorf("hr sync client: %w", err)
		}
		syncer := hrsync.NewSyncer(client, rt.pg, recorder, log.Named("hrsync"))
		deps.Sync = syncer
		go syncer.Start(ctx, cfg.UserSyncInterval)
	}

	httpServer := app.NewHTTPServer(app.NewService(deps), app.Options{
		CORSOrigin: cfg.CORSOrigin,
		Production: cfg.IsProduction(),
		Metrics:    recorder,
		ReadyChecks: map[string]func(context.Context) error{
			"redis": sessions.Ping,
		},
		Log: log.Named("http"),
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("crm api listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	return nil
}
