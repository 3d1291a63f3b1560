// server runs the IQC platform HTTP API.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iqc-platform/internal/approval"
	auditrepo "iqc-platform/internal/audit/repository"
	"iqc-platform/internal/config"
	"iqc-platform/internal/db"
	limitshandler "iqc-platform/internal/limits/handler"
	limitsrepo "iqc-platform/internal/limits/repository"
	limitsservice "iqc-platform/internal/limits/service"
	"iqc-platform/internal/profile"
	profilecache "iqc-platform/internal/profile/cache"
	profilehandler "iqc-platform/internal/profile/handler"
	profilerepo "iqc-platform/internal/profile/repository"
	qcrunhandler "iqc-platform/internal/qcrun/handler"
	qcrunrepo "iqc-platform/internal/qcrun/repository"
	qcrunservice "iqc-platform/internal/qcrun/service"
	"iqc-platform/internal/rules"
	"iqc-platform/internal/security"
	"iqc-platform/internal/server"
	"iqc-platform/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "iqc-platform", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer conn.Close()

	profileRepo := profilerepo.NewPostgresRepository(conn)
	runRepo := qcrunrepo.NewPostgresRepository(conn)
	limitsRepo := limitsrepo.NewPostgresRepository(conn)
	auditRepo := auditrepo.NewPostgresRepository(conn)

	var cache profile.Cache
	if cfg.RedisAddr != "" {
		redisCache, err := profilecache.NewRedisCache(cfg.RedisAddr, cfg.CacheTTL())
		if err != nil {
			log.Printf("redis unavailable, profile cache disabled: %v", err)
		} else {
			defer redisCache.Close()
			cache = redisCache
			log.Printf("connected to Redis at %s", cfg.RedisAddr)
		}
	}

	resolver := profile.NewResolver(profileRepo, cache, cfg.ProfileConfigEnabled)
	evaluator := rules.NewEvaluator(cfg.SideTolerance, cfg.ApprovalGateEnabled)
	runSvc := qcrunservice.NewService(runRepo, limitsRepo, resolver, evaluator)
	approvalSvc := approval.NewService(runRepo, auditRepo)
	limitsSvc := limitsservice.NewService(limitsRepo, cfg.RollingMinPoints, cfg.RollingMinSpanDays, cfg.ExcludedRuleCodes())

	var verifier *security.TokenVerifier
	if cfg.JWTSecret != "" {
		verifier = security.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
	} else {
		log.Print("JWT_SECRET not set, authentication disabled")
	}

	router := server.NewRouter(server.Handlers{
		Runs:     qcrunhandler.NewRunHandler(runSvc),
		Review:   approval.NewHandler(approvalSvc),
		Limits:   limitshandler.NewHandler(limitsSvc, limitsRepo, auditRepo),
		Profiles: profilehandler.NewHandler(profileRepo, resolver, auditRepo),
	}, verifier)

	srv := server.NewHTTPServer(cfg.HTTPAddr, router)
	go func() {
		log.Printf("server starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Print("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Print("server exited")
}
