package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"localmart/backend/internal/audit"
	auditrepo "localmart/backend/internal/audit/repository"
	"localmart/backend/internal/config"
	"localmart/backend/internal/db"
	"localmart/backend/internal/health"
	identityservice "localmart/backend/internal/identity/service"
	"localmart/backend/internal/security"
	"localmart/backend/internal/server"
	sessionrepo "localmart/backend/internal/session/repository"
	sessionservice "localmart/backend/internal/session/service"
	"localmart/backend/internal/telemetry/otel"
	userrepo "localmart/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "localmart-auth", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("JWT_PRIVATE_KEY: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("JWT_PUBLIC_KEY: %v", err)
	}
	signer := security.NewTokenSigner(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience)

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	auditRepo := auditrepo.NewPostgresRepository(database)
	auditTrail := audit.NewLogger(auditRepo, server.ClientIPFromContext)
	securityEvents := otel.NewSecurityEventEmitter(providers.LoggerProvider)
	auditLog := audit.Multi(auditTrail, securityEvents)

	sessionStore := sessionrepo.NewPostgresStore(database)
	sessions := sessionservice.NewManager(sessionStore, auditLog, cfg.RefreshTTL())

	users := userrepo.NewPostgresDirectory(database)
	hasher := security.NewHasher(cfg.BcryptCost)
	auth := identityservice.NewAuthService(
		users, sessions, hasher, signer, auditLog, auditRepo, cfg.AccessTTL(), cfg.PasswordMinLength)

	sweeper := sessionservice.NewSweeper(sessions, cfg.SweepEvery())
	if err := sweeper.Start(); err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	defer sweeper.Stop()

	srv := server.New(cfg.HTTPAddr, auth, signer, cfg.AccessTTL(), cfg.RefreshTTL(), cfg.CookieSecure)
	srv.MountHealth(health.NewHandler(database))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("serve: %v", err)
	case sig := <-quit:
		log.Printf("received %v, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("server stopped")
}
