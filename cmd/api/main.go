package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"custodia/internal/auth"
	"custodia/internal/config"
	"custodia/internal/httpapi"
	"custodia/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "none"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		db    *sql.DB
		store auth.Store
	)
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	} else {
		log.Println("CUSTODIA_PG_DSN not set, using in-memory store")
		store = auth.NewMemoryStore()
	}

	opts := []auth.ServiceOption{
		auth.WithSecret([]byte(cfg.AuthSecret)),
		auth.WithIssuer(cfg.TokenIssuer),
		auth.WithAccessTTL(cfg.TokenTTL),
	}
	if cfg.PrincipalCacheTTL > 0 {
		opts = append(opts, auth.WithPrincipalCacheTTL(cfg.PrincipalCacheTTL))
	}
	svc, err := auth.NewService(store, opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	taxonomy := auth.DefaultTaxonomy()
	if cfg.RolesPath != "" {
		taxonomy, err = auth.LoadTaxonomy(cfg.RolesPath)
		if err != nil {
			log.Fatalf("load role taxonomy: %v", err)
		}
	}
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = svc.Bootstrap(bootCtx, auth.BootstrapConfig{
		Taxonomy:       taxonomy,
		AdminFirstName: cfg.AdminFirstName,
		AdminLastName:  cfg.AdminLastName,
		AdminEmail:     cfg.AdminEmail,
		AdminPassword:  cfg.AdminPassword,
		AdminPhone:     cfg.AdminPhone,
		AdminAddress:   cfg.AdminAddress,
	})
	bootCancel()
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, svc, httpapi.Options{
		Version:      version,
		RateBurst:    cfg.RateLimitBurst,
		RatePerSec:   int(cfg.RateLimitRPS),
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting custodia-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
