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

	"avr/api/internal/app"
	"avr/api/internal/authority"
	"avr/api/internal/config"
	"avr/api/internal/evidence"
	"avr/api/internal/identity"
	"avr/api/internal/ingest"
	"avr/api/internal/metrics"
	"avr/api/internal/search"
	"avr/api/internal/session"
	"avr/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	records := store.NewPostgresStore(db)

	index := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, cfg.MeiliIndex)
	defer index.Close()

	files, err := evidence.NewFileStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("evidence store connection failed: %v", err)
	}

	var cache app.PrincipalCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := session.NewPrincipalCache(cfg.RedisURL, 15*time.Minute)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisCache.Close()
		cache = redisCache
	}

	catalogues := authority.New(authority.Endpoints{
		GeneTarget:   cfg.GeneTargetURL,
		Protein:      cfg.ProteinURL,
		Nomenclature: cfg.NomenclatureURL,
		Researcher:   cfg.ResearcherURL,
		Reagent:      cfg.ReagentURL,
		DOIProxy:     cfg.DOIProxyURL,
		Ontology:     cfg.OntologyURL,
	})

	var minter identity.Minter
	if strings.TrimSpace(cfg.UUIDServiceURL) != "" {
		minter = identity.NewHTTPMinter(cfg.UUIDServiceURL)
	} else {
		log.Printf("UUID_API_URL not set, minting local record identities")
		minter = &identity.LocalMinter{}
	}

	provider := identity.NewHTTPProvider(cfg.IdentityURL, cfg.UploadersGroupID)

	validator := ingest.NewValidator(catalogues, records)
	orchestrator := ingest.NewOrchestrator(validator, records, index, files, minter)
	rebuilder := ingest.NewRebuilder(records, index, catalogues)

	service := app.NewService(records, index, orchestrator, rebuilder,
		provider, cache, minter, catalogues, metrics.New())

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("AVR API listening on %s", cfg.Addr)
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
}
