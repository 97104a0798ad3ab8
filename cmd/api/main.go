package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linkdesk.org/internal/blob"
	"linkdesk.org/internal/catalog"
	"linkdesk.org/internal/gate"
	"linkdesk.org/internal/httpapi"
	"linkdesk.org/internal/obs"
	"linkdesk.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx := context.Background()

	// Record store: Postgres when a DSN is configured, in-memory otherwise
	// (single-instance development only; records do not survive restarts).
	var (
		store catalog.Store
		probe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("LINKDESK_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Println("LINKDESK_PG_DSN not set, using in-memory store")
		store = catalog.NewInMemory()
	}

	// Blob store: S3 bucket when configured, local directory otherwise.
	var (
		blobs blob.Store
		err   error
	)
	if bucket := os.Getenv("LINKDESK_S3_BUCKET"); bucket != "" {
		blobs, err = blob.NewS3(ctx, bucket)
	} else {
		dir := os.Getenv("LINKDESK_BLOB_DIR")
		if dir == "" {
			dir = "data/images"
		}
		blobs, err = blob.NewFS(dir)
	}
	if err != nil {
		log.Fatalf("open blob store: %v", err)
	}

	// Identity: forward-auth verification when a verify URL is configured,
	// shared-secret session tokens otherwise.
	var resolver gate.Resolver
	if verifyURL := os.Getenv("LINKDESK_AUTH_VERIFY_URL"); verifyURL != "" {
		timeout, _ := time.ParseDuration(os.Getenv("LINKDESK_AUTH_TIMEOUT"))
		resolver = gate.NewRemoteResolver(verifyURL, store.Identities(), timeout)
	} else {
		resolver, err = gate.NewSessionResolver(os.Getenv("LINKDESK_AUTH_SECRET"), store.Identities())
		if err != nil {
			log.Fatalf("configure auth: set LINKDESK_AUTH_VERIFY_URL or LINKDESK_AUTH_SECRET")
		}
	}

	api := httpapi.New(resolver, store, blobs, probe, version)

	addr := os.Getenv("LINKDESK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting linkdesk-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}
