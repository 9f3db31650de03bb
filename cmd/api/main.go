package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tempora.dev/internal/auth"
	"tempora.dev/internal/config"
	"tempora.dev/internal/httpapi"
	"tempora.dev/internal/ids"
	"tempora.dev/internal/lifecycle"
	"tempora.dev/internal/notify"
	"tempora.dev/internal/obs"
	"tempora.dev/internal/store/memory"
	"tempora.dev/internal/store/pg"
	"tempora.dev/internal/token"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		// Refusing to start beats minting tokens with a weak secret.
		log.Fatalf("configuration: %v", err)
	}

	ctx := context.Background()

	var (
		store   auth.Store
		revoked token.RevocationRegistry
		probe   httpapi.ReadyProbe
		pgStore *pg.Store
	)
	if cfg.DatabaseDSN != "" {
		var err error
		pgStore, err = pg.Open(cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		revoked = pg.NewRevocationStore(pgStore.DB())
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Print("TEMPORA_PG_DSN is not set; using the in-memory store (development only)")
		mem := memory.New()
		if err := seedDev(ctx, mem); err != nil {
			log.Fatalf("seed dev store: %v", err)
		}
		store = mem
		revoked = token.NewMemoryRegistry(time.Now)
	}

	codec, err := token.NewCodec(cfg.SigningSecret, cfg.TokenIssuer)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	tokens, err := token.NewService(codec, revoked,
		token.WithAccessTTL(cfg.AccessTTL),
		token.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	registry := auth.NewRegistry(store)
	svc, err := auth.NewService(store, tokens, auth.NewLockout(store, cfg.LockoutThreshold), registry)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	if err := svc.EnsureBuiltins(ctx); err != nil {
		log.Fatalf("ensure permissions: %v", err)
	}
	if err := registry.Rebuild(ctx); err != nil {
		log.Fatalf("load permissions: %v", err)
	}

	scanner := lifecycle.NewScanner(auth.NewDirectory(store), notify.NewLogNotifier(),
		lifecycle.WithWindow(cfg.WarningWindow))

	scanCtx, stopScan := context.WithCancel(ctx)
	go runDailyScan(scanCtx, scanner)

	api := httpapi.New(svc, auth.NewEnforcer(registry), scanner, probe, version)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting tempora-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	stopScan()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}

// runDailyScan fires the lifecycle pass once at startup and then once per
// calendar day shortly after midnight UTC.
func runDailyScan(ctx context.Context, scanner *lifecycle.Scanner) {
	scan := func() {
		summary, err := scanner.Run(ctx)
		if err != nil {
			log.Printf("lifecycle scan: %v", err)
			return
		}
		log.Printf("lifecycle scan: scanned=%d warned=%d expired_notices=%d skipped=%d",
			summary.Scanned, summary.Warned, summary.ExpiredNotices, summary.Skipped)
	}

	scan()
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24*time.Hour + 5*time.Minute)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			scan()
		}
	}
}

// seedDev provisions the builtin roles so logins work against the throwaway
// in-memory store. Users are created through the admin API.
func seedDev(ctx context.Context, store auth.Store) error {
	now := time.Now().UTC()
	for _, name := range []string{auth.RoleAdmin, auth.RoleUser, auth.RoleGuest, auth.RoleExpenseAdmin} {
		err := store.Roles(ctx).Create(ctx, &auth.Role{ID: "role-" + name, Name: name, CreatedAt: now})
		if err != nil && !errors.Is(err, auth.ErrAlreadyExists) {
			return err
		}
	}
	if err := store.Permissions(ctx).Ensure(ctx, auth.BuiltinPermissions); err != nil {
		return err
	}
	keys := make([]string, 0, len(auth.BuiltinPermissions))
	for _, p := range auth.BuiltinPermissions {
		keys = append(keys, p.Key())
	}
	if err := store.Permissions(ctx).SetForRole(ctx, "role-"+auth.RoleAdmin, keys); err != nil {
		return err
	}

	// A bootstrap administrator, but only when a password is provided.
	password := os.Getenv("TEMPORA_DEV_ADMIN_PASSWORD")
	if password == "" {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return store.Users(ctx).Create(ctx, &auth.User{
		ID:                   ids.New(),
		Username:             "admin",
		PasswordHash:         hash,
		RoleID:               "role-" + auth.RoleAdmin,
		Enabled:              true,
		LastPasswordChangeAt: now,
		CreatedAt:            now,
		UpdatedAt:            now,
	})
}
