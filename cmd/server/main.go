package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spendbook/internal/app"
	"spendbook/internal/config"
	"spendbook/internal/handlers"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stderr)
	stop()
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(stderr)

	envFile := fs.String("env", config.EnvFileFromEnv(), "Path to .env file")
	addr := fs.String("addr", "", "Listen address (default from SPENDBOOK_ADDR)")
	store := fs.String("store", "", "Record store backend (memory, sqlite, redis, postgres)")
	dbPath := fs.String("db", "", "Path to database file for the sqlite store")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *store != "" {
		cfg.Store = *store
	}
	if *dbPath != "" {
		cfg.SQLitePath = *dbPath
	}

	a, err := app.Open(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	h := handlers.NewHandlers(a.Service, a.Logger)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           setupRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", "addr", cfg.Addr, "store", cfg.Store)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupRouter(h *handlers.Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /signup", h.SignupForm)
	mux.HandleFunc("POST /signup", h.Signup)
	mux.HandleFunc("POST /logout", h.Logout)

	authed := func(fn http.HandlerFunc) http.Handler { return h.RequireSession(fn) }
	mux.Handle("GET /dashboard", authed(h.Dashboard))
	mux.Handle("POST /budget", authed(h.SetBudget))
	mux.Handle("POST /expenses", authed(h.CreateExpense))
	mux.Handle("POST /expenses/{id}", authed(h.UpdateExpense))
	mux.Handle("POST /expenses/{id}/delete", authed(h.DeleteExpense))
	mux.Handle("GET /profile", authed(h.Profile))
	mux.Handle("POST /profile", authed(h.UpdateProfile))
	mux.Handle("GET /profile/avatar", authed(h.Avatar))
	mux.Handle("POST /profile/avatar", authed(h.UploadAvatar))
	mux.Handle("POST /account/delete", authed(h.DeleteAccount))
	mux.Handle("GET /reports", authed(h.Reports))
	mux.Handle("GET /reports/export", authed(h.Export))

	return mux
}
