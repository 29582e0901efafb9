package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jermoo/oidcrs"
	"github.com/jermoo/oidcrs/internal/config"
	authmw "github.com/jermoo/oidcrs/internal/middleware"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().
		Str("version", config.Version).
		Str("service", "oidcrs-demo").
		Msg("demo resource server starting")

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	rs := oidcrs.New()
	defer rs.Close()

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(authmw.SecurityHeaders)
	r.Use(authmw.MaxBodySize(authmw.DefaultMaxBodySize))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "DPoP"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(corsHandler.Handler)
	log.Info().Strs("origins", cfg.corsOrigins).Msg("CORS configured")

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// A scope-gated route: any bearer token from the trusted issuer, as long
	// as it carries the "reports:read" scope.
	r.With(rs.Authenticate(oidcrs.Options{
		Realm:  "reports",
		Scopes: []string{"reports:read"},
		Allow:  &oidcrs.Policy{Issuers: oidcrs.FilterList(cfg.trustedIssuer)},
	})).Get("/api/reports", handleReports)

	// A DPoP-aware route: BaseURI is required so the pipeline can
	// reconstruct the expected htu and verify a DPoP-bound token's proof.
	// A plain bearer token is still accepted here; DPoP checking only
	// engages when the credential itself arrives PoP-bound.
	r.With(rs.Authenticate(oidcrs.Options{
		Realm:          "wallet",
		BaseURI:        cfg.baseURI,
		ClaimsProperty: "dpopClaims",
	})).Post("/api/wallet/transfer", handleWalletTransfer)

	// An allow/deny-gated route: only the trusted issuer's tokens are
	// accepted, and a specific subject is explicitly denied regardless of
	// what the allow policy would otherwise permit.
	r.With(rs.Authenticate(oidcrs.Options{
		Realm:         "admin",
		Allow:         &oidcrs.Policy{Issuers: oidcrs.FilterList(cfg.trustedIssuer)},
		Deny:          &oidcrs.Policy{Subjects: oidcrs.FilterList("banned-user")},
		HandleErrors:  oidcrs.Bool(false),
		ErrorHandler:  handleAuthError,
		TokenProperty: "credential",
	})).Get("/api/admin/status", handleAdminStatus)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("event", "server_started").
			Str("version", config.Version).
			Int("port", cfg.port).
			Str("trusted_issuer", cfg.trustedIssuer).
			Msg("server listening")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited gracefully")
}

func handleReports(w http.ResponseWriter, r *http.Request) {
	claims, _ := oidcrs.Claims(r.Context(), "")
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"subject":%q,"reports":[]}`, claims.Subject)
}

func handleWalletTransfer(w http.ResponseWriter, r *http.Request) {
	claims, _ := oidcrs.Claims(r.Context(), "dpopClaims")
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"subject":%q,"status":"accepted"}`, claims.Subject)
}

func handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	cred, _ := oidcrs.Token(r.Context(), "credential")
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"issuer":%q,"pop":%v}`, cred.Issuer(), cred.IsPoPToken())
}

// handleAuthError is the HandleErrors:false ErrorHandler for the admin
// route, demonstrating how a caller reproduces the library's default
// response from the tagged Error it receives.
func handleAuthError(w http.ResponseWriter, r *http.Request, err *oidcrs.Error) {
	log.Warn().Str("code", err.Code).Str("path", r.URL.Path).Msg("admin auth failed")
	if err.Challenge != "" {
		w.Header().Set("WWW-Authenticate", err.Challenge)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	fmt.Fprintf(w, `{"error":%q,"error_description":%q}`, err.Code, err.Description)
}
