// Package main starts the veil gateway: it opens envelopes sent by clients,
// relays plaintext requests to the card search backend and wraps the answers
// on the way back.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/veil/internal/client/api"
	"github.com/atinyakov/veil/internal/codec"
	"github.com/atinyakov/veil/internal/config"
	"github.com/atinyakov/veil/internal/db"
	"github.com/atinyakov/veil/internal/envelope"
	"github.com/atinyakov/veil/internal/logger"
	"github.com/atinyakov/veil/internal/middleware"
	"github.com/atinyakov/veil/internal/repository"
	"github.com/atinyakov/veil/internal/server/handler/http"
	"github.com/atinyakov/veil/internal/service"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	options, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Printf("Build version: %s\n", cmpOr(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmpOr(buildDate, "N/A"))

	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := codec.NewFromString(options.Key)
	if err != nil {
		zapLogger.Fatal("invalid key", zap.Error(err))
	}
	builder := envelope.NewBuilder(c)

	httpClient, err := api.NewHTTPClient("", api.DefaultTimeout)
	if err != nil {
		zapLogger.Fatal("cannot create upstream client", zap.Error(err))
	}
	upstream := api.NewService(
		api.New(httpClient, options.Upstream, api.WithClientVersion(cmpOr(version, api.DefaultClientVersion)), api.WithLogger(zapLogger)),
		api.Settings{},
		zapLogger,
	)

	var auditRepo service.AuditRepository = repository.NopAuditRepository{}
	if options.DatabaseDSN != "" {
		postgresDB, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			zapLogger.Fatal("cannot init database", zap.Error(err))
		}
		defer postgresDB.Close()

		db.StartAuditCleaner(ctx, postgresDB, time.Hour, options.AuditRetention.D(), zapLogger)
		auditRepo = repository.NewPostgresAuditRepository(postgresDB)
	} else {
		zapLogger.Info("no database configured, audit log disabled")
	}

	searchHandler := &http.SearchHandler{
		SearchService: service.NewSearchService(upstream, auditRepo, zapLogger),
		Log:           zapLogger,
	}
	catalogHandler := &http.CatalogHandler{
		CatalogService: service.NewCatalogService(upstream),
		Log:            zapLogger,
	}
	router := http.NewRouter(searchHandler, catalogHandler, builder, http.RouterOptions{
		Veil:        middleware.VeilOptions{MaxAge: options.MaxAge.D()},
		ExposeAudit: options.AuditEndpoint,
	}, zapLogger)
	if options.AuditEndpoint {
		zapLogger.Warn("GET /api/audit is exposed without access control")
	}

	server := &nethttp.Server{
		Addr:              options.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("shutdown failed", zap.Error(err))
		}
	}()

	if options.TLSCert != "" && options.TLSKey != "" {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Address), zap.String("upstream", options.Upstream))
		err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	} else {
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Address), zap.String("upstream", options.Upstream))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

// cmpOr returns the first of its arguments that is not the zero value.
// It mirrors cmp.Or, which is unavailable before Go 1.22.
func cmpOr[T comparable](vals ...T) T {
	var zero T
	for _, v := range vals {
		if v != zero {
			return v
		}
	}
	return zero
}
