package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/samber/do"
	"github.com/serroba/qrlinks/internal/container"
	"github.com/serroba/qrlinks/internal/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func registerPackages(injector *do.Injector, options *container.Options) {
	do.ProvideValue(injector, options)
	container.LoggerPackage(injector)
	container.TracingPackage(injector)
	container.MetricsPackage(injector)
	container.RedisPackage(injector)
	container.PostgresPackage(injector)
	container.RepositoryPackage(injector)
	container.ScanPackage(injector)
	container.RateLimitPackage(injector)
	container.PublisherGroupPackage(injector)
	container.HTTPPackage(injector)
}

// migrate applies the schema with a short-lived injector that is shut down on
// every path.
func migrate(ctx context.Context, options *container.Options) error {
	injector := do.New()
	registerPackages(injector, options)

	err := container.Migrate(ctx, injector)
	if shutdownErr := injector.Shutdown(); err == nil {
		err = shutdownErr
	}

	return err
}

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	cli := humacli.New(func(hooks humacli.Hooks, options *container.Options) {
		injector := do.New()
		registerPackages(injector, options)

		logger := do.MustInvoke[*zap.Logger](injector)

		var server *http.Server

		hooks.OnStart(func() {
			_ = do.MustInvoke[*telemetry.Provider](injector)

			if err := container.Migrate(context.Background(), injector); err != nil {
				logger.Fatal("migration failed", zap.Error(err))
			}

			router := do.MustInvoke[*chi.Mux](injector)

			// Invoke API to trigger route registration
			if _, err := do.Invoke[huma.API](injector); err != nil {
				logger.Fatal("failed to build API", zap.Error(err))
			}

			server = &http.Server{
				Addr:              fmt.Sprintf(":%d", options.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			logger.Info("server starting",
				zap.Int("port", options.Port),
				zap.String("base_url", options.ResolvedBaseURL()),
				zap.String("scan_sink", options.ScanSink),
			)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("server failed", zap.Error(err))
			}
		})

		hooks.OnStop(func() {
			logger.Info("shutting down")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if server != nil {
				if err := server.Shutdown(ctx); err != nil {
					logger.Error("server shutdown error", zap.Error(err))
				}
			}

			if err := injector.Shutdown(); err != nil {
				logger.Error("service shutdown error", zap.Error(err))
			}

			_ = logger.Sync()
		})
	})

	cli.Root().AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, options *container.Options) {
			if err := migrate(cmd.Context(), options); err != nil {
				cmd.PrintErrln("migration failed:", err)
				os.Exit(1)
			}

			cmd.Println("schema applied")
		}),
	})

	cli.Root().AddCommand(&cobra.Command{
		Use:   "token <owner-id>",
		Short: "Mint a bearer token for an owner (development)",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, options *container.Options) {
			token, err := container.IssueToken(options, args[0])
			if err != nil {
				cmd.PrintErrln("token failed:", err)
				os.Exit(1)
			}

			cmd.Println(token)
		}),
	})

	cli.Run()
}
