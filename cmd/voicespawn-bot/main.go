package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/voicespawn/backend/internal/controllers"
	"github.com/voicespawn/backend/internal/database/migrations"
	"github.com/voicespawn/backend/internal/lifecycle"
	"github.com/voicespawn/backend/internal/platform"
	"github.com/voicespawn/backend/internal/registry"
)

func main() {
	ctx := context.Background()
	ctx, _ = signal.NotifyContext(ctx, os.Interrupt)

	app := &cli.App{
		Name: "voicespawn-bot",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Value: false,
				EnvVars: []string{
					"VOICESPAWN_DEBUG",
				},
			},
			&cli.StringFlag{
				Name:  "http-listen-address",
				Value: "127.0.0.1:3010",
				EnvVars: []string{
					"VOICESPAWN_HTTP_LISTEN_ADDRESS",
				},
			},
			&cli.StringFlag{
				Name:     "postgres-uri",
				Required: true,
				EnvVars: []string{
					"VOICESPAWN_POSTGRES_URI",
				},
			},
			&cli.StringFlag{
				Name:     "platform-api-url",
				Required: true,
				EnvVars: []string{
					"VOICESPAWN_PLATFORM_API_URL",
				},
			},
			&cli.StringFlag{
				Name:     "gateway-url",
				Required: true,
				EnvVars: []string{
					"VOICESPAWN_GATEWAY_URL",
				},
			},
			&cli.StringFlag{
				Name:     "bot-token",
				Required: true,
				EnvVars: []string{
					"VOICESPAWN_BOT_TOKEN",
				},
			},
			&cli.StringFlag{
				Name:     "bot-user-id",
				Required: true,
				EnvVars: []string{
					"VOICESPAWN_BOT_USER_ID",
				},
			},
			&cli.StringFlag{
				Name:  "admin-token-public-key",
				Value: "",
				EnvVars: []string{
					"VOICESPAWN_ADMIN_TOKEN_PUBLIC_KEY",
				},
			},
		},
		Before: func(cctx *cli.Context) (err error) {
			err = setupLogging(cctx.Bool("debug"))
			return
		},
		Action: entrypoint,
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		zap.L().Fatal("unhandled error", zap.Error(err))
	}
}

func setupLogging(debugMode bool) error {
	var cfg zap.Config

	if debugMode {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level.SetLevel(zapcore.DebugLevel)
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Development = false
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level.SetLevel(zapcore.InfoLevel)
	}

	cfg.OutputPaths = []string{
		"stdout",
	}

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(logger)

	return nil
}

func entrypoint(cctx *cli.Context) (err error) {
	ctx := cctx.Context
	defer func() { _ = zap.L().Sync() }()

	var dbConfig *pgx.ConnConfig
	if dbConfig, err = pgx.ParseConfig(cctx.String("postgres-uri")); err != nil {
		err = fmt.Errorf("unable to parse postgres uri: %w", err)
		return
	}

	sqldb := stdlib.OpenDB(*dbConfig)
	db := bun.NewDB(sqldb, pgdialect.New())
	defer func() { _ = db.Close() }()

	if cctx.Bool("debug") {
		var dbLogger io.WriteCloser = &zapio.Writer{Log: zap.L().With(zap.String("section", "bun")), Level: zapcore.DebugLevel}
		defer func() { _ = dbLogger.Close() }()

		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.WithWriter(dbLogger),
		))
	}

	if _, err = db.ExecContext(ctx, "SELECT 1"); err != nil {
		err = fmt.Errorf("failed to test database connection: %w", err)
		return
	}

	goose.SetBaseFS(migrations.FS)
	if err = goose.SetDialect("postgres"); err != nil {
		return
	}
	if err = goose.Up(sqldb, "."); err != nil {
		err = fmt.Errorf("failed to run migrations: %w", err)
		return
	}

	rooms := platform.NewClient(cctx.String("platform-api-url"), cctx.String("bot-token"))
	reg := registry.New(db)
	provisioner := registry.NewProvisioner(reg, rooms, cctx.String("bot-user-id"))
	engine := lifecycle.NewEngine(reg, rooms, cctx.String("bot-user-id"))

	feed := &platform.Feed{
		GatewayURL: cctx.String("gateway-url"),
		Token:      cctx.String("bot-token"),
		Handler:    engine,
		Debug:      cctx.Bool("debug"),
	}

	router := mux.NewRouter()

	var httpLogger io.WriteCloser = &zapio.Writer{Log: zap.L().With(zap.String("section", "http")), Level: zapcore.InfoLevel}
	defer func() { _ = httpLogger.Close() }()

	srv := &http.Server{
		Addr:         cctx.String("http-listen-address"),
		Handler:      handlers.LoggingHandler(httpLogger, router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
	})

	if cctx.Bool("debug") {
		(&controllers.GoDebugController{}).Register(router)
	}
	(&controllers.HealthController{DB: db}).Register(router)

	if key := cctx.String("admin-token-public-key"); key != "" {
		(&controllers.AdminController{
			Registry:       reg,
			Provisioner:    provisioner,
			AdminPublicKey: key,
		}).Register(router)
	} else {
		zap.L().Warn("no admin token public key configured, admin API disabled")
	}

	serverDone := make(chan interface{})
	go func() {
		zap.L().Info("serving requests", zap.String("addr", "http://"+srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("failed to listen for http requests", zap.Error(err))
		}
		close(serverDone)
	}()

	feedDone := make(chan interface{})
	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zap.L().Error("event feed stopped", zap.Error(err))
		}
		close(feedDone)
	}()

	select {
	case <-serverDone:
	case <-feedDone:
	case <-ctx.Done():
	}

	return
}
