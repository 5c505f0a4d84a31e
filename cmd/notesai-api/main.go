package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/notesai/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/config"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/database"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/enhance"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/server"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/tags"
	"github.com/MarcoPoloResearchLab/notesai/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notesai-api",
		Short: "NotesAI backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply schema and data migrations, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations()
		},
	})

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "SQLite path or Postgres DSN")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("session-issuer", defaults.GetString("auth.issuer"), "Expected session issuer")
	cmd.PersistentFlags().String("session-cookie", defaults.GetString("auth.cookie_name"), "Session cookie name")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("cors.allowed_origins"), "CORS allowed origins")
	cmd.PersistentFlags().String("ai-base-url", defaults.GetString("ai.base_url"), "OpenAI-compatible completion endpoint")
	cmd.PersistentFlags().String("ai-model", defaults.GetString("ai.model"), "Completion model name")
	cmd.PersistentFlags().Duration("ai-timeout", defaults.GetDuration("ai.timeout"), "Upper bound on an enhancement call")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.issuer", "session-issuer")
	bindFlag(cmd, "auth.cookie_name", "session-cookie")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "ai.base_url", "ai-base-url")
	bindFlag(cmd, "ai.model", "ai-model")
	bindFlag(cmd, "ai.timeout", "ai-timeout")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func openDatabase(appConfig config.AppConfig, logger *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		DSN:    appConfig.DatabaseDSN,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

func runMigrations() error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	_, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	closeDB()
	logger.Info("migrations applied", zap.String("driver", appConfig.DatabaseDriver))
	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, closeDB, err := openDatabase(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	idProvider := ids.NewUUIDProvider()

	tagsService, err := tags.NewService(tags.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	sessionResolver, err := auth.NewResolver(auth.ResolverConfig{
		Validator:  sessionValidator,
		Identities: usersService,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()

	generator := enhance.NewOpenAIGenerator(enhance.OpenAIConfig{
		BaseURL: appConfig.AIBaseURL,
		APIKey:  appConfig.AIAPIKey,
		Model:   appConfig.AIModel,
	})
	enhanceService, err := enhance.NewService(enhance.ServiceConfig{
		Generator: generator,
		Timeout:   appConfig.AITimeout,
		Logger:    logger,
		Observer:  recorder,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:       sessionResolver,
		Profiles:       usersService,
		NotesService:   notesService,
		TagsService:    tagsService,
		EnhanceService: enhanceService,
		Metrics:        recorder,
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.String("session_cookie", sessionValidator.CookieName()),
			zap.String("session_issuer", sessionValidator.Issuer()),
			zap.String("ai_model", generator.Model()),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
