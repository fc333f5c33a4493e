package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/feedhub/internal/config"
	"github.com/xxxsen/feedhub/internal/db"
	"github.com/xxxsen/feedhub/internal/filestore"
	"github.com/xxxsen/feedhub/internal/handler"
	"github.com/xxxsen/feedhub/internal/importer"
	"github.com/xxxsen/feedhub/internal/job"
	"github.com/xxxsen/feedhub/internal/metrics"
	"github.com/xxxsen/feedhub/internal/middleware"
	"github.com/xxxsen/feedhub/internal/provider"
	"github.com/xxxsen/feedhub/internal/ratelimit"
	"github.com/xxxsen/feedhub/internal/repo"
	"github.com/xxxsen/feedhub/internal/schedule"
	"github.com/xxxsen/feedhub/internal/service"
	"github.com/xxxsen/feedhub/internal/vault"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "feedhub",
		Short: "feedhub import server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run feedhub server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			return runServer(a)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer func() { _ = conn.Close() }()
			return db.ApplyMigrations(conn)
		},
	}

	var (
		workspaceID string
		actorID     string
		filePath    string
		mode        string
	)
	importCmd := &cobra.Command{
		Use:   "import-csv",
		Short: "import a delimited feedback file into a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workspaceID == "" || actorID == "" || filePath == "" {
				return fmt.Errorf("--workspace, --actor and --file are required")
			}
			a, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(filePath)
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			ctx := cmd.Context()
			summary, err := a.fileImports.Import(ctx, service.FileImportRequest{
				WorkspaceID: workspaceID,
				ActorID:     actorID,
				FileName:    filepath.Base(filePath),
				Mode:        mode,
				Data:        data,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	importCmd.Flags().StringVar(&workspaceID, "workspace", "", "target workspace id")
	importCmd.Flags().StringVar(&actorID, "actor", "", "acting user id")
	importCmd.Flags().StringVar(&filePath, "file", "", "path to a csv/tsv file")
	importCmd.Flags().StringVar(&mode, "mode", "upsert", "upsert or createOnly")

	rootCmd.AddCommand(runCmd, migrateCmd, importCmd)
	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

type app struct {
	cfg           *config.Config
	gate          *ratelimit.Gate
	archive       filestore.Store
	runs          *repo.ImportRunRepo
	actionLogs    *repo.ActionLogRepo
	members       *repo.MemberRepo
	credentials   *service.CredentialService
	fileImports   *service.FileImportService
	remoteImports *service.RemoteImportService
	runService    *service.ImportRunService
	providerNames []string
}

func bootstrap(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	postRepo := repo.NewPostRepo(conn)
	boardRepo := repo.NewBoardRepo(conn)
	memberRepo := repo.NewMemberRepo(conn)
	workspaceRepo := repo.NewWorkspaceRepo(conn)
	runRepo := repo.NewImportRunRepo(conn)
	actionLogRepo := repo.NewActionLogRepo(conn)

	m := metrics.New(prometheus.DefaultRegisterer)
	v, err := vault.New(cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}
	counter, err := ratelimit.New(cfg.RateLimit, cfg.Redis.URL, actionLogRepo)
	if err != nil {
		return nil, fmt.Errorf("init rate limit: %w", err)
	}
	gate := ratelimit.NewGate(counter, cfg.RateLimit.Rules, ratelimit.WithDenyHook(m.RateLimited))

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}
	notra, err := provider.NewProvider(provider.NameNotra, provider.Args{
		BaseURL:    cfg.Providers.Notra.BaseURL,
		Timeout:    time.Duration(cfg.Providers.Notra.TimeoutSecond) * time.Second,
		MaxRetries: cfg.Providers.Notra.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("init provider: %w", err)
	}
	providers := map[string]provider.Provider{notra.Name(): notra}

	engine := importer.NewEngine(postRepo, boardRepo, memberRepo, workspaceRepo, cfg.Import, cfg.Plans)
	credentials := service.NewCredentialService(repo.NewCredentialRepo(conn), v, m)
	return &app{
		cfg:           cfg,
		gate:          gate,
		archive:       store,
		runs:          runRepo,
		actionLogs:    actionLogRepo,
		members:       memberRepo,
		credentials:   credentials,
		fileImports:   service.NewFileImportService(engine, gate, runRepo, store, m),
		remoteImports: service.NewRemoteImportService(engine, providers, credentials, gate, runRepo, m),
		runService:    service.NewImportRunService(runRepo),
		providerNames: []string{notra.Name()},
	}, nil
}

func runServer(a *app) error {
	cfg := a.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.String("addr", addr),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("rate_limit_backend", cfg.RateLimit.Backend),
		zap.String("vault_version", cfg.Vault.CurrentVersion),
	)

	deps := handler.RouterDeps{
		Imports:     handler.NewImportHandler(a.fileImports, a.remoteImports, a.runService),
		Connections: handler.NewConnectionHandler(a.credentials, a.providerNames),
		Members:     a.members,
		Gate:        a.gate,
		Providers:   a.providerNames,
		JWTSecret:   []byte(cfg.JWTSecret),
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			middleware.RequestID(),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.Register(
		schedule.Entry{
			Job:  job.NewRunCleanupJob(a.runs, a.archive, time.Duration(cfg.Jobs.RunRetentionHours)*time.Hour),
			Spec: cfg.Jobs.RunCleanupSpec,
		},
		schedule.Entry{
			Job:  job.NewActionLogPruneJob(a.actionLogs, cfg.RateLimit.Rules),
			Spec: cfg.Jobs.ActionLogPruneSpec,
		},
	); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
