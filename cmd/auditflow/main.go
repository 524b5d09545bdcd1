package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/auditflow/auditflow/infrastructure/http/middleware"
	"github.com/auditflow/auditflow/infrastructure/service/jwt"
	"github.com/auditflow/auditflow/infrastructure/service/logger"
	"github.com/auditflow/auditflow/infrastructure/service/metrics"
	"github.com/auditflow/auditflow/infrastructure/service/password"
	"github.com/auditflow/auditflow/infrastructure/service/ratelimit"
	"github.com/auditflow/auditflow/infrastructure/service/schema"
	"github.com/auditflow/auditflow/infrastructure/service/totp"
	"github.com/auditflow/auditflow/internal/adapter/ai"
	"github.com/auditflow/auditflow/internal/adapter/export"
	httpadapter "github.com/auditflow/auditflow/internal/adapter/http"
	"github.com/auditflow/auditflow/internal/adapter/mail"
	"github.com/auditflow/auditflow/internal/adapter/persistence"
	"github.com/auditflow/auditflow/internal/adapter/realtime"
	"github.com/auditflow/auditflow/internal/adapter/storage"
	"github.com/auditflow/auditflow/internal/config"
	"github.com/auditflow/auditflow/internal/ports"
	"github.com/auditflow/auditflow/internal/usecase"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	base := logger.NewLogrus(logger.LoggerConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: "auditflow",
	})
	appLogger := logger.Wrap(base, "auditflow")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info(ctx, "Application starting", map[string]interface{}{
		"env": cfg.Server.Environment,
	})

	db, err := sql.Open("postgres", cfg.GetDatabaseURL())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetConnMaxIdleTime(cfg.Database.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		appLogger.Error(ctx, "Failed to ping database", err, map[string]interface{}{
			"host": cfg.Database.Host,
			"name": cfg.Database.DBName,
		})
		os.Exit(1)
	}
	appLogger.Info(ctx, "Database connection established", nil)

	location, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid workflow timezone: %v", err)
	}
	settings := usecase.WorkflowSettings{Location: location, PortalURL: cfg.Workflow.PortalURL}

	// Infrastructure services
	appMetrics := metrics.NewMetrics("auditflow")

	limiter, err := ratelimit.NewRateLimitService(ratelimit.RateLimitConfig{
		Enabled:        cfg.Security.RateLimitEnabled,
		RedisURL:       cfg.GetRedisURL(),
		KeyPrefix:      "auditflow:ratelimit",
		LoginAttempts:  cfg.Security.LoginAttempts,
		LoginWindow:    cfg.Security.LoginWindow,
		SubmitAttempts: cfg.Security.SubmitAttempts,
		SubmitWindow:   cfg.Security.SubmitWindow,
		BlockDuration:  cfg.Security.BlockDuration,
	}, base)
	if err != nil {
		// continue without throttling
		appLogger.Error(ctx, "Failed to initialize rate limit service, continuing without it", err, map[string]interface{}{
			"redis_host": cfg.Redis.Host,
		})
		limiter = ratelimit.NewNoopRateLimitService()
	}

	tokenService, err := jwt.NewJWTService(jwt.Config{
		Secret:         cfg.Security.JWTSecret,
		AccessTokenTTL: cfg.Security.JWTExpiration,
		Issuer:         cfg.Security.JWTIssuer,
	})
	if err != nil {
		log.Fatalf("Failed to initialize JWT service: %v", err)
	}
	passwordService := password.NewBcryptPasswordService(cfg.Security.BcryptCost)
	otpService := totp.NewService(cfg.Security.TOTPIssuer)

	fileStorage, err := storage.New(storage.Config{
		Driver:    cfg.Storage.Driver,
		LocalDir:  cfg.Storage.LocalDir,
		Bucket:    cfg.Storage.Bucket,
		Prefix:    cfg.Storage.Prefix,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	}, base)
	if err != nil {
		log.Fatalf("Failed to initialize file storage: %v", err)
	}

	var mailer ports.Mailer = mail.NewLogMailer(base)
	if cfg.Mail.Enabled {
		mailer = mail.NewSMTPMailer(mail.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
	}
	mailer = mail.WithFailureCounter(mailer, appMetrics)

	var assistant ports.TextAssistant = ai.NewMockAssistant(0)
	if cfg.AI.Provider == "anthropic" {
		assistant = ai.NewAnthropicAdapter(ai.Config{
			APIKey:    cfg.AI.APIKey,
			BaseURL:   cfg.AI.BaseURL,
			Model:     cfg.AI.Model,
			MaxTokens: cfg.AI.MaxTokens,
			Timeout:   cfg.AI.Timeout,
		})
	}

	hub := realtime.NewHub(cfg.Security.CORSOrigins, base)
	go hub.Run(ctx)

	// Repositories
	tx := persistence.NewPostgresTransactor(db)
	orgRepo := persistence.NewPostgresOrganizationRepository(db)
	userRepo := persistence.NewPostgresUserRepository(db)
	auditeeRepo := persistence.NewPostgresAuditeeRepository(db)
	universeRepo := persistence.NewPostgresUniverseRepository(db)
	auditRepo := persistence.NewPostgresAuditRepository(db)
	assessmentRepo := persistence.NewPostgresRiskAssessmentRepository(db)
	folderRepo := persistence.NewPostgresTestingProcedureRepository(db)
	wpRepo := persistence.NewPostgresWorkingPaperRepository(db)
	procedureRepo := persistence.NewPostgresProcedureRepository(db)
	issueRepo := persistence.NewPostgresIssueRepository(db)
	reviewRepo := persistence.NewPostgresReviewCommentRepository(db)
	commentRepo := persistence.NewPostgresCommentRepository(db)
	followupRepo := persistence.NewPostgresFollowupRepository(db)

	rowValidator := schema.NewRowValidator()

	// Use cases
	authUseCase := usecase.NewAuthUseCase(userRepo, passwordService, tokenService, otpService, limiter, usecase.LoginLimits{
		Attempts:      cfg.Security.LoginAttempts,
		Window:        cfg.Security.LoginWindow,
		BlockDuration: cfg.Security.BlockDuration,
	}, appLogger)
	adminUseCase := usecase.NewAdminUseCase(tx, orgRepo, userRepo, auditeeRepo, passwordService, mailer, settings)
	universeUseCase := usecase.NewUniverseUseCase(universeRepo, auditeeRepo)
	auditUseCase := usecase.NewAuditUseCase(tx, auditRepo, auditeeRepo, userRepo)
	assessmentUseCase := usecase.NewRiskAssessmentUseCase(tx, auditRepo, assessmentRepo, hub)
	folderUseCase := usecase.NewFolderUseCase(tx, auditRepo, assessmentRepo, folderRepo, wpRepo, rowValidator, hub)
	wpUseCase := usecase.NewWorkingPaperUseCase(tx, wpRepo, rowValidator)
	procedureUseCase := usecase.NewProcedureUseCase(tx, auditRepo, assessmentRepo, procedureRepo, folderRepo, wpRepo, fileStorage)
	issueUseCase := usecase.NewIssueUseCase(tx, auditRepo, assessmentRepo, procedureRepo, issueRepo, reviewRepo, hub, appMetrics)
	commentUseCase := usecase.NewCommentUseCase(tx, auditRepo, auditeeRepo, issueRepo, commentRepo, fileStorage, mailer, hub, settings)
	followupUseCase := usecase.NewFollowupUseCase(tx, auditRepo, auditeeRepo, issueRepo, followupRepo, fileStorage, hub, settings)
	dashboardUseCase := usecase.NewDashboardUseCase(issueRepo, commentRepo, settings)
	reportUseCase := usecase.NewReportUseCase(auditRepo, issueRepo, commentRepo, export.NewDocxExporter(), settings)
	assistantUseCase := usecase.NewAssistantUseCase(assistant, usecase.AssistantConfig{
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
		MaxWait:           cfg.AI.MaxWait,
	})

	// HTTP
	clock := ports.SystemClock{}
	maxUpload := cfg.Storage.MaxUploadSize
	handlers := httpadapter.Handlers{
		Auth:      httpadapter.NewAuthHandler(authUseCase, clock, appLogger),
		Admin:     httpadapter.NewAdminHandler(adminUseCase, universeUseCase, clock, appLogger),
		Audit:     httpadapter.NewAuditHandler(auditUseCase, assessmentUseCase, folderUseCase, procedureUseCase, clock, appLogger, maxUpload),
		Template:  httpadapter.NewTemplateHandler(wpUseCase, clock, appLogger),
		Issue:     httpadapter.NewIssueHandler(issueUseCase, reportUseCase, clock, appLogger),
		Comment:   httpadapter.NewCommentHandler(commentUseCase, followupUseCase, dashboardUseCase, clock, appLogger, maxUpload),
		Assistant: httpadapter.NewAssistantHandler(assistantUseCase, clock, appLogger),
	}

	server := httpadapter.NewServer(httpadapter.ServerConfig{
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		CORSOrigins:  cfg.Security.CORSOrigins,
		// login throttling lives in the auth use case, this only caps raw request volume per IP
		LoginLimit: middleware.RateLimitPolicy{
			Name:   "login",
			Limit:  cfg.Security.LoginAttempts * 4,
			Window: cfg.Security.LoginWindow,
		},
		SubmitLimit: middleware.RateLimitPolicy{
			Name:          "submit",
			Limit:         cfg.Security.SubmitAttempts,
			Window:        cfg.Security.SubmitWindow,
			BlockDuration: cfg.Security.BlockDuration,
		},
	}, handlers, httpadapter.Infrastructure{
		Auth:      middleware.NewAuthMiddleware(tokenService),
		RateLimit: middleware.NewRateLimitMiddleware(limiter, appMetrics, appLogger),
		Metrics:   appMetrics,
		Realtime:  hub,
		Health:    db.PingContext,
		Logger:    appLogger,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		appLogger.Error(context.Background(), "Server failed", err, nil)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "Server forced to shutdown", err, nil)
	}
	stop()
	appLogger.Info(shutdownCtx, "Server exited", nil)
}
