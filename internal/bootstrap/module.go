package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"accessdesk/internal/bootstrap/config"
	"accessdesk/internal/bootstrap/database"
	"accessdesk/internal/bootstrap/logging"
	"accessdesk/internal/infrastructure/dockerhub"
	githubinfra "accessdesk/internal/infrastructure/github"
	sqliterepo "accessdesk/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "accessdesk/internal/infrastructure/persistence/sqlite/uow"
	"accessdesk/internal/infrastructure/resend"
	"accessdesk/internal/infrastructure/supabase"
	"accessdesk/internal/ports"
	"accessdesk/internal/usecase/fulfillment"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewRequestRepository,
			fx.As(new(ports.RequestRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideGrantor,
			fx.As(new(ports.AccessGrantor)),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideIssuer,
			fx.As(new(ports.CredentialIssuer)),
		),
	),
	fx.Provide(
		fx.Annotate(
			provideNotifier,
			fx.As(new(ports.Notifier)),
		),
	),
	fx.Provide(provideAuthClient),
	fx.Provide(fulfillment.NewService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideGrantor(cfg config.Config) (*githubinfra.Grantor, error) {
	return githubinfra.NewGrantor(githubinfra.Config{
		Token:   cfg.GitHub.Token,
		Owner:   cfg.GitHub.Owner,
		Repos:   cfg.GitHub.Repos,
		Timeout: config.IntegrationTimeout,
	})
}

func provideIssuer(cfg config.Config) *dockerhub.Issuer {
	return dockerhub.NewIssuer(dockerhub.Config{
		Username: cfg.Registry.Username,
		Token:    cfg.Registry.Token,
		Timeout:  config.IntegrationTimeout,
	})
}

func provideNotifier(cfg config.Config) *resend.Notifier {
	repository := ""
	if cfg.GitHub.Owner != "" && len(cfg.GitHub.Repos) > 0 {
		repository = cfg.GitHub.Owner + "/" + cfg.GitHub.Repos[0]
	}
	return resend.NewNotifier(resend.Config{
		APIKey:           cfg.Mailer.APIKey,
		From:             cfg.Mailer.From,
		Repository:       repository,
		RegistryUsername: cfg.Registry.Username,
		Image:            cfg.Registry.Image,
		Timeout:          config.IntegrationTimeout,
	})
}

func provideAuthClient(cfg config.Config) *supabase.Client {
	return supabase.NewClient(supabase.Config{
		URL:     cfg.Auth.URL,
		AnonKey: cfg.Auth.AnonKey,
	})
}
