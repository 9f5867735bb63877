package authflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alumnihub/authflow/pkg/config"
	"github.com/alumnihub/authflow/pkg/email"
	"github.com/alumnihub/authflow/pkg/flowstash"
	"github.com/alumnihub/authflow/pkg/identity"
	"github.com/alumnihub/authflow/pkg/logger"
	"github.com/alumnihub/authflow/pkg/otp"
	"github.com/alumnihub/authflow/pkg/pg"
	"github.com/alumnihub/authflow/pkg/profile"
	"github.com/alumnihub/authflow/pkg/redirect"
	"github.com/alumnihub/authflow/pkg/redis"
	"github.com/alumnihub/authflow/pkg/session"
	"github.com/alumnihub/authflow/pkg/syncbridge"
	"github.com/alumnihub/authflow/pkg/validator"
)

// ModuleConfig carries the settings the composition root needs beyond the
// per-package configs it loads itself.
type ModuleConfig struct {
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	DomainsFile     string        `env:"ALLOWED_DOMAINS_FILE"`
	DevEmailDir     string        `env:"DEV_EMAIL_DIR" envDefault:".emails"`
	StashTTL        time.Duration `env:"FLOW_STASH_TTL" envDefault:"15m"`
	DefaultRedirect string        `env:"DEFAULT_REDIRECT" envDefault:"/"`
}

// Module bundles one flow instance's collaborators, wired from environment
// configuration. Construct one per flow mount; shared infrastructure (pool,
// redis client) is created once and reused across instances.
type Module struct {
	Controller *session.Controller
	Protocol   *otp.Protocol
	Guard      *redirect.Guard
	Gateway    *profile.Gateway
	Bridge     *syncbridge.Client
	Flow       *Flow
	Stash      flowstash.Stash
}

// Deps is the shared infrastructure built once at process start.
type Deps struct {
	Provider identity.Provider
	Store    profile.Store
	Log      *slog.Logger
}

// BuildDeps connects the databases, runs migrations, and assembles the
// provider and profile store from environment configuration.
func BuildDeps(ctx context.Context, log *slog.Logger) (*Deps, func(), error) {
	if log == nil {
		log = logger.Discard()
	}

	var modCfg ModuleConfig
	if err := config.Load(&modCfg); err != nil {
		return nil, nil, fmt.Errorf("load module config: %w", err)
	}

	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return nil, nil, fmt.Errorf("load postgres config: %w", err)
	}
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	sender, err := buildSender(modCfg)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	var idCfg identity.LocalConfig
	if err := config.Load(&idCfg); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("load identity config: %w", err)
	}

	deps := &Deps{
		Provider: identity.NewLocalProvider(idCfg,
			identity.WithLocalMailer(sender),
			identity.WithLocalLogger(log),
		),
		Store: profile.NewPostgresStore(pool),
		Log:   log,
	}
	return deps, pool.Close, nil
}

// BuildModule assembles one flow instance over shared deps. The flowID scopes
// the stash so duplicate tabs share pending state while other devices do not.
func BuildModule(ctx context.Context, deps *Deps, nav redirect.Navigator, flowID string) (*Module, error) {
	var modCfg ModuleConfig
	if err := config.Load(&modCfg); err != nil {
		return nil, fmt.Errorf("load module config: %w", err)
	}

	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		return nil, fmt.Errorf("load redis config: %w", err)
	}
	client, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	if flowID == "" {
		flowID = uuid.NewString()
	}
	stash := flowstash.NewRedisStash(client, flowID, modCfg.StashTTL)

	allowlist, err := loadAllowlist(modCfg)
	if err != nil {
		return nil, err
	}

	controller := session.NewController(deps.Provider,
		session.WithAllowlist(allowlist),
		session.WithLogger(deps.Log),
	)
	protocol := otp.NewProtocol(controller,
		otp.WithStash(stash),
		otp.WithProtocolLogger(deps.Log),
	)
	gateway := profile.NewGateway(deps.Store, profile.WithGatewayLogger(deps.Log))

	var bridgeCfg syncbridge.ClientConfig
	if err := config.Load(&bridgeCfg); err != nil {
		return nil, fmt.Errorf("load sync bridge config: %w", err)
	}
	bridge := syncbridge.NewClient(bridgeCfg, syncbridge.WithClientLogger(deps.Log))

	guard := redirect.NewGuard(nav,
		redirect.WithSyncer(bridge),
		redirect.WithTargetStash(stash),
		redirect.WithDefaultTarget(modCfg.DefaultRedirect),
		redirect.WithGuardLogger(deps.Log),
	)

	flow := NewFlow(
		WithFlowStash(stash),
		WithFlowLogger(deps.Log),
		WithCodeSentListener(protocol),
	)

	return &Module{
		Controller: controller,
		Protocol:   protocol,
		Guard:      guard,
		Gateway:    gateway,
		Bridge:     bridge,
		Flow:       flow,
		Stash:      stash,
	}, nil
}

func buildSender(cfg ModuleConfig) (email.Sender, error) {
	var emailCfg email.Config
	if err := config.Load(&emailCfg); err != nil {
		return nil, fmt.Errorf("load email config: %w", err)
	}

	if cfg.Environment == "development" || emailCfg.PostmarkServerToken == "" {
		return email.NewDevSender(cfg.DevEmailDir), nil
	}
	return email.NewPostmarkSender(emailCfg)
}

func loadAllowlist(cfg ModuleConfig) (*validator.DomainAllowlist, error) {
	if cfg.DomainsFile == "" {
		// No file means open enrollment; the allowlist admits everything.
		return nil, nil
	}
	allowlist, err := validator.LoadDomainAllowlist(cfg.DomainsFile)
	if err != nil {
		return nil, fmt.Errorf("load domain allowlist: %w", err)
	}
	return allowlist, nil
}
