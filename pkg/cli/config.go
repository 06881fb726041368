package cli

import (
	"context"
	"os"
	"time"

	"github.com/bantam-dev/bantam/pkg/adapter"
	"github.com/bantam-dev/bantam/pkg/policy"
	"github.com/bantam-dev/bantam/pkg/repository"
	"github.com/bantam-dev/bantam/pkg/tool"
	"github.com/bantam-dev/bantam/pkg/tool/calendar"
	"github.com/bantam-dev/bantam/pkg/tool/crm"
	"github.com/bantam-dev/bantam/pkg/usecase/session"
	"github.com/bantam-dev/bantam/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	logLevel string

	// Repository
	backend  string
	dbPath   string
	project  string
	database string

	// Gemini
	geminiAPIKey   string
	geminiModel    string
	geminiProject  string
	geminiLocation string

	// Tenant policies
	tenantsFile string
	policyDir   string

	// Session lifecycle
	bucket      string
	redisAddr   string
	idleTimeout time.Duration
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("BANTAM_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "Storage backend (memory, sqlite, firestore)",
			Value:       "memory",
			Sources:     cli.EnvVars("BANTAM_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "db-path",
			Usage:       "SQLite database path",
			Value:       "bantam.db",
			Sources:     cli.EnvVars("BANTAM_DB_PATH"),
			Destination: &cfg.dbPath,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "tenants",
			Usage:       "Path to the tenant policy catalog (YAML); empty runs single-tenant mode",
			Sources:     cli.EnvVars("BANTAM_TENANTS_FILE"),
			Destination: &cfg.tenantsFile,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego files overriding the built-in qualification policy",
			Sources:     cli.EnvVars("BANTAM_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// llmFlags returns flags for the conversational agent backend
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key",
			Sources:     cli.EnvVars("GOOGLE_API_KEY", "GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Value:       "gemini-2.0-flash",
			Sources:     cli.EnvVars("BANTAM_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Vertex AI",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Vertex AI",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

// sessionFlags returns flags for session lifecycle and archival
func sessionFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for transcript archives (disabled when empty)",
			Sources:     cli.EnvVars("BANTAM_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address for session snapshot mirroring (disabled when empty)",
			Sources:     cli.EnvVars("BANTAM_REDIS_ADDR"),
			Destination: &cfg.redisAddr,
		},
		&cli.DurationFlag{
			Name:        "idle-timeout",
			Usage:       "Evict sessions idle longer than this",
			Value:       30 * time.Minute,
			Sources:     cli.EnvVars("BANTAM_IDLE_TIMEOUT"),
			Destination: &cfg.idleTimeout,
		},
	}
}

// setupLogger installs the default logger at the configured level
func (cfg *config) setupLogger() {
	logging.SetDefault(logging.New(cfg.logLevel, os.Stderr))
}

// newRepository creates a repository for the configured backend
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	switch cfg.backend {
	case "memory":
		return repository.NewMemory(), nil
	case "sqlite":
		return repository.NewSQLite(cfg.dbPath)
	case "firestore":
		if cfg.project == "" {
			return nil, goerr.New("project is required for the firestore backend")
		}
		return repository.NewFirestore(ctx, cfg.project, cfg.database)
	default:
		return nil, goerr.New("unknown backend", goerr.V("backend", cfg.backend))
	}
}

// newGemini creates the conversational agent adapter
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject != "" {
		return adapter.NewGeminiVertex(ctx, cfg.geminiProject, cfg.geminiLocation,
			adapter.WithModel(cfg.geminiModel))
	}
	if cfg.geminiAPIKey == "" {
		return nil, goerr.New("gemini-api-key is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiAPIKey, adapter.WithModel(cfg.geminiModel))
}

// newEvaluator builds the qualification evaluator, preferring a policy
// directory over the embedded rules when one is configured
func (cfg *config) newEvaluator(ctx context.Context) (*policy.Evaluator, error) {
	if cfg.policyDir != "" {
		return policy.NewEvaluatorFromDir(ctx, cfg.policyDir)
	}
	return policy.NewEvaluator(ctx)
}

// newRegistry wires the full session stack: repository, tools, tenant
// catalog, policy evaluator, and the optional archive/mirror backends.
func (cfg *config) newRegistry(ctx context.Context) (*session.Registry, repository.Repository, error) {
	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}

	catalog, err := policy.NewCatalog(cfg.tenantsFile)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}

	evaluator, err := cfg.newEvaluator(ctx)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}

	client := &tool.Client{Repo: repo}
	tools := tool.New(crm.New(client), calendar.New(client))

	regCfg := session.RegistryConfig{
		Catalog:     catalog,
		Gemini:      gemini,
		Tools:       tools,
		Evaluator:   evaluator,
		IdleTimeout: cfg.idleTimeout,
	}

	if cfg.bucket != "" {
		storage, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			repo.Close()
			return nil, nil, err
		}
		regCfg.Storage = storage
	}

	if cfg.redisAddr != "" {
		regCfg.Redis = redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
	}

	return session.NewRegistry(regCfg), repo, nil
}
