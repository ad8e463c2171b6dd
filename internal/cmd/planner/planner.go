// Package planner parses planner command flags and launches the runtime.
package planner

import (
	"context"
	"flag"
	"time"

	plannerapp "github.com/hearthplan/hearthplan/internal/app/planner"
	entrypoint "github.com/hearthplan/hearthplan/internal/platform/cmd"
)

// Config holds planner command configuration.
type Config struct {
	LocalStorePath string        `env:"HEARTHPLAN_LOCAL_STORE_PATH" envDefault:"hearthplan.db"`
	IdentityID     string        `env:"HEARTHPLAN_IDENTITY_ID"`
	IdentityEmail  string        `env:"HEARTHPLAN_IDENTITY_EMAIL"`
	TokenSecret    string        `env:"HEARTHPLAN_TOKEN_SECRET"`
	TokenTTL       time.Duration `env:"HEARTHPLAN_TOKEN_TTL" envDefault:"1h"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.LocalStorePath, "local-store", cfg.LocalStorePath, "The device state database path")
	fs.StringVar(&cfg.IdentityID, "identity-id", cfg.IdentityID, "The local development identity id")
	fs.StringVar(&cfg.IdentityEmail, "identity-email", cfg.IdentityEmail, "The local development identity email")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "The access token lifetime")

	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the planner runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePlanner, func(context.Context) error {
		return plannerapp.Run(ctx, plannerapp.RuntimeConfig{
			LocalStorePath: cfg.LocalStorePath,
			IdentityID:     cfg.IdentityID,
			IdentityEmail:  cfg.IdentityEmail,
			TokenSecret:    cfg.TokenSecret,
			TokenTTL:       cfg.TokenTTL,
		})
	})
}
