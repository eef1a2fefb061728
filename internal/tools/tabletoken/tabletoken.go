// Package tabletoken issues signed table tokens for the chat WebSocket.
package tabletoken

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/macrotable/internal/platform/cmd"
	"github.com/louisbranch/macrotable/internal/platform/timeouts"
	"github.com/louisbranch/macrotable/internal/services/macros/chat"
)

// Config holds token issuing configuration.
type Config struct {
	Secret string        `env:"TABLE_TOKEN_SECRET"`
	Issuer string        `env:"TABLE_TOKEN_ISSUER" envDefault:"macrotable"`
	UserID string        `env:"TABLE_TOKEN_USER"`
	Role   string        `env:"TABLE_TOKEN_ROLE"   envDefault:"player"`
	TTL    time.Duration `env:"TABLE_TOKEN_TTL"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.TTL == 0 {
		cfg.TTL = timeouts.Token
	}

	fs.StringVar(&cfg.UserID, "user", cfg.UserID, "user id the token is issued to")
	fs.StringVar(&cfg.Role, "role", cfg.Role, "table role: gm or player")
	fs.StringVar(&cfg.Issuer, "issuer", cfg.Issuer, "token issuer")
	fs.DurationVar(&cfg.TTL, "ttl", cfg.TTL, "token lifetime")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run signs a token for cfg and writes it to out.
func Run(out io.Writer, cfg Config) error {
	if out == nil {
		return errors.New("output is required")
	}
	token, err := chat.IssueToken(chat.TokenConfig{
		Secret: []byte(strings.TrimSpace(cfg.Secret)),
		Issuer: cfg.Issuer,
	}, chat.Identity{UserID: cfg.UserID, Role: chat.Role(cfg.Role)}, cfg.TTL)
	if err != nil {
		return fmt.Errorf("issue table token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
