package config

import (
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds everything the kiosk reads from the environment. A .env
// file in the working directory is loaded first when present.
type Config struct {
	// Addr is the listen address of the kiosk HTTP server.
	Addr string `env:"GACHA_ADDR,default=:8080"`

	// SheetAPIURL points at the spreadsheet web API holding the
	// settings and winners worksheets. When set it takes precedence
	// over SQLitePath.
	SheetAPIURL string `env:"GACHA_SHEET_API_URL"`

	// SQLitePath selects the local sqlite backend for kiosks that run
	// without a network store.
	SQLitePath string `env:"GACHA_SQLITE_PATH"`

	// RegistrationMaxRank is the worst rank that still qualifies for
	// winner registration.
	RegistrationMaxRank int `env:"GACHA_REGISTRATION_MAX_RANK,default=3"`

	// DrawRetries bounds the optimistic-write retry loop.
	DrawRetries int `env:"GACHA_DRAW_RETRIES,default=3"`

	// RevealDelayMillis is the fixed presentation delay between the
	// rolling screen and the result screen.
	RevealDelayMillis int `env:"GACHA_REVEAL_DELAY_MS,default=3500"`

	// SessionTTLMinutes is how long an idle kiosk session survives.
	SessionTTLMinutes int `env:"GACHA_SESSION_TTL_MIN,default=60"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}
