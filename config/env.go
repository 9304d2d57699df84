package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names read at startup.
const (
	EnvLiveTrading = "LIVE_TRADING"
	EnvKalshiKeyID = "KALSHI_KEY_ID"
	EnvKalshiKey   = "KALSHI_KEY_PATH"
)

// EnvConfig carries switches and secrets that never live in the config file.
type EnvConfig struct {
	LiveTrading bool
	KeyID       string
	KeyPath     string
}

// LoadEnv loads a .env file when present and reads the environment. A missing
// .env file is not an error.
func LoadEnv(files ...string) (*EnvConfig, bool) {
	loaded := godotenv.Load(files...) == nil
	return &EnvConfig{
		LiveTrading: liveTrading(os.Getenv(EnvLiveTrading)),
		KeyID:       os.Getenv(EnvKalshiKeyID),
		KeyPath:     os.Getenv(EnvKalshiKey),
	}, loaded
}

func liveTrading(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
