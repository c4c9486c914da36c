package config

import (
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings holds the WHOOP application credentials the operator registered
// with the provider. Without them connect cannot run and refresh is
// structurally unavailable.
type Settings struct {
	WhoopClientID     string
	WhoopClientSecret string
}

// LoadSettings resolves settings from the environment, with a best-effort
// .env load first so local setups work the same as exported variables.
func LoadSettings() Settings {
	_ = godotenv.Load()

	v := viper.New()
	_ = v.BindEnv("whoop_client_id", "WHOOP_CLIENT_ID")
	_ = v.BindEnv("whoop_client_secret", "WHOOP_CLIENT_SECRET")

	return Settings{
		WhoopClientID:     v.GetString("whoop_client_id"),
		WhoopClientSecret: v.GetString("whoop_client_secret"),
	}
}

// Configured reports whether both client credentials are present.
func (s Settings) Configured() bool {
	return s.WhoopClientID != "" && s.WhoopClientSecret != ""
}
