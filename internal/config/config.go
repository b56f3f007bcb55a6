package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// App holds process-level settings: how the server runs, not what the camera
// streams. The camera record itself lives in the Store (see record.go).
type App struct {
	Mode       string `mapstructure:"mode"`
	StaticPath string `mapstructure:"static_path"`
	RecordPath string `mapstructure:"record_path"`
	Secret     string `mapstructure:"secret"`

	// Role selects which peer sends the initial SDP offer: "offer" means the
	// server offers, "answer" means the viewer does.
	Role string `mapstructure:"role"`
	// ViewerMode is "single" (a new viewer preempts the current one) or
	// "multi" (no preemption).
	ViewerMode string `mapstructure:"viewer_mode"`

	VideoSource string `mapstructure:"video_source"`

	WifiWatchdog bool          `mapstructure:"wifi_watchdog"`
	WifiDelay    time.Duration `mapstructure:"wifi_delay"`
	WifiAPSSID   string        `mapstructure:"wifi_ap_ssid"`
}

func Load() (*App, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/server.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("static_path", "./web")
	v.SetDefault("record_path", "config/config.yaml")
	v.SetDefault("role", "offer")
	v.SetDefault("viewer_mode", "single")
	v.SetDefault("video_source", "./web/sample.ivf")
	v.SetDefault("wifi_watchdog", false)
	v.SetDefault("wifi_delay", "30s")
	v.SetDefault("wifi_ap_ssid", "RevCam")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg App
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
