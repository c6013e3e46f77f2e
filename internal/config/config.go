package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the configuration settings for the geomap web client.
// It includes the environment, server port, the base URL of the remote
// embeddings platform, the static dataset location, and request tuning knobs.
//
// Fields:
// - Env: The current environment (e.g., local, development, production).
// - Port: The port for the web/monitoring server.
// - APIBaseURL: The base URL of the remote embeddings platform.
// - DatasetPath: The path to the static city dataset (GeoJSON or FlatGeobuf).
// - DefaultTopK: The number of results requested when the page does not say otherwise.
// - HTTPTimeout: The timeout applied to outbound platform requests.
// - RateLimit: The allowed requests per second towards the platform.
type Config struct {
	Env         string        `mapstructure:"env"`           // Env is the current environment: local, development, production.
	Port        int           `mapstructure:"port"`          // Port is the web server port.
	APIBaseURL  string        `mapstructure:"api_base_url"`  // APIBaseURL points at the embeddings platform.
	DatasetPath string        `mapstructure:"dataset_path"`  // DatasetPath is the static city dataset file.
	DefaultTopK int           `mapstructure:"default_top_k"` // DefaultTopK is the fallback search result count.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`  // HTTPTimeout bounds outbound platform requests.
	RateLimit   int           `mapstructure:"rate_limit"`    // RateLimit caps platform requests per second.
}

// MustLoad loads the configuration from the environment and returns a Config struct.
// A .env file is honored when present. Malformed values panic, matching the
// fail-fast startup contract of the rest of the application.
func MustLoad() *Config {
	_ = godotenv.Load()

	vpr := viper.New()
	vpr.SetEnvPrefix("GEOMAP")
	vpr.AutomaticEnv()

	vpr.SetDefault("env", "production")
	vpr.SetDefault("port", 8081)
	vpr.SetDefault("api_base_url", "http://localhost:8000")
	vpr.SetDefault("dataset_path", "data/cities.geojson")
	vpr.SetDefault("default_top_k", 5)
	vpr.SetDefault("http_timeout", "15s")
	vpr.SetDefault("rate_limit", 10)

	timeout, err := time.ParseDuration(vpr.GetString("http_timeout"))
	if err != nil {
		panic("failed to parse http timeout from configuration")
	}

	port := vpr.GetInt("port")
	if port <= 0 {
		panic("failed to parse port for web server from configuration")
	}

	topK := vpr.GetInt("default_top_k")
	if topK <= 0 {
		panic("failed to parse default top-k from configuration, must be a positive integer")
	}

	return &Config{
		Env:         vpr.GetString("env"),
		Port:        port,
		APIBaseURL:  vpr.GetString("api_base_url"),
		DatasetPath: vpr.GetString("dataset_path"),
		DefaultTopK: topK,
		HTTPTimeout: timeout,
		RateLimit:   vpr.GetInt("rate_limit"),
	}
}
