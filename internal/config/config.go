package config

import "time"

// Config holds runtime settings for the carekeeper sync client.
//
// Fields:
//   - DatabasePath: path of the local SQLite database file.
//   - ServerEndpointAddr: base URL of the backend HTTP API.
//   - AuthToken: bearer token presented on every backend request.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - SyncInterval: how often the engine drains the queue and refreshes.
//   - RetryBackoffMin/Max: bounds of the exponential retry backoff.
//
// Intervals are time.Duration values (e.g., 3*time.Second).
type Config struct {
	DatabasePath        string
	ServerEndpointAddr  string
	AuthToken           string
	OnlineCheckInterval time.Duration
	SyncInterval        time.Duration
	RetryBackoffMin     time.Duration
	RetryBackoffMax     time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "carekeeper.db"
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.OnlineCheckInterval = 3 * time.Second
	c.SyncInterval = 30 * time.Second
	c.RetryBackoffMin = time.Second
	c.RetryBackoffMax = 2 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
