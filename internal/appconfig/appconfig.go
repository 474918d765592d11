// Package appconfig loads process-level settings via viper: environment
// variables prefixed NOSTRMUX_ and an optional nostrmux.yaml file, per
// SPEC_FULL §3/§6. Distinct from internal/store's persisted, Nostr-domain
// Config{private_ws, public_ws}.
package appconfig

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is the immutable, process-lifetime configuration described in
// SPEC_FULL §3.
type AppConfig struct {
	ListenAddr           string
	AdminToken           string
	RelaySendQueueSize   int
	PingInterval         time.Duration
	PongTimeout          time.Duration
	TLSVerifyUpstream    bool
	DedupLRUSize         int
	RestartSweepInterval time.Duration
	ErrorThreshold       int
	RedisURL             string
	SQLitePath           string
}

const envPrefix = "NOSTRMUX"

// Load reads AppConfig from environment variables (prefixed NOSTRMUX_) and,
// if present, an optional nostrmux.yaml in the working directory or
// configDir. Env vars take precedence over the file.
func Load(configDir string) (AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("admin_token", "")
	v.SetDefault("relay_send_queue_size", 256)
	v.SetDefault("ping_interval", "8s")
	v.SetDefault("pong_timeout", "20s")
	v.SetDefault("tls_verify_upstream", true)
	v.SetDefault("dedup_lru_size", 50_000)
	v.SetDefault("restart_sweep_interval", "30s")
	v.SetDefault("error_threshold", 100)
	v.SetDefault("redis_url", "")
	v.SetDefault("sqlite_path", "nostrmux.db")

	v.SetConfigName("nostrmux")
	v.SetConfigType("yaml")
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return AppConfig{}, fmt.Errorf("appconfig: read config file: %w", err)
		}
	}

	pingInterval, err := time.ParseDuration(v.GetString("ping_interval"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("appconfig: parse ping_interval: %w", err)
	}
	pongTimeout, err := time.ParseDuration(v.GetString("pong_timeout"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("appconfig: parse pong_timeout: %w", err)
	}
	restartSweep, err := time.ParseDuration(v.GetString("restart_sweep_interval"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("appconfig: parse restart_sweep_interval: %w", err)
	}

	cfg := AppConfig{
		ListenAddr:           v.GetString("listen_addr"),
		AdminToken:           v.GetString("admin_token"),
		RelaySendQueueSize:   v.GetInt("relay_send_queue_size"),
		PingInterval:         pingInterval,
		PongTimeout:          pongTimeout,
		TLSVerifyUpstream:    v.GetBool("tls_verify_upstream"),
		DedupLRUSize:         v.GetInt("dedup_lru_size"),
		RestartSweepInterval: restartSweep,
		ErrorThreshold:       v.GetInt("error_threshold"),
		RedisURL:             v.GetString("redis_url"),
		SQLitePath:           v.GetString("sqlite_path"),
	}
	return cfg, nil
}
