// Package config handles configuration management for the xsk socket family's
// sample user program.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// UmemConfig holds the parameters of a umem registration.
type UmemConfig struct {
	FrameSize   uint32 `mapstructure:"frame_size"`
	FrameCount  uint32 `mapstructure:"frame_count"`
	Headroom    uint32 `mapstructure:"headroom"`
	FillRingLen uint32 `mapstructure:"fill_ring_len"`
	CompRingLen uint32 `mapstructure:"comp_ring_len"`
}

// RingConfig holds the data-ring capacities for a socket.
type RingConfig struct {
	RxRingLen uint32 `mapstructure:"rx_ring_len"`
	TxRingLen uint32 `mapstructure:"tx_ring_len"`
}

// Config holds the complete configuration for the sample xsk user program.
type Config struct {
	// Binding
	Interface  string `mapstructure:"interface"`
	QueueID    uint32 `mapstructure:"queue_id"`
	SharedUmem bool   `mapstructure:"shared_umem"`

	// Logging
	LogLevel string `mapstructure:"log_level"`

	// Metrics
	EnableMetrics bool `mapstructure:"enable_metrics"`
	AdminPort     int  `mapstructure:"admin_port"`

	// Data path tuning
	ZeroCopy    bool          `mapstructure:"zero_copy"`
	NeedWakeup  bool          `mapstructure:"need_wakeup"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	TxBatch     int           `mapstructure:"tx_batch"`

	Umem UmemConfig `mapstructure:"umem"`
	Ring RingConfig `mapstructure:"ring"`

	// Rebind policy: whether to drain in-flight tx completions from the
	// previous binding before the new one becomes active.
	DrainOnRebind bool `mapstructure:"drain_on_rebind"`
}

// NewConfig returns a configuration populated with the sample program's defaults.
func NewConfig() *Config {
	return &Config{
		Interface:     "lo",
		QueueID:       0,
		LogLevel:      "info",
		EnableMetrics: true,
		AdminPort:     9090,
		ZeroCopy:      false,
		NeedWakeup:    false,
		PollTimeout:   time.Millisecond,
		TxBatch:       16,
		Umem: UmemConfig{
			FrameSize:   2048,
			FrameCount:  4096,
			Headroom:    0,
			FillRingLen: 2048,
			CompRingLen: 2048,
		},
		Ring: RingConfig{
			RxRingLen: 2048,
			TxRingLen: 2048,
		},
		DrainOnRebind: true,
	}
}

// Validate checks internal consistency of the configuration.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("interface is required")
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		return fmt.Errorf("invalid admin_port: %d (must be 1-65535)", c.AdminPort)
	}
	if !isPowerOfTwo(c.Umem.FrameSize) {
		return fmt.Errorf("umem.frame_size must be a power of two, got %d", c.Umem.FrameSize)
	}
	if c.Umem.Headroom >= c.Umem.FrameSize {
		return fmt.Errorf("umem.headroom (%d) must be less than frame_size (%d)", c.Umem.Headroom, c.Umem.FrameSize)
	}
	if !isPowerOfTwo(c.Ring.RxRingLen) || !isPowerOfTwo(c.Ring.TxRingLen) {
		return fmt.Errorf("ring lengths must be powers of two")
	}
	if !isPowerOfTwo(c.Umem.FillRingLen) || !isPowerOfTwo(c.Umem.CompRingLen) {
		return fmt.Errorf("umem ring lengths must be powers of two")
	}
	if c.TxBatch <= 0 {
		return fmt.Errorf("tx_batch must be positive")
	}
	return nil
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// Load builds a Config from command-line flags, environment variables, and
// an optional config file, in that order of precedence.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(v, cmd); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	v.SetEnvPrefix("XSK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interface", getEnvOrDefault("XSK_INTERFACE", "lo"))
	v.SetDefault("queue_id", getIntEnv("XSK_QUEUE_ID", 0))
	v.SetDefault("shared_umem", getBoolEnv("XSK_SHARED_UMEM", false))

	v.SetDefault("log_level", getEnvOrDefault("XSK_LOG_LEVEL", "info"))

	v.SetDefault("enable_metrics", getBoolEnv("XSK_ENABLE_METRICS", true))
	v.SetDefault("admin_port", getIntEnv("XSK_ADMIN_PORT", 9090))

	v.SetDefault("zero_copy", getBoolEnv("XSK_ZERO_COPY", false))
	v.SetDefault("need_wakeup", getBoolEnv("XSK_NEED_WAKEUP", false))
	v.SetDefault("poll_timeout", getDurationEnv("XSK_POLL_TIMEOUT", time.Millisecond))
	v.SetDefault("tx_batch", getIntEnv("XSK_TX_BATCH", 16))

	v.SetDefault("umem.frame_size", getIntEnv("XSK_UMEM_FRAME_SIZE", 2048))
	v.SetDefault("umem.frame_count", getIntEnv("XSK_UMEM_FRAME_COUNT", 4096))
	v.SetDefault("umem.headroom", getIntEnv("XSK_UMEM_HEADROOM", 0))
	v.SetDefault("umem.fill_ring_len", getIntEnv("XSK_UMEM_FILL_RING_LEN", 2048))
	v.SetDefault("umem.comp_ring_len", getIntEnv("XSK_UMEM_COMP_RING_LEN", 2048))

	v.SetDefault("ring.rx_ring_len", getIntEnv("XSK_RX_RING_LEN", 2048))
	v.SetDefault("ring.tx_ring_len", getIntEnv("XSK_TX_RING_LEN", 2048))

	v.SetDefault("drain_on_rebind", getBoolEnv("XSK_DRAIN_ON_REBIND", true))
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	flagBindings := map[string]string{
		"interface":      "interface",
		"queue-id":       "queue_id",
		"log-level":      "log_level",
		"enable-metrics": "enable_metrics",
		"admin-port":     "admin_port",
		"zero-copy":      "zero_copy",
	}

	for flag, configKey := range flagBindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(configKey, f); err != nil {
				return err
			}
		}
	}

	return nil
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// GetAdminAddress returns the full admin/metrics listen address.
func (c *Config) GetAdminAddress() string {
	return fmt.Sprintf(":%d", c.AdminPort)
}
