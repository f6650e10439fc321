// Package kconfig holds the kernel's process-wide configuration (spec.md §6).
package kconfig

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// NonceComparisonMode resolves spec.md §9's OCSP-nonce open question.
type NonceComparisonMode string

const (
	// NonceStrict requires byte-for-byte equality.
	NonceStrict NonceComparisonMode = "strict"
	// NonceTolerant accepts a single leading zero-byte difference, as the
	// original integer-encoded nonce comparison did.
	NonceTolerant NonceComparisonMode = "tolerant"
)

// Config is the kernel's process-wide tunable state.
type Config struct {
	ComplianceLevel       int                 `koanf:"compliance_level"`
	SideChannelProtection bool                `koanf:"side_channel_protection"`
	KeyingIterations      int                 `koanf:"keying_iterations"`
	EncryptionAlgorithm   string              `koanf:"encryption_algorithm"`
	HashAlgorithm         string              `koanf:"hash_algorithm"`
	ObjectTableInitSize   int                 `koanf:"object_table_init_size"`
	ObjectTableMaxSize    int                 `koanf:"object_table_max_size"`
	BusyWaitIterationCap  int                 `koanf:"busy_wait_iteration_cap"`
	BusyWaitWarnThreshold int                 `koanf:"busy_wait_warn_threshold"`
	MessageQueueCapacity  int                 `koanf:"message_queue_capacity"`
	SweepInterval         string              `koanf:"sweep_interval"`
	NonceComparison       NonceComparisonMode `koanf:"nonce_comparison"`
}

// Default returns the kernel's built-in configuration, matching cryptlib's
// compiled-in defaults for compliance level and iteration counts.
func Default() *Config {
	return &Config{
		ComplianceLevel:       1,
		SideChannelProtection: true,
		KeyingIterations:      2000,
		EncryptionAlgorithm:   "aes",
		HashAlgorithm:         "sha2-256",
		ObjectTableInitSize:   256,
		ObjectTableMaxSize:    16384,
		BusyWaitIterationCap:  500,
		BusyWaitWarnThreshold: 100,
		MessageQueueCapacity:  16,
		SweepInterval:         "30s",
		NonceComparison:       NonceTolerant,
	}
}

// SweepPeriod parses SweepInterval, falling back to str2duration for
// non-Go-native forms with day or week units ("1d", "2w").
func (c *Config) SweepPeriod() (time.Duration, error) {
	if d, err := time.ParseDuration(c.SweepInterval); err == nil {
		return d, nil
	}
	d, err := str2duration.ParseDuration(c.SweepInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid sweep_interval %q: %w", c.SweepInterval, err)
	}
	return d, nil
}

// Load builds a Config from built-in defaults overlaid with KERNELGUARD_*
// environment variables, the same koanf env+structs layering the teacher's
// pkg/config uses for compozy.yaml.
func Load() (*Config, error) {
	k := koanf.New(".")
	cfg := Default()
	if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load default config: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: "KERNELGUARD_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ToLower(strings.TrimPrefix(k, "KERNELGUARD_"))
			return k, v
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}
	out := &Config{}
	if err := k.Unmarshal("", out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return out, nil
}

type ctxKey struct{}

var configCtxKey = ctxKey{}

func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configCtxKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	if ctx != nil {
		if cfg, ok := ctx.Value(configCtxKey).(*Config); ok && cfg != nil {
			return cfg
		}
	}
	return Default()
}
