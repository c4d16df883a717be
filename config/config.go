// Package config loads the YAML configuration of the mprpc command.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mprpc/codec"
	"mprpc/logger"
	"mprpc/protocol"
)

type Config struct {
	Registry RegistryConfig `yaml:"registry"`
	Call     CallConfig     `yaml:"call"`
	Log      LogConfig      `yaml:"log"`
}

type RegistryConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type CallConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxResponseSize uint32        `yaml:"max_response_size"`
	Codec           string        `yaml:"codec"`
}

type LogConfig struct {
	Dir       string `yaml:"dir"`
	Level     string `yaml:"level"`
	QueueSize int    `yaml:"queue_size"`
}

// Default returns the configuration used for every key the file leaves out.
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{
			Endpoints:   []string{"127.0.0.1:2379"},
			DialTimeout: 5 * time.Second,
		},
		Call: CallConfig{
			Timeout:         3 * time.Second,
			MaxResponseSize: protocol.DefaultMaxResponseSize,
			Codec:           "binary",
		},
		Log: LogConfig{
			Dir:       ".",
			Level:     "info",
			QueueSize: logger.DefaultQueueSize,
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Registry.Endpoints) == 0 {
		errs = append(errs, errors.New("config: registry.endpoints is empty"))
	}
	if c.Call.Timeout < 0 {
		errs = append(errs, errors.New("config: call.timeout must not be negative"))
	}
	if c.Call.MaxResponseSize == 0 {
		errs = append(errs, errors.New("config: call.max_response_size must be positive"))
	}
	if _, err := codec.ParseType(c.Call.Codec); err != nil {
		errs = append(errs, fmt.Errorf("config: call.codec: %w", err))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: log.level: %w", err))
	}
	if c.Log.QueueSize < 0 {
		errs = append(errs, errors.New("config: log.queue_size must not be negative"))
	}
	return errors.Join(errs...)
}

// CodecType returns the parsed call.codec. Validate has already checked it.
func (c *Config) CodecType() codec.CodecType {
	t, _ := codec.ParseType(c.Call.Codec)
	return t
}

// LogLevel returns the parsed log.level. Validate has already checked it.
func (c *Config) LogLevel() logger.Level {
	l, _ := logger.ParseLevel(c.Log.Level)
	return l
}
