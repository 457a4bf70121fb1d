// Package config loads luma's configuration from LUMA_* environment
// variables, a YAML file and built-in defaults, in that order of
// precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full recognized option set.
type Config struct {
	RTMP    RTMPConfig    `mapstructure:"rtmp"`
	HTTPFLV HTTPFLVConfig `mapstructure:"http_flv"`
	HLS     HLSConfig     `mapstructure:"hls"`
	FLV     FLVConfig     `mapstructure:"flv"`
	Monitor MonitorConfig `mapstructure:"monitor"`

	FullGop         bool   `mapstructure:"full_gop"`
	GopCacheFrames  int    `mapstructure:"gop_cache_frames"`
	ChannelCapacity int    `mapstructure:"channel_capacity"`
	AuthEnable      bool   `mapstructure:"auth_enable"`
	Redis           string `mapstructure:"redis"`
	LogLevel        string `mapstructure:"log_level"`
}

type RTMPConfig struct {
	Port int `mapstructure:"port"`
}

type HTTPFLVConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

type HLSConfig struct {
	Enable     bool          `mapstructure:"enable"`
	Port       int           `mapstructure:"port"`
	TsDuration time.Duration `mapstructure:"ts_duration"`
	DataPath   string        `mapstructure:"data_path"`
	Cleanup    CleanupConfig `mapstructure:"cleanup"`
}

type CleanupConfig struct {
	MaxFilesPerStream   int `mapstructure:"max_files_per_stream"`
	MinFileAgeSeconds   int `mapstructure:"min_file_age_seconds"`
	CleanupDelaySeconds int `mapstructure:"cleanup_delay_seconds"`
	MaxTotalSizeMB      int `mapstructure:"max_total_size_mb"`
}

type FLVConfig struct {
	Enable   bool   `mapstructure:"enable"`
	DataPath string `mapstructure:"data_path"`
}

type MonitorConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// SetDefaults seeds v with the default for every recognized option.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("rtmp.port", 1935)

	v.SetDefault("http_flv.enable", true)
	v.SetDefault("http_flv.port", 3006)

	v.SetDefault("hls.enable", true)
	v.SetDefault("hls.port", 3001)
	v.SetDefault("hls.ts_duration", "1s")
	v.SetDefault("hls.data_path", "data/")
	v.SetDefault("hls.cleanup.max_files_per_stream", 10)
	v.SetDefault("hls.cleanup.min_file_age_seconds", 30)
	v.SetDefault("hls.cleanup.cleanup_delay_seconds", 5)
	v.SetDefault("hls.cleanup.max_total_size_mb", 1000)

	v.SetDefault("flv.enable", false)
	v.SetDefault("flv.data_path", "data/flv")

	v.SetDefault("monitor.enable", true)
	v.SetDefault("monitor.port", 8086)

	v.SetDefault("full_gop", true)
	v.SetDefault("gop_cache_frames", 1024)
	v.SetDefault("channel_capacity", 256)
	v.SetDefault("auth_enable", false)
	v.SetDefault("redis", "redis://localhost:6379")
	v.SetDefault("log_level", "info")
}

// Load unmarshals and validates the configuration in v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the servers cannot start with.
func (c *Config) Validate() error {
	if err := validPort("rtmp.port", c.RTMP.Port); err != nil {
		return err
	}
	if c.HTTPFLV.Enable {
		if err := validPort("http_flv.port", c.HTTPFLV.Port); err != nil {
			return err
		}
	}
	if c.HLS.Enable {
		if err := validPort("hls.port", c.HLS.Port); err != nil {
			return err
		}
		if c.HLS.TsDuration <= 0 {
			return fmt.Errorf("invalid config: hls.ts_duration must be positive, got %v", c.HLS.TsDuration)
		}
		if strings.TrimSpace(c.HLS.DataPath) == "" {
			return fmt.Errorf("invalid config: hls.data_path must not be empty")
		}
		cl := c.HLS.Cleanup
		if cl.MaxFilesPerStream <= 0 {
			return fmt.Errorf("invalid config: hls.cleanup.max_files_per_stream must be positive, got %v", cl.MaxFilesPerStream)
		}
		if cl.MinFileAgeSeconds < 0 || cl.CleanupDelaySeconds < 0 || cl.MaxTotalSizeMB <= 0 {
			return fmt.Errorf("invalid config: hls.cleanup values out of range")
		}
	}
	if c.Monitor.Enable {
		if err := validPort("monitor.port", c.Monitor.Port); err != nil {
			return err
		}
	}
	if c.FLV.Enable && strings.TrimSpace(c.FLV.DataPath) == "" {
		return fmt.Errorf("invalid config: flv.data_path must not be empty")
	}
	if c.ChannelCapacity <= 0 {
		return fmt.Errorf("invalid config: channel_capacity must be positive, got %v", c.ChannelCapacity)
	}
	if c.GopCacheFrames <= 0 {
		return fmt.Errorf("invalid config: gop_cache_frames must be positive, got %v", c.GopCacheFrames)
	}
	if c.AuthEnable && strings.TrimSpace(c.Redis) == "" {
		return fmt.Errorf("invalid config: auth_enable requires redis")
	}
	return nil
}

func validPort(key string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid config: %v must be in 1..65535, got %v", key, port)
	}
	return nil
}
