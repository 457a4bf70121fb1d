package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, 1935, cfg.RTMP.Port)
	assert.True(t, cfg.HTTPFLV.Enable)
	assert.Equal(t, 3006, cfg.HTTPFLV.Port)
	assert.True(t, cfg.HLS.Enable)
	assert.Equal(t, 3001, cfg.HLS.Port)
	assert.Equal(t, time.Second, cfg.HLS.TsDuration)
	assert.Equal(t, "data/", cfg.HLS.DataPath)
	assert.Equal(t, 10, cfg.HLS.Cleanup.MaxFilesPerStream)
	assert.Equal(t, 30, cfg.HLS.Cleanup.MinFileAgeSeconds)
	assert.Equal(t, 5, cfg.HLS.Cleanup.CleanupDelaySeconds)
	assert.Equal(t, 1000, cfg.HLS.Cleanup.MaxTotalSizeMB)
	assert.True(t, cfg.FullGop)
	assert.Equal(t, 1024, cfg.GopCacheFrames)
	assert.Equal(t, 256, cfg.ChannelCapacity)
	assert.False(t, cfg.AuthEnable)
	assert.False(t, cfg.FLV.Enable)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	v := newViper()
	v.Set("rtmp.port", 2935)
	v.Set("hls.ts_duration", "4s")
	v.Set("full_gop", false)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 2935, cfg.RTMP.Port)
	assert.Equal(t, 4*time.Second, cfg.HLS.TsDuration)
	assert.False(t, cfg.FullGop)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		key   string
		value interface{}
	}{
		{"rtmp.port", 0},
		{"rtmp.port", 70000},
		{"hls.port", -1},
		{"hls.ts_duration", "0s"},
		{"hls.data_path", "  "},
		{"hls.cleanup.max_files_per_stream", 0},
		{"hls.cleanup.max_total_size_mb", 0},
		{"channel_capacity", 0},
		{"gop_cache_frames", -5},
	}
	for _, c := range cases {
		v := newViper()
		v.Set(c.key, c.value)
		_, err := Load(v)
		assert.Error(t, err, "%v=%v should not validate", c.key, c.value)
	}
}

func TestValidateAuthNeedsRedis(t *testing.T) {
	v := newViper()
	v.Set("auth_enable", true)
	v.Set("redis", "")
	_, err := Load(v)
	assert.Error(t, err)
}

func TestValidateSkipsDisabledSections(t *testing.T) {
	v := newViper()
	v.Set("hls.enable", false)
	v.Set("hls.port", 0) // invalid, but the section is off
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.False(t, cfg.HLS.Enable)
}
