package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTestConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := FromViper(v)
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.Logging.Redact)

	assert.Equal(t, "error", cfg.FFmpeg.LogLevel)
	assert.Equal(t, 10*time.Minute, cfg.FFmpeg.Timeout)

	assert.Equal(t, "ds_480x272.yuv", cfg.Video.Input)
	assert.Equal(t, "ds.h264", cfg.Video.Output)
	assert.Equal(t, 480, cfg.Video.Width)
	assert.Equal(t, 272, cfg.Video.Height)
	assert.Equal(t, 100, cfg.Video.Frames)
	assert.Equal(t, 400000, cfg.Video.Bitrate)
	assert.Equal(t, 250, cfg.Video.GOPSize)
	assert.Equal(t, 3, cfg.Video.MaxBFrames)
	assert.Equal(t, 10, cfg.Video.QMin)
	assert.Equal(t, 51, cfg.Video.QMax)

	assert.Equal(t, "tdjm.pcm", cfg.Audio.Input)
	assert.Equal(t, "tdjm.aac", cfg.Audio.Output)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 1000, cfg.Audio.Frames)

	assert.Equal(t, 352, cfg.Codec.Width)
	assert.Equal(t, 288, cfg.Codec.Height)
	assert.Equal(t, 25, cfg.Codec.Frames)
	assert.Equal(t, 10, cfg.Codec.GOPSize)
	assert.Equal(t, 1, cfg.Codec.MaxBFrames)
	assert.Equal(t, "aac", cfg.Codec.AudioCodec)
	assert.Equal(t, 200, cfg.Codec.AudioFrames)
	assert.InDelta(t, 440.0, cfg.Codec.ToneFrequency, 0.001)
	assert.Equal(t, ByteSize(4096), cfg.Codec.InbufSize)
	assert.Equal(t, ByteSize(20480), cfg.Codec.AudioInbufSize)
	assert.Equal(t, ByteSize(4096), cfg.Codec.AudioRefill)

	assert.Equal(t, 100, cfg.Frames.Count)
	assert.Equal(t, EngineFFmpeg, cfg.Scale.Engine)
	assert.Equal(t, 320, cfg.Scale.SourceWidth)
	assert.Equal(t, "yuvout.yuv", cfg.Scale.SourceOutput)
	assert.Equal(t, "cuc_ieschool.ts", cfg.Demux.Input)
	assert.Equal(t, "cuc_view_encode.jpg", cfg.Picture.Output)
}

func TestLoad_FromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "avkit.yaml")
	content := `
logging:
  level: debug
  format: json
video:
  width: 640
  height: 360
  bitrate: 800000
codec:
  audio_codec: mp2
  inbuf_size: 8KiB
scale:
  engine: native
ffmpeg:
  timeout: 30s
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 640, cfg.Video.Width)
	assert.Equal(t, 360, cfg.Video.Height)
	assert.Equal(t, 800000, cfg.Video.Bitrate)
	assert.Equal(t, "mp2", cfg.Codec.AudioCodec)
	assert.Equal(t, ByteSize(8192), cfg.Codec.InbufSize)
	assert.Equal(t, EngineNative, cfg.Scale.Engine)
	assert.Equal(t, 30*time.Second, cfg.FFmpeg.Timeout)

	// untouched keys keep their defaults
	assert.Equal(t, 250, cfg.Video.GOPSize)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AVKIT_VIDEO_FRAMES", "12")
	t.Setenv("AVKIT_PICTURE_ENGINE", "native")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Video.Frames)
	assert.Equal(t, EngineNative, cfg.Picture.Engine)
}

func TestLoad_InvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "avkit.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("logging: [unclosed"), 0o600))

	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"zero width", func(c *Config) { c.Video.Width = 0 }, "video width"},
		{"negative codec height", func(c *Config) { c.Codec.Height = -1 }, "codec width"},
		{"zero frame rate", func(c *Config) { c.Video.FrameRate = 0 }, "video.frame_rate"},
		{"qmin above qmax", func(c *Config) { c.Video.QMin = 52 }, "video.qmin"},
		{"unknown audio codec", func(c *Config) { c.Audio.Codec = "opus" }, "audio.codec"},
		{"unknown round trip codec", func(c *Config) { c.Codec.AudioCodec = "ac3" }, "codec.audio_codec"},
		{"unknown scale engine", func(c *Config) { c.Scale.Engine = "gpu" }, "scale.engine"},
		{"unknown picture engine", func(c *Config) { c.Picture.Engine = "gpu" }, "picture.engine"},
		{"quality out of range", func(c *Config) { c.Picture.Quality = 101 }, "picture.quality"},
		{"refill above buffer", func(c *Config) { c.Codec.AudioRefill = c.Codec.AudioInbufSize }, "audio_refill_threshold"},
		{"empty demux buffer", func(c *Config) { c.Demux.BufferSize = 0 }, "demux.buffer_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultTestConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
