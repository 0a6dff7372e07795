// Package config provides configuration management for avkit using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "AVKIT"

// Engines selectable for scaling and picture encoding.
const (
	EngineFFmpeg = "ffmpeg"
	EngineNative = "native"
)

// Default configuration values.
const (
	defaultVideoWidth       = 480
	defaultVideoHeight      = 272
	defaultVideoFrames      = 100
	defaultVideoBitrate     = 400000
	defaultVideoGOP         = 250
	defaultVideoMaxBFrames  = 3
	defaultVideoQMin        = 10
	defaultVideoQMax        = 51
	defaultFrameRate        = 25
	defaultAudioSampleRate  = 44100
	defaultAudioChannels    = 2
	defaultAudioBitrate     = 64000
	defaultAudioFrames      = 1000
	defaultCodecWidth       = 352
	defaultCodecHeight      = 288
	defaultCodecFrames      = 25
	defaultCodecGOP         = 10
	defaultCodecAudioFrames = 200
	defaultToneFrequency    = 440.0
	defaultToneAmplitude    = 10000
	defaultInbufSize        = 4096
	defaultAudioInbufSize   = 20480
	defaultAudioRefill      = 4096
	defaultExtractCount     = 100
	defaultScaleWidth       = 320
	defaultScaleHeight      = 240
	defaultScaleFrames      = 100
	defaultDemuxBufferSize  = 188 * 1024
	defaultJPEGQuality      = 90
	defaultFFmpegTimeout    = 10 * time.Minute
)

// Config holds all configuration for the application.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	FFmpeg  FFmpegConfig  `mapstructure:"ffmpeg"`
	Video   VideoConfig   `mapstructure:"video"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Codec   CodecConfig   `mapstructure:"codec"`
	Frames  FramesConfig  `mapstructure:"frames"`
	Scale   ScaleConfig   `mapstructure:"scale"`
	Demux   DemuxConfig   `mapstructure:"demux"`
	Picture PictureConfig `mapstructure:"picture"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
	Redact     bool   `mapstructure:"redact"` // mask credentials in logged values
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath string        `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = auto-detect)
	ProbePath  string        `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = auto-detect)
	LogLevel   string        `mapstructure:"log_level"`   // ffmpeg -loglevel for child processes
	Timeout    time.Duration `mapstructure:"timeout"`     // upper bound for a single ffmpeg run
}

// VideoConfig holds the raw YUV to compressed video encoder settings.
type VideoConfig struct {
	Input      string `mapstructure:"input"`
	Output     string `mapstructure:"output"`
	Width      int    `mapstructure:"width"`
	Height     int    `mapstructure:"height"`
	Frames     int    `mapstructure:"frames"`
	FrameRate  int    `mapstructure:"frame_rate"`
	Bitrate    int    `mapstructure:"bitrate"`
	GOPSize    int    `mapstructure:"gop_size"`
	MaxBFrames int    `mapstructure:"max_b_frames"`
	QMin       int    `mapstructure:"qmin"`
	QMax       int    `mapstructure:"qmax"`
}

// AudioConfig holds the raw PCM to compressed audio encoder settings.
type AudioConfig struct {
	Input      string `mapstructure:"input"`
	Output     string `mapstructure:"output"`
	Codec      string `mapstructure:"codec"`
	SampleRate int    `mapstructure:"sample_rate"`
	Channels   int    `mapstructure:"channels"`
	Bitrate    int    `mapstructure:"bitrate"`
	Frames     int    `mapstructure:"frames"`
}

// CodecConfig holds the synthetic encode/decode round trip settings.
type CodecConfig struct {
	Width         int     `mapstructure:"width"`
	Height        int     `mapstructure:"height"`
	Frames        int     `mapstructure:"frames"`
	Bitrate       int     `mapstructure:"bitrate"`
	GOPSize       int     `mapstructure:"gop_size"`
	MaxBFrames    int     `mapstructure:"max_b_frames"`
	AudioCodec    string  `mapstructure:"audio_codec"` // aac or mp2
	AudioBitrate  int     `mapstructure:"audio_bitrate"`
	AudioFrames   int     `mapstructure:"audio_frames"`
	ToneFrequency float64 `mapstructure:"tone_frequency"`
	ToneAmplitude int     `mapstructure:"tone_amplitude"`
	// Input chunk sizes used when feeding encoded files back to the decoders.
	// Supports human-readable values like "4KiB" or raw byte counts.
	InbufSize      ByteSize `mapstructure:"inbuf_size"`
	AudioInbufSize ByteSize `mapstructure:"audio_inbuf_size"`
	AudioRefill    ByteSize `mapstructure:"audio_refill_threshold"`
}

// FramesConfig holds the decode to PPM settings.
type FramesConfig struct {
	Count  int    `mapstructure:"count"`
	Prefix string `mapstructure:"prefix"`
}

// ScaleConfig holds the synthetic scaling settings.
type ScaleConfig struct {
	Engine       string `mapstructure:"engine"` // ffmpeg, native
	SourceWidth  int    `mapstructure:"source_width"`
	SourceHeight int    `mapstructure:"source_height"`
	Frames       int    `mapstructure:"frames"`
	SourceOutput string `mapstructure:"source_output"` // raw copy of the generated source frames
}

// DemuxConfig holds the transport stream demuxer settings.
type DemuxConfig struct {
	Input       string   `mapstructure:"input"`
	VideoOutput string   `mapstructure:"video_output"` // empty = derived from input name
	AudioOutput string   `mapstructure:"audio_output"` // empty = derived from input name
	Dump        bool     `mapstructure:"dump"`
	BufferSize  ByteSize `mapstructure:"buffer_size"`
}

// PictureConfig holds the still picture encoder settings.
type PictureConfig struct {
	Input   string `mapstructure:"input"`
	Output  string `mapstructure:"output"`
	Width   int    `mapstructure:"width"`
	Height  int    `mapstructure:"height"`
	Engine  string `mapstructure:"engine"` // ffmpeg, native
	Quality int    `mapstructure:"quality"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with AVKIT_ and use underscores for nesting.
// Example: AVKIT_VIDEO_BITRATE=800000.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("avkit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/avkit")
		v.AddConfigPath("$HOME/.avkit")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
	v.SetDefault("logging.redact", true)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.log_level", "error")
	v.SetDefault("ffmpeg.timeout", defaultFFmpegTimeout)

	// Video encoder defaults
	v.SetDefault("video.input", "ds_480x272.yuv")
	v.SetDefault("video.output", "ds.h264")
	v.SetDefault("video.width", defaultVideoWidth)
	v.SetDefault("video.height", defaultVideoHeight)
	v.SetDefault("video.frames", defaultVideoFrames)
	v.SetDefault("video.frame_rate", defaultFrameRate)
	v.SetDefault("video.bitrate", defaultVideoBitrate)
	v.SetDefault("video.gop_size", defaultVideoGOP)
	v.SetDefault("video.max_b_frames", defaultVideoMaxBFrames)
	v.SetDefault("video.qmin", defaultVideoQMin)
	v.SetDefault("video.qmax", defaultVideoQMax)

	// Audio encoder defaults
	v.SetDefault("audio.input", "tdjm.pcm")
	v.SetDefault("audio.output", "tdjm.aac")
	v.SetDefault("audio.codec", "aac")
	v.SetDefault("audio.sample_rate", defaultAudioSampleRate)
	v.SetDefault("audio.channels", defaultAudioChannels)
	v.SetDefault("audio.bitrate", defaultAudioBitrate)
	v.SetDefault("audio.frames", defaultAudioFrames)

	// Synthetic encode/decode defaults
	v.SetDefault("codec.width", defaultCodecWidth)
	v.SetDefault("codec.height", defaultCodecHeight)
	v.SetDefault("codec.frames", defaultCodecFrames)
	v.SetDefault("codec.bitrate", defaultVideoBitrate)
	v.SetDefault("codec.gop_size", defaultCodecGOP)
	v.SetDefault("codec.max_b_frames", 1)
	v.SetDefault("codec.audio_codec", "aac")
	v.SetDefault("codec.audio_bitrate", defaultAudioBitrate)
	v.SetDefault("codec.audio_frames", defaultCodecAudioFrames)
	v.SetDefault("codec.tone_frequency", defaultToneFrequency)
	v.SetDefault("codec.tone_amplitude", defaultToneAmplitude)
	v.SetDefault("codec.inbuf_size", defaultInbufSize)
	v.SetDefault("codec.audio_inbuf_size", defaultAudioInbufSize)
	v.SetDefault("codec.audio_refill_threshold", defaultAudioRefill)

	// Frame extraction defaults
	v.SetDefault("frames.count", defaultExtractCount)
	v.SetDefault("frames.prefix", "frame")

	// Scaling defaults
	v.SetDefault("scale.engine", EngineFFmpeg)
	v.SetDefault("scale.source_width", defaultScaleWidth)
	v.SetDefault("scale.source_height", defaultScaleHeight)
	v.SetDefault("scale.frames", defaultScaleFrames)
	v.SetDefault("scale.source_output", "yuvout.yuv")

	// Demuxer defaults
	v.SetDefault("demux.input", "cuc_ieschool.ts")
	v.SetDefault("demux.video_output", "")
	v.SetDefault("demux.audio_output", "")
	v.SetDefault("demux.dump", true)
	v.SetDefault("demux.buffer_size", defaultDemuxBufferSize)

	// Picture encoder defaults
	v.SetDefault("picture.input", "cuc_view_480x272.yuv")
	v.SetDefault("picture.output", "cuc_view_encode.jpg")
	v.SetDefault("picture.width", defaultVideoWidth)
	v.SetDefault("picture.height", defaultVideoHeight)
	v.SetDefault("picture.engine", EngineFFmpeg)
	v.SetDefault("picture.quality", defaultJPEGQuality)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if err := validateDimensions("video", c.Video.Width, c.Video.Height); err != nil {
		return err
	}
	if err := validateDimensions("codec", c.Codec.Width, c.Codec.Height); err != nil {
		return err
	}
	if err := validateDimensions("scale.source", c.Scale.SourceWidth, c.Scale.SourceHeight); err != nil {
		return err
	}
	if err := validateDimensions("picture", c.Picture.Width, c.Picture.Height); err != nil {
		return err
	}

	if c.Video.FrameRate < 1 {
		return fmt.Errorf("video.frame_rate must be at least 1")
	}
	if c.Video.QMin > c.Video.QMax {
		return fmt.Errorf("video.qmin must not exceed video.qmax")
	}
	if c.Audio.SampleRate < 1 || c.Audio.Channels < 1 {
		return fmt.Errorf("audio.sample_rate and audio.channels must be positive")
	}

	validAudioCodecs := map[string]bool{"aac": true, "mp2": true}
	if !validAudioCodecs[c.Audio.Codec] {
		return fmt.Errorf("audio.codec must be one of: aac, mp2")
	}
	if !validAudioCodecs[c.Codec.AudioCodec] {
		return fmt.Errorf("codec.audio_codec must be one of: aac, mp2")
	}

	validEngines := map[string]bool{EngineFFmpeg: true, EngineNative: true}
	if !validEngines[c.Scale.Engine] {
		return fmt.Errorf("scale.engine must be one of: ffmpeg, native")
	}
	if !validEngines[c.Picture.Engine] {
		return fmt.Errorf("picture.engine must be one of: ffmpeg, native")
	}
	if c.Picture.Quality < 1 || c.Picture.Quality > 100 {
		return fmt.Errorf("picture.quality must be between 1 and 100")
	}

	if c.Codec.InbufSize <= 0 || c.Codec.AudioInbufSize <= 0 {
		return fmt.Errorf("codec input buffer sizes must be positive")
	}
	if c.Codec.AudioRefill >= c.Codec.AudioInbufSize {
		return fmt.Errorf("codec.audio_refill_threshold must be smaller than codec.audio_inbuf_size")
	}
	if c.Demux.BufferSize <= 0 {
		return fmt.Errorf("demux.buffer_size must be positive")
	}

	return nil
}

func validateDimensions(section string, width, height int) error {
	if width < 1 || height < 1 {
		return fmt.Errorf("%s width and height must be positive, got %dx%d", section, width, height)
	}
	return nil
}
