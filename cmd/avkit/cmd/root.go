// Package cmd implements the CLI commands for avkit.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmylchreest/avkit/internal/config"
	"github.com/jmylchreest/avkit/internal/ffmpeg"
	"github.com/jmylchreest/avkit/internal/observability"
	"github.com/jmylchreest/avkit/internal/version"
)

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "avkit",
	Short:   "Encode, decode, scale and demux audio and video through ffmpeg",
	Version: version.Short(),
	Long: `avkit runs small audio/video pipelines: raw YUV and PCM encoders, a
synthetic encode/decode round trip, frame extraction, scaling, MPEG-TS
demuxing and JPEG picture encoding.

Codec work is done by the ffmpeg and ffprobe binaries, driven over pipes.
Set AVKIT_FFMPEG_BINARY and AVKIT_FFPROBE_BINARY to pick specific builds.`,
	SilenceUsage: true,
	// PersistentPreRunE is set in init() to avoid initialization cycle
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// Flags are not bound to viper; an explicitly set flag overrides
	// env and config in initLogging.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./avkit.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("avkit")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/avkit")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.avkit")
		}
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging configures the slog logger.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format), only if explicitly provided
//  2. Environment variables (AVKIT_LOGGING_LEVEL, AVKIT_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, text)
func initLogging() error {
	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ := rootCmd.PersistentFlags().GetString("log-level")
		viper.Set("logging.level", level)
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ := rootCmd.PersistentFlags().GetString("log-format")
		viper.Set("logging.format", format)
	}

	level := strings.ToLower(viper.GetString("logging.level"))
	if level == "warning" {
		level = "warn"
	}
	viper.Set("logging.level", level)
	viper.Set("logging.format", strings.ToLower(viper.GetString("logging.format")))

	logCfg := config.LoggingConfig{
		Level:      level,
		Format:     viper.GetString("logging.format"),
		AddSource:  viper.GetBool("logging.add_source"),
		TimeFormat: viper.GetString("logging.time_format"),
		Redact:     viper.GetBool("logging.redact"),
	}

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	logger = observability.WithApp(logger, "avkit")
	logger = observability.WithRunID(logger)
	observability.SetDefault(logger)

	return nil
}

// loadConfig validates the merged viper state into a Config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// commandContext bounds a pipeline by the configured ffmpeg timeout and
// carries the command logger.
func commandContext(cmd *cobra.Command, cfg *config.Config, operation string) (context.Context, context.CancelFunc, *slog.Logger) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cancel := context.CancelFunc(func() {})
	if cfg.FFmpeg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.FFmpeg.Timeout)
	}
	logger := observability.WithOperation(slog.Default(), operation)
	return observability.ContextWithLogger(ctx, logger), cancel, logger
}

// detectBinaries locates ffmpeg and ffprobe, honouring configured paths.
func detectBinaries(ctx context.Context, cfg *config.Config) (*ffmpeg.BinaryDetector, *ffmpeg.BinaryInfo, error) {
	detector := ffmpeg.NewBinaryDetector().WithPaths(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	info, err := detector.Detect(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("detecting ffmpeg: %w", err)
	}
	return detector, info, nil
}

// bindFlag binds a viper key to a subcommand flag, so the flag only wins
// over the config when set.
func bindFlag(cmd *cobra.Command, key, name string) {
	mustBindPFlag(key, cmd.Flags().Lookup(name))
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}

// argOr returns args[i] when present, else def.
func argOr(args []string, i int, def string) string {
	if len(args) > i && args[i] != "" {
		return args[i]
	}
	return def
}
