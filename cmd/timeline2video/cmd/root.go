// Package cmd implements the CLI commands for timeline2video.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ivlev/timeline2video/internal/config"
	"github.com/ivlev/timeline2video/internal/logging"
)

var (
	// cfgFile holds the config file path from CLI flag.
	cfgFile string

	// v is created once the config flag is known; flags registered in
	// bindings are attached to it at that point.
	v        *viper.Viper
	bindings = map[string]*pflag.Flag{}
)

var rootCmd = &cobra.Command{
	Use:   "timeline2video",
	Short: "Render clip timelines with transitions to video",
	Long: `timeline2video schedules images, PDF pages, QR slates and video clips on a
timeline, blends neighbouring clips with transitions and encodes the result
with ffmpeg.

A project is a YAML file listing the clips; "init" generates one from a PDF,
an image directory or a video, "plan" prints the schedule and "render"
produces the video.`,
	SilenceUsage: true,
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

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./timeline2video.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig reads the config file and T2V_ environment variables.
func initConfig() {
	v = config.New(cfgFile)
	for key, flag := range bindings {
		mustBindPFlag(key, flag)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			cobra.CheckErr(fmt.Errorf("reading config file: %w", err))
		}
		return
	}
	fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
}

// initLogging installs the default logger. Priority is CLI flag when set,
// then environment, config file and defaults.
func initLogging() error {
	level := v.GetString("logging.level")
	format := v.GetString("logging.format")

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}
	v.Set("logging.level", strings.ToLower(level))
	v.Set("logging.format", strings.ToLower(format))

	logCfg := config.LoggingConfig{
		Level:      strings.ToLower(level),
		Format:     strings.ToLower(format),
		AddSource:  v.GetBool("logging.add_source"),
		TimeFormat: v.GetString("logging.time_format"),
	}
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
		v.Set("logging.level", "warn")
	}

	slog.SetDefault(logging.NewLogger(logCfg))
	return nil
}

// loadConfig unmarshals the merged settings.
func loadConfig() (*config.Config, error) {
	return config.FromViper(v)
}

// bindFlag maps a command flag onto a config key.
func bindFlag(key string, flags *pflag.FlagSet, name string) {
	flag := flags.Lookup(name)
	if flag == nil {
		panic(fmt.Sprintf("unknown flag %q", name))
	}
	bindings[key] = flag
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
