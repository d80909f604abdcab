package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gophersatwork/cdo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version and Commit should be set at build time using ldflags, e.g.:
//
//	-ldflags "-X 'main.Version=1.2.3' -X 'main.Commit=abc1234'"
var (
	Version = "dev"
	Commit  = ""
)

// defaultConfigFile is looked up in the working directory when --config is not given.
const defaultConfigFile = ".cdo.yaml"

// newRootCmd creates the cdo command. cwd is the directory every relative
// path and the default config file are resolved against.
func newRootCmd(cwd string, stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()
	var (
		cfgFile     string
		showVersion bool
	)

	cmd := &cobra.Command{
		Use:   "cdo [command] [source_file] [program args...]",
		Short: "Build and run a single C++ file, recompiling it only when it changed",
		Long: "Commands: build, run (default), clean, status, watch, config, help.\n" +
			"Run 'cdo help' for details.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				_, err := fmt.Fprintf(stdout, "cdo %s\n", versionSummary())
				return err
			}

			cfg, err := loadConfig(v, cfgFile, cwd)
			if err != nil {
				return err
			}

			router := cdo.NewRouter(cfg, newLogger(cfg.LogLevel, stderr))
			router.Stdout = stdout
			router.Stderr = stderr
			return router.Dispatch(cmd.Context(), cdo.Invocation{Args: args, Cwd: cwd})
		},
	}

	flags := cmd.Flags()
	// Everything after the command or source file belongs to the program.
	flags.SetInterspersed(false)
	flags.StringVar(&cfgFile, "config", "", "config file (default is $(PWD)/"+defaultConfigFile+")")
	flags.BoolVar(&showVersion, "version", false, "print version info and exit")
	flags.BoolP("verbose", "v", false, "print informational logging")
	flags.BoolP("debug", "d", false, "enable debug logging")
	flags.Bool("strict-exit", false, "exit with a nonzero status when a build or the program fails")
	flags.String("compiler", cdo.DefaultCompiler, "compiler program invoked as '<compiler> <source> -o <output>'")

	_ = v.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = v.BindPFlag("debug", flags.Lookup("debug"))
	_ = v.BindPFlag("strict_exit", flags.Lookup("strict-exit"))
	_ = v.BindPFlag("compiler", flags.Lookup("compiler"))

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd
}

// execute runs cdo with the given arguments.
func execute(ctx context.Context, args []string, cwd string, stdout, stderr io.Writer) error {
	cmd := newRootCmd(cwd, stdout, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// loadConfig reads the defaults, the optional config file, CDO_* environment
// variables and the bound flags, in increasing order of precedence.
func loadConfig(v *viper.Viper, cfgFile, cwd string) (cdo.Config, error) {
	def := cdo.DefaultConfig()
	v.SetDefault("compiler", def.Compiler)
	v.SetDefault("extension", def.Extension)
	v.SetDefault("entry_marker", def.EntryMarker)
	v.SetDefault("cache_dir", def.CacheDir)
	v.SetDefault("cache_key", def.CacheKey)
	v.SetDefault("strict_exit", def.StrictExit)
	v.SetDefault("compile_timeout", def.CompileTimeout)
	v.SetDefault("run_timeout", def.RunTimeout)
	v.SetDefault("watch_debounce", def.WatchDebounce)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix("cdo")
	v.AutomaticEnv()

	if cfgFile != "" {
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(cwd, cfgFile)
		}
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return cdo.Config{}, fmt.Errorf("reading cdo configuration: %w", err)
		}
	} else {
		candidate := filepath.Join(cwd, defaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			v.SetConfigFile(candidate)
			if err := v.ReadInConfig(); err != nil {
				return cdo.Config{}, fmt.Errorf("reading cdo configuration: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return cdo.Config{}, fmt.Errorf("reading cdo configuration: %w", err)
		}
	}

	var cfg cdo.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cdo.Config{}, fmt.Errorf("decoding cdo configuration: %w", err)
	}

	switch {
	case v.GetBool("debug"):
		cfg.LogLevel = logrus.DebugLevel.String()
	case v.GetBool("verbose"):
		cfg.LogLevel = logrus.InfoLevel.String()
	}

	if err := cfg.Validate(); err != nil {
		return cdo.Config{}, err
	}
	return cfg, nil
}

// newLogger returns a logrus logger writing plain text to out.
func newLogger(level string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.WarnLevel
	}
	log.SetLevel(lvl)
	return log
}

// versionSummary returns a concise single-line version string.
func versionSummary() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	if Commit != "" {
		c := Commit
		if len(c) > 7 {
			c = c[:7]
		}
		v += " (commit=" + c + ")"
	}
	return v
}
