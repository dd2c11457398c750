package main

import (
	"errors"
	"os"
	"os/exec"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mrproliu/flatprof/internal/logutil"
)

func main() {
	var configPath string
	root := &cobra.Command{
		Use:           "flatprof",
		Short:         "Time every call made by marked functions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file, defaults to $"+configEnv)
	root.AddCommand(newGenCommand(&configPath))
	root.AddCommand(newToolexecCommand())
	root.AddCommand(newConfigCommand(&configPath))

	if err := root.Execute(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		log.Fatal().Err(err).Msg("flatprof")
	}
}

// setup loads the configuration and configures the global logger from it.
func setup(configPath string) (Config, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return Config{}, err
	}
	if err := logutil.ConfigureLogger(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
