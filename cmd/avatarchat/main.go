// Command avatarchat runs the talking-avatar conversation engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/harunnryd/avatarchat/pkg/avatar"
	"github.com/harunnryd/avatarchat/pkg/logging"
	"github.com/harunnryd/avatarchat/pkg/runner"
)

type rootFlags struct {
	configPath string
	envFile    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "avatarchat",
		Short:         "Keyword-driven talking avatar",
		Version:       runner.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to the YAML config (defaults apply when empty)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the config is read")

	root.AddCommand(newServeCmd(flags), newConsoleCmd(flags), newVersionCmd())
	return root
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with the configured transport until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

			providers := avatar.NewProviderRegistry()
			registerProviders(providers)
			engine, err := avatar.NewEngine(avatar.EngineOptions{
				Config:    cfg,
				Providers: providers,
				Logger:    logger,
				BannerOut: cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "avatarchat", runner.Version)
		},
	}
}

// loadConfig reads the dotenv file, then the YAML config. A missing
// dotenv file is not an error.
func loadConfig(flags *rootFlags) (avatar.Config, error) {
	if path := strings.TrimSpace(flags.envFile); path != "" {
		if err := godotenv.Load(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return avatar.Config{}, fmt.Errorf("load env file: %w", err)
			}
			slog.Debug("env_file_not_found", "path", path)
		}
	}
	if strings.TrimSpace(flags.configPath) == "" {
		return avatar.DefaultConfig()
	}
	return avatar.LoadConfig(flags.configPath)
}
