// Command rcond runs the RCON server, or provisions a password hash for
// its configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsrcon/rcond/internal/auth"
	"github.com/opsrcon/rcond/internal/config"
	"github.com/opsrcon/rcond/internal/executor"
	"github.com/opsrcon/rcond/internal/logging"
	"github.com/opsrcon/rcond/internal/transport"
	"github.com/opsrcon/rcond/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "rcond",
	Short: "rcond is a Source-engine RCON server",
	Long:  "rcond accepts authenticated RCON sessions over TCP and dispatches their commands to an external executor.",
}

func main() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newHashPasswordCmd())
	rootCmd.AddCommand(newConfigInitCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var configPath, logLevel, logFormat, logOutput string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the RCON server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Config{Level: logLevel, Format: logFormat, Output: logOutput})
			if err != nil {
				return err
			}

			exec := executor.WithTimeout(executor.Echo, commandTimeout(cfg))

			manager, err := transport.New(cfg, logger, exec)
			if err != nil {
				return err
			}

			logger.Info("rcond starting", "addr", manager.Addr().String())

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := manager.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("rcond stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "text or json")
	cmd.Flags().StringVar(&logOutput, "log-output", "stderr", "stdout, stderr, or a file path")

	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Generate a salted credential record for the server's config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := auth.Hash(args[0])
			if err != nil {
				return err
			}
			encoded := record.Encode()
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
			fmt.Fprintln(cmd.OutOrStdout(), "add this to your config under the \"credential\" key")
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-init <path>",
		Short: "Write the default configuration to a new YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(config.Default(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default configuration to %s\n", args[0])
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rcond version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "rcond %s (%s)\n", version.Version, version.Commit)
			return nil
		},
	}
}

// commandTimeout is the per-command budget handed to executor.WithTimeout.
// It is deliberately shorter than read_timeout_ms: a command that runs
// past this point returns a timeout response while the connection itself
// stays open for the next command.
func commandTimeout(cfg config.Config) time.Duration {
	return time.Duration(cfg.ReadTimeoutMs) * time.Millisecond / 2
}
