/*
Command groupload formats group load records and publishes them to Kafka.

Build: go build -o groupload ./cmd/groupload
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agbruneau/groupload/internal/config"
	"github.com/agbruneau/groupload/internal/logging"
	"github.com/agbruneau/groupload/internal/producer"
	"github.com/agbruneau/groupload/internal/tracker"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(newApp()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// verifier is the part of *tracker.Tracker used by the verify command.
type verifier interface {
	Run(ctx context.Context) (tracker.Report, error)
	Close() error
}

// app holds the global flags and the state shared by the subcommands.
type app struct {
	environment string
	configPath  string
	envFile     string
	driver      string
	verbose     bool

	cfg    *config.AppConfig
	logger zerolog.Logger

	dial        func(config.Settings, zerolog.Logger) (producer.Connection, error)
	newVerifier func(config.Settings, tracker.Config, *tracker.AuditLog, zerolog.Logger) (verifier, error)
}

func newApp() *app {
	return &app{
		logger: logging.Nop(),
		dial:   producer.Dial,
		newVerifier: func(s config.Settings, cfg tracker.Config, audit *tracker.AuditLog, logger zerolog.Logger) (verifier, error) {
			return tracker.New(s, cfg, audit, logger)
		},
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "groupload",
		Short:         "Group Load Kafka Tool - stream group data to Kafka topics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.environment, "environment", "e", config.EnvDev, "target environment (dev or qa)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")
	flags.StringVar(&a.configPath, "config", "", "optional YAML configuration file")
	flags.StringVar(&a.envFile, "env-file", config.DefaultEnvFile, "optional .env file")
	flags.StringVar(&a.driver, "driver", "", "broker driver (confluent, kafka-go or sarama)")

	root.AddCommand(
		newSendSampleCmd(a),
		newSendFileCmd(a),
		newGenerateDataCmd(a),
		newConfigInfoCmd(a),
		newVerifyCmd(a),
	)
	return root
}

// load builds the layered configuration and the logger. Flags given on the
// command line override every other layer.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, a.envFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("environment") {
		cfg.App.Env = a.environment
	}
	if flags.Changed("driver") {
		cfg.Kafka.Driver = a.driver
	}
	a.cfg = cfg
	a.logger = logging.New(logging.Config{
		Level:   cfg.App.LogLevel,
		Format:  cfg.App.LogFormat,
		Verbose: a.verbose,
		Output:  cmd.ErrOrStderr(),
	})
	return nil
}

// settings resolves the configuration for commands that reach the broker.
func (a *app) settings() (config.Settings, error) {
	return a.cfg.Resolve()
}

func (a *app) banner(cmd *cobra.Command, s config.Settings) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Group Load Kafka Tool")
	fmt.Fprintf(out, "Environment: %s\n", s.Environment)
	fmt.Fprintf(out, "Target Topic: %s\n", s.Topic())
}
