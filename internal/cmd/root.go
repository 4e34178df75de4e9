package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/matheuscscp/fleet-issuer/internal/config"
	"github.com/matheuscscp/fleet-issuer/internal/constants"
	"github.com/matheuscscp/fleet-issuer/internal/issuer"
	"github.com/matheuscscp/fleet-issuer/internal/keystore"
	"github.com/matheuscscp/fleet-issuer/internal/logging"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	configFile string
	envFile    string
}

func Execute() error {
	return NewRootCommand().Execute()
}

func NewRootCommand() *cobra.Command {
	var o rootOptions

	root := &cobra.Command{
		Use:          constants.FleetIssuer,
		Short:        "Issue signed tokens for a fleet of stateless instances sharing a key store",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if o.envFile != "" {
				if err := godotenv.Load(o.envFile); err != nil {
					return fmt.Errorf("failed to load env file %s: %w", o.envFile, err)
				}
			} else {
				// A missing .env in the working directory is fine.
				_ = godotenv.Load()
			}
			if err := logging.LoadLevel(); err != nil {
				logrus.WithError(err).Warn("failed to load log level")
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&o.configFile, "config", "",
		fmt.Sprintf("Path to the YAML config file (or set %s)", constants.EnvConfig))
	root.PersistentFlags().StringVar(&o.envFile, "env-file", "", "Path to a .env file to load before reading the config")

	root.AddCommand(serveCmd(&o))
	root.AddCommand(issueCmd(&o))
	root.AddCommand(keysCmd(&o))
	root.AddCommand(versionCmd())

	return root
}

// setup loads the configuration and opens the shared key store. The caller
// must close the returned store.
func setup(ctx context.Context, o *rootOptions, opts ...issuer.Option) (*config.Config, keystore.Store, issuer.Issuer, error) {
	conf, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	l := logging.Component(nil, "keystore")
	st, err := keystore.New(ctx, &conf.Store, l)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open key store: %w", err)
	}
	l.WithField("driver", conf.Store.Driver).Debug("key store opened")

	return conf, st, issuer.New(conf, st, opts...), nil
}

const issuerShutdownTimeout = 10 * time.Second

// shutdown waits for the issuer's background work and then closes the store.
func shutdown(ctx context.Context, iss issuer.Issuer, st keystore.Store) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), issuerShutdownTimeout)
	defer cancel()
	if err := iss.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("failed to wait for background key pruning")
	}
	closeStore(st)
}

func closeStore(st keystore.Store) {
	if err := st.Close(); err != nil {
		logrus.WithError(err).Error("failed to close key store")
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", constants.FleetIssuer, Version)
		},
	}
}
