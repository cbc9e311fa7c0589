package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"
	"k8s.io/component-base/term"

	"github.com/autopeer-io/beacon/cmd/beacon-hub/app/options"
	"github.com/autopeer-io/beacon/pkg/log"
)

const (
	commandName = "beacon-hub"
	envPrefix   = "BEACON"
)

// reloader receives settings that can change without a restart.
type reloader interface {
	SetPersistModes(modes []string)
}

func NewHubCommand(ctx context.Context) *cobra.Command {
	opts := options.NewHubOptions()
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   commandName,
		Short: "Launch the beacon telemetry hub",
		Long: `The beacon hub ingests pipe-delimited tracker telemetry over HTTP and MQTT,
keeps the latest state of every device, records emergency and normal events
and pushes every update to live websocket viewers.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(v, cmd, configFile, opts); err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}

			log.Init(opts.Log)
			defer func() { _ = log.Sync() }()

			cfg, err := opts.Config()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			hub, err := cfg.NewHubServer(ctx)
			if err != nil {
				log.Error(err, "failed to create hub server")
				return err
			}

			if configFile != "" {
				watchConfig(v, hub)
			}

			return hub.Run(ctx)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&configFile, "config", "c", "", "Path to a configuration file (yaml, json or toml).")

	namedfs := opts.Flags()
	globalflag.AddGlobalFlags(namedfs.FlagSet("global"), cmd.Name())
	for _, f := range namedfs.FlagSets {
		fs.AddFlagSet(f)
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, namedfs, cols)

	return cmd
}

// loadConfig layers flags, the config file and BEACON_* environment variables
// and decodes the result into opts. Explicit flags win over both.
func loadConfig(v *viper.Viper, cmd *cobra.Command, configFile string, opts *options.HubOptions) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if err := v.Unmarshal(opts); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	return nil
}

// watchConfig applies persist modes and log level changes from the config
// file while the hub runs. Other settings need a restart.
func watchConfig(v *viper.Viper, r reloader) {
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed", "file", e.Name, "op", e.Op.String())
		applyReload(v, r)
	})
	v.WatchConfig()
}

func applyReload(v *viper.Viper, r reloader) {
	modes := v.GetStringSlice("ingest.persist-modes")
	r.SetPersistModes(modes)
	log.Info("Reloaded persist modes", "modes", modes)

	if level := v.GetString("log.level"); level != "" {
		if err := log.SetLevel(level); err != nil {
			log.Error(err, "Ignoring invalid log level", "level", level)
		}
	}
}
