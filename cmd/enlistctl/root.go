package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cooldownstore "enlist/internal/cooldown/store"
	"enlist/internal/platform/config"
	"enlist/internal/platform/logger"
)

type rootOptions struct {
	configFile string
	backend    string
	file       string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:          "enlistctl",
		Short:        "Inspect application cooldowns",
		Long:         "enlistctl reads the cooldown store configured for the enlist server and reports when an identity last applied and when it may apply again.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "TOML config file (defaults to $ENLIST_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "override COOLDOWN_BACKEND")
	rootCmd.PersistentFlags().StringVar(&opts.file, "file", "", "override COOLDOWN_FILE")

	rootCmd.AddCommand(
		newVersionCmd(),
		newCooldownCmd(opts),
	)
	return rootCmd
}

// loadConfig reads server configuration but only insists on the store
// settings being usable.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	v := viper.New()
	if err := v.BindEnv("config_file", "ENLIST_CONFIG"); err != nil {
		return nil, err
	}
	configFile := o.configFile
	if configFile == "" {
		configFile = v.GetString("config_file")
	}
	cfg, err := config.Decode(v, configFile)
	if err != nil {
		return nil, err
	}
	if o.backend != "" {
		cfg.Cooldown.Backend = o.backend
	}
	if o.file != "" {
		cfg.Cooldown.FilePath = o.file
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *rootOptions) openStore(cmd *cobra.Command) (*cooldownstore.Handle, *config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), "warn")
	h, err := cooldownstore.Open(cmd.Context(), cfg, cooldownstore.Options{ReadOnly: true, Logger: log})
	if err != nil {
		return nil, nil, err
	}
	return h, cfg, nil
}
