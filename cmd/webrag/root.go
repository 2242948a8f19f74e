package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"webrag/internal/config"
)

type rootOptions struct {
	cfgPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "webrag",
		Short:         "Scrape web pages into a vector store and answer questions over them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.cfgPath, "config", "c", "", "path to YAML config file (default ./config.yaml, then ~/.config/webrag/config.yaml)")

	root.AddCommand(
		serveCmd(opts),
		ingestCmd(opts),
		scrapeCmd(opts),
		searchCmd(opts),
		askCmd(opts),
		chatCmd(opts),
		infoCmd(opts),
		migrateCmd(opts),
	)
	return root
}

func (o *rootOptions) loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if o.cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(o.cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// withApp loads the config, assembles the components, runs fn and releases
// them.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
