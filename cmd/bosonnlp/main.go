package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kelsos/bosonnlp-go/internal/config"
	"github.com/kelsos/bosonnlp-go/internal/logger"
	"github.com/kelsos/bosonnlp-go/internal/models"
	"github.com/kelsos/bosonnlp-go/internal/services"
	"github.com/kelsos/bosonnlp-go/internal/utils"
)

type rootOptions struct {
	configPath string
	url        string
	token      string
	logLevel   string
	debug      bool

	cfg *config.Config
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.BaseURL = o.url
	}
	if flags.Changed("token") {
		cfg.Token = o.token
	}
	cfg.LogLevel = effectiveLogLevel(cfg.LogLevel, o.logLevel, flags.Changed("log-level"), o.debug, os.LookupEnv)

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return err
	}

	o.cfg = cfg
	return nil
}

// effectiveLogLevel picks, in order: --debug, --log-level, a DEBUG variable,
// then the configured level.
func effectiveLogLevel(configured, flagLevel string, flagSet, debugFlag bool, lookupEnv func(string) (string, bool)) string {
	switch {
	case debugFlag:
		return "debug"
	case flagSet:
		return flagLevel
	}
	if _, ok := lookupEnv("DEBUG"); ok {
		return "debug"
	}
	return configured
}

// service builds an analysis service once the command has applied its own
// overrides to o.cfg.
func (o *rootOptions) service() (*services.AnalysisService, error) {
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.cfg.BaseURL == config.DefaultBaseURL {
		if err := o.cfg.RequireToken(); err != nil {
			return nil, err
		}
	}
	logger.Debug("Using BosonNLP API at %s", o.cfg.BaseURL)
	return services.NewAnalysisService(o.cfg), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "bosonnlp",
		Short: "A CLI client for the BosonNLP asynchronous analysis API",
		Long: `bosonnlp submits documents to the BosonNLP cluster and comments
endpoints, waits for the analysis to finish and prints the result as JSON.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "", "Path to a config file (yaml, json or toml)")
	flags.StringVarP(&o.url, "url", "u", config.DefaultBaseURL, "Base URL of the BosonNLP API")
	flags.StringVarP(&o.token, "token", "t", "", "API token (default: $BOSONNLP_TOKEN)")
	flags.StringVarP(&o.logLevel, "log-level", "", "info", "Log level: debug, info, warn or error")
	flags.BoolVarP(&o.debug, "debug", "", false, "Shorthand for --log-level debug")

	rootCmd.AddCommand(newAnalyzeCmd(o, models.KindCluster))
	rootCmd.AddCommand(newAnalyzeCmd(o, models.KindComments))
	rootCmd.AddCommand(newStatusCmd(o))
	rootCmd.AddCommand(newResultCmd(o))
	rootCmd.AddCommand(newClearCmd(o))
	rootCmd.AddCommand(newPingCmd(o))
	rootCmd.AddCommand(newMockServerCmd())

	return rootCmd
}

func main() {
	logger.Init()
	for _, path := range utils.LoadEnvironment() {
		logger.Debug("Loaded environment from %s", path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		logger.Close()
		os.Exit(exitCode(err))
	}
	logger.Close()
}
