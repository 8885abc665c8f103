package main

import (
	"github.com/spf13/cobra"

	"github.com/kelsos/bosonnlp-go/internal/logger"
	"github.com/kelsos/bosonnlp-go/internal/mockserver"
)

func newPingCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the API is reachable and the token is accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := o.service()
			if err != nil {
				return err
			}
			if err := svc.Ping(cmd.Context()); err != nil {
				return err
			}
			logger.Info("BosonNLP API at %s is reachable", svc.GetConfig().BaseURL)
			return nil
		},
	}
}

func newMockServerCmd() *cobra.Command {
	cfg := mockserver.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run an in-memory BosonNLP API for local testing",
		Long: `Serves the cluster and comments endpoints from memory. Jobs report
"done" after --polls status polls; documents with the same normalized text
are grouped together.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mockserver.New(cfg).ListenAndServe(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.ListenAddr, "addr", "a", cfg.ListenAddr, "Address to listen on")
	flags.IntVarP(&cfg.PollsUntilDone, "polls", "", cfg.PollsUntilDone, "Status polls before a job is done")
	flags.StringVarP(&cfg.Token, "require-token", "", "", "Reject requests without this X-Token")
	flags.IntVarP(&cfg.MaxPushSize, "max-push", "", cfg.MaxPushSize, "Largest number of documents per push")

	return cmd
}
