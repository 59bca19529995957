package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/kiranshivaraju/tripplanner/internal/client"
	"github.com/spf13/cobra"
)

const mobileUserAgent = "tripctl (Mobile; iPhone)"

type globalOptions struct {
	server  string
	timeout time.Duration
	verbose bool
	mobile  bool
	debug   bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "tripctl",
		Short: "Submit and follow itinerary generation jobs",
		Long: `tripctl talks to a trip planner server.

Examples:
  tripctl submit --destination Paris --start 2026-06-01 --end 2026-06-03 --wait
  tripctl status job_1760000000000_k3j9x2a1b
  tripctl wait job_1760000000000_k3j9x2a1b
  tripctl health`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	defaultServer := os.Getenv("TRIPPLANNER_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.server, "server", defaultServer, "trip planner base URL (env TRIPPLANNER_URL)")
	pf.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request HTTP timeout")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")
	pf.BoolVar(&opts.mobile, "mobile", false, "identify as a mobile client")
	pf.BoolVar(&opts.debug, "debug", false, "request debug_ job ids")

	root.AddCommand(
		newSubmitCmd(opts),
		newStatusCmd(opts),
		newWaitCmd(opts),
		newHealthCmd(opts),
	)
	return root
}

func (o *globalOptions) client() *client.HTTPClient {
	var clientOpts []client.Option
	if o.mobile {
		clientOpts = append(clientOpts, client.WithUserAgent(mobileUserAgent))
	}
	if o.debug {
		clientOpts = append(clientOpts, client.WithDebugJobs())
	}
	return client.NewHTTPClient(o.server, o.timeout, clientOpts...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newHealthCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Health(cmd.Context()); err != nil {
				return err
			}
			_, err := io.WriteString(cmd.OutOrStdout(), "ok\n")
			return err
		},
	}
}
