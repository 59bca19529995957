package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/tripplanner/internal/poller"
	"github.com/kiranshivaraju/tripplanner/pkg/models"
	"github.com/spf13/cobra"
)

type waitOptions struct {
	interval time.Duration
	maxPolls int
}

func (w *waitOptions) bind(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&w.interval, "interval", poller.DefaultConfig.BaseInterval, "base polling interval")
	cmd.Flags().IntVar(&w.maxPolls, "max-polls", poller.DefaultConfig.MaxPolls, "give up after this many status queries")
}

func newSubmitCmd(opts *globalOptions) *cobra.Command {
	var (
		req  models.TripRequest
		wait bool
		wo   waitOptions
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an itinerary generation job",
		Long: `Submit a trip request. The server answers immediately with a job id;
pass --wait to poll until the itinerary is ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Submit(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			slog.Info("job submitted", "job_id", resp.JobID, "status", resp.Status)
			if !wait {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			return runWait(cmd, opts, wo, resp.JobID)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Destination, "destination", "", "destination city or region")
	f.StringVar(&req.StartDate, "start", "", "first day, YYYY-MM-DD")
	f.StringVar(&req.EndDate, "end", "", "last day, YYYY-MM-DD")
	f.StringVar(&req.Purpose, "purpose", "", "trip purpose, e.g. leisure or business")
	f.StringVar(&req.Budget, "budget", "", "budget level, e.g. budget, moderate, luxury")
	f.IntVar(&req.Travelers, "travelers", 0, "number of travelers")
	f.StringSliceVar(&req.Preferences, "pref", nil, "traveler preference (repeatable)")
	f.BoolVar(&wait, "wait", false, "poll until the job finishes")
	wo.bind(cmd)
	_ = cmd.MarkFlagRequired("destination")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := opts.client().Status(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
}

func newWaitCmd(opts *globalOptions) *cobra.Command {
	var wo waitOptions
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Poll a job until it completes and print the itinerary",
		Long: `Poll a job until it reaches a terminal status. Transient not_found
answers right after submission are tolerated, polling slows down when the
server is slow, and an unreachable server suspends polling until it is back.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWait(cmd, opts, wo, args[0])
		},
	}
	wo.bind(cmd)
	return cmd
}

func runWait(cmd *cobra.Command, opts *globalOptions, wo waitOptions, jobID string) error {
	var lastPhase poller.Phase
	p := poller.New(opts.client(), poller.Config{
		BaseInterval: wo.interval,
		MaxPolls:     wo.maxPolls,
		Mobile:       opts.mobile,
	}, poller.WithObserver(func(s poller.State) {
		if s.Phase != lastPhase {
			slog.Info("job state", "job_id", jobID, "phase", s.Phase, "status", s.Status, "polls", s.Polls)
			lastPhase = s.Phase
		}
		slog.Debug("poll", "job_id", jobID, "status", s.Status, "interval", s.Interval, "not_found", s.NotFound)
	}))

	res, err := p.Wait(cmd.Context(), jobID)
	if err != nil {
		var failed *poller.JobFailedError
		switch {
		case errors.As(err, &failed):
			return errors.New(failed.Message)
		case errors.Is(err, poller.ErrTakingLonger):
			return fmt.Errorf("%w; check again later with: tripctl wait %s", err, jobID)
		}
		return err
	}
	return printJSON(cmd.OutOrStdout(), res.Itinerary)
}
