package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kelsos/bosonnlp-go/internal/logger"
	"github.com/kelsos/bosonnlp-go/internal/models"
	"github.com/kelsos/bosonnlp-go/internal/services"
	"github.com/kelsos/bosonnlp-go/internal/task"
	"github.com/kelsos/bosonnlp-go/internal/tui"
	"github.com/kelsos/bosonnlp-go/internal/utils"
)

type analyzeOptions struct {
	alpha        float64
	beta         float64
	timeout      time.Duration
	pollInterval time.Duration
	concurrency  int
	id           string
	keep         bool
	useTUI       bool
}

// fileResult is one entry of the output when several files are analysed.
type fileResult[R any] struct {
	File   string `json:"file"`
	Result R      `json:"result"`
}

func newAnalyzeCmd(o *rootOptions, kind models.TaskKind) *cobra.Command {
	a := &analyzeOptions{}

	short := "Group near-duplicate documents"
	if kind == models.KindComments {
		short = "Extract shared opinions from short comments"
	}

	cmd := &cobra.Command{
		Use:   string(kind) + " FILE...",
		Short: short,
		Long: fmt.Sprintf(`Runs a %s analysis on each FILE. Every non-blank line is one document;
use "-" to read standard input. Files are analysed concurrently, one task each.`, kind),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("timeout") {
				o.cfg.WaitTimeout = a.timeout
			}
			if flags.Changed("poll-interval") {
				o.cfg.PollInterval = a.pollInterval
			}
			if flags.Changed("concurrency") {
				o.cfg.Concurrency = a.concurrency
			}

			svc, err := o.service()
			if err != nil {
				return err
			}

			batches := make([][]models.Document, len(args))
			for i, path := range args {
				lines, err := utils.ReadLinesFile(path)
				if err != nil {
					return err
				}
				batches[i] = services.IndexedDocuments(lines...)
			}

			ro := services.RunOptions{ID: a.id, Keep: a.keep}
			if flags.Changed("alpha") {
				ro.Params.Alpha = &a.alpha
			}
			if flags.Changed("beta") {
				ro.Params.Beta = &a.beta
			}

			if kind == models.KindComments {
				return analyze(cmd, args, batches, ro, a.useTUI, svc.CommentsBatch)
			}
			return analyze(cmd, args, batches, ro, a.useTUI, svc.ClusterBatch)
		},
	}

	flags := cmd.Flags()
	flags.Float64VarP(&a.alpha, "alpha", "", 0.8, "Upper bound of cluster size, in (0, 1]")
	flags.Float64VarP(&a.beta, "beta", "", 0.45, "Upper bound of average cluster size, in (0, 1)")
	flags.DurationVarP(&a.timeout, "timeout", "", 30*time.Minute, "How long to wait for each task")
	flags.DurationVarP(&a.pollInterval, "poll-interval", "", time.Second, "Initial delay between status polls")
	flags.IntVarP(&a.concurrency, "concurrency", "j", 4, "Maximum number of tasks in flight")
	flags.StringVarP(&a.id, "id", "", "", "Job id to submit under (suffixed per file when several are given)")
	flags.BoolVarP(&a.keep, "keep", "", false, "Leave the job on the server instead of clearing it")
	flags.BoolVarP(&a.useTUI, "tui", "", false, "Show an interactive task monitor")

	return cmd
}

func analyze[R any](cmd *cobra.Command, files []string, batches [][]models.Document, ro services.RunOptions, useTUI bool, run func(context.Context, [][]models.Document, func(int) services.RunOptions) ([]R, error)) error {
	optsFor := func(i int) services.RunOptions {
		batchOpts := services.SameOptions(ro)(i)
		if len(files) == 1 {
			batchOpts.ID = ro.ID
		}
		label := files[i]
		batchOpts.OnSubmit = func(job task.JobRef) {
			logger.Info("Submitted %s (%d documents) as %s", label, len(batches[i]), job)
		}
		return batchOpts
	}

	var results []R
	var err error
	if useTUI {
		results, err = analyzeWithMonitor(cmd.Context(), files, batches, optsFor, run)
	} else {
		results, err = run(cmd.Context(), batches, optsFor)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(files) == 1 {
		return printJSON(out, results[0])
	}
	entries := make([]fileResult[R], len(files))
	for i, file := range files {
		entries[i] = fileResult[R]{File: file, Result: results[i]}
	}
	return printJSON(out, entries)
}

func analyzeWithMonitor[R any](
	ctx context.Context,
	files []string,
	batches [][]models.Document,
	optsFor func(int) services.RunOptions,
	run func(context.Context, [][]models.Document, func(int) services.RunOptions) ([]R, error),
) ([]R, error) {
	if err := logger.InitFileOnly(); err != nil {
		return nil, err
	}

	monitor := tui.NewTaskMonitor()
	var results []R
	err := monitor.Run(ctx, func(ctx context.Context) error {
		monitor.SetTasks(files)

		var err error
		results, err = run(ctx, batches, func(i int) services.RunOptions {
			batchOpts := optsFor(i)
			label := files[i]
			onSubmit := batchOpts.OnSubmit
			batchOpts.OnSubmit = func(job task.JobRef) {
				onSubmit(job)
				monitor.Submitted(label, job)
			}
			batchOpts.OnPoll = monitor.Observer(label)
			batchOpts.OnDone = func(err error) { monitor.Complete(label, err) }
			return batchOpts
		})
		return err
	})
	return results, err
}
