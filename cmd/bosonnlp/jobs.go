package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kelsos/bosonnlp-go/internal/logger"
	"github.com/kelsos/bosonnlp-go/internal/models"
	"github.com/kelsos/bosonnlp-go/internal/services"
	"github.com/kelsos/bosonnlp-go/internal/task"
)

// jobStatus is printed by the status command.
type jobStatus struct {
	Kind   string          `json:"kind"`
	ID     string          `json:"id"`
	State  string          `json:"state"`
	Status json.RawMessage `json:"status,omitempty"`
}

type jobOptions struct {
	kind string
	wait bool
}

func (j *jobOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&j.kind, "kind", "k", string(models.KindCluster), "Task kind: cluster or comments")
	cmd.Flags().BoolVarP(&j.wait, "wait", "w", false, "Poll until the job reaches a terminal state")
}

func (j *jobOptions) parseKind() (models.TaskKind, error) {
	return models.ParseTaskKind(j.kind)
}

func newStatusCmd(o *rootOptions) *cobra.Command {
	j := &jobOptions{}
	cmd := &cobra.Command{
		Use:   "status ID",
		Short: "Show the state of a submitted job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := j.parseKind()
			if err != nil {
				return err
			}
			svc, err := o.service()
			if err != nil {
				return err
			}

			var status jobStatus
			switch kind {
			case models.KindComments:
				status, err = jobState(cmd.Context(), svc, svc.AttachCommentsTask(args[0]), j.wait)
			default:
				status, err = jobState(cmd.Context(), svc, svc.AttachClusterTask(args[0]), j.wait)
			}
			if err != nil && !errors.Is(err, task.ErrTaskNotFound) {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
	j.addFlags(cmd)
	return cmd
}

func newResultCmd(o *rootOptions) *cobra.Command {
	j := &jobOptions{}
	var clearAfter bool
	cmd := &cobra.Command{
		Use:   "result ID",
		Short: "Print the result of a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := j.parseKind()
			if err != nil {
				return err
			}
			svc, err := o.service()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			switch kind {
			case models.KindComments:
				return printResult(ctx, cmd, svc, svc.AttachCommentsTask(args[0]), j.wait, clearAfter)
			default:
				return printResult(ctx, cmd, svc, svc.AttachClusterTask(args[0]), j.wait, clearAfter)
			}
		},
	}
	j.addFlags(cmd)
	cmd.Flags().BoolVarP(&clearAfter, "clear", "", false, "Clear the job after printing its result")
	return cmd
}

func newClearCmd(o *rootOptions) *cobra.Command {
	j := &jobOptions{}
	cmd := &cobra.Command{
		Use:   "clear ID",
		Short: "Delete a job and its data from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := j.parseKind()
			if err != nil {
				return err
			}
			svc, err := o.service()
			if err != nil {
				return err
			}

			switch kind {
			case models.KindComments:
				err = svc.AttachCommentsTask(args[0]).Clear(cmd.Context())
			default:
				err = svc.AttachClusterTask(args[0]).Clear(cmd.Context())
			}
			if err != nil {
				return err
			}
			logger.Info("Cleared %s job %s", kind, args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&j.kind, "kind", "k", string(models.KindCluster), "Task kind: cluster or comments")
	return cmd
}

func refresh[R any](ctx context.Context, svc *services.AnalysisService, t *task.Task[models.Document, R], wait bool) (task.State, error) {
	if wait {
		return t.WaitUntilComplete(ctx, svc.WaitOptions(func(ev task.PollEvent) {
			logger.Debug("Poll %d of %s: %s", ev.Attempt, ev.Job, ev.State)
		}))
	}
	return t.Status(ctx)
}

func jobState[R any](ctx context.Context, svc *services.AnalysisService, t *task.Task[models.Document, R], wait bool) (jobStatus, error) {
	state, err := refresh(ctx, svc, t, wait)
	return jobStatus{
		Kind:   t.Kind(),
		ID:     t.ID(),
		State:  state.String(),
		Status: t.LastStatus(),
	}, err
}

func printResult[R any](ctx context.Context, cmd *cobra.Command, svc *services.AnalysisService, t *task.Task[models.Document, R], wait, clearAfter bool) error {
	if _, err := refresh(ctx, svc, t, wait); err != nil {
		return err
	}

	result, err := t.Result(ctx)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), result); err != nil {
		return err
	}

	if clearAfter {
		return t.Clear(ctx)
	}
	return nil
}

// exitCode distinguishes the ways a run can end so scripts can react.
func exitCode(err error) int {
	switch {
	case errors.Is(err, task.ErrCancelled):
		return 130
	case errors.Is(err, task.ErrTimeout):
		return 3
	case errors.Is(err, task.ErrTaskFailed), errors.Is(err, task.ErrTaskNotFound):
		return 4
	case errors.Is(err, task.ErrTransport):
		return 5
	default:
		return 1
	}
}
