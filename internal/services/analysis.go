package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kelsos/bosonnlp-go/internal/client"
	"github.com/kelsos/bosonnlp-go/internal/config"
	"github.com/kelsos/bosonnlp-go/internal/logger"
	"github.com/kelsos/bosonnlp-go/internal/models"
	"github.com/kelsos/bosonnlp-go/internal/task"
	"github.com/kelsos/bosonnlp-go/internal/transport"
)

const clearTimeout = 10 * time.Second

// RunOptions tune a single one-shot analysis.
type RunOptions struct {
	Params task.Params
	// ID submits under a caller-chosen job id.
	ID string
	// Keep skips the final clear so the job can be inspected later.
	Keep bool
	// OnPoll is forwarded to WaitUntilComplete.
	OnPoll func(task.PollEvent)
	// OnSubmit is called once the job has been accepted.
	OnSubmit func(task.JobRef)
	// OnDone is called once with the outcome of the run, including an
	// empty one.
	OnDone func(error)
}

// AnalysisService creates and drives cluster and comments tasks
type AnalysisService struct {
	config    *config.Config
	client    *client.APIClient
	transport task.Transport
	taskOpts  []task.Option
}

// NewAnalysisService creates a service talking to cfg.BaseURL
func NewAnalysisService(cfg *config.Config) *AnalysisService {
	return NewAnalysisServiceWithClient(cfg, client.NewAPIClient(cfg))
}

// NewAnalysisServiceWithClient creates a service on top of an existing API client
func NewAnalysisServiceWithClient(cfg *config.Config, apiClient *client.APIClient) *AnalysisService {
	s := NewAnalysisServiceWithTransport(cfg, transport.New(apiClient, cfg.PushChunkSize))
	s.client = apiClient
	return s
}

// NewAnalysisServiceWithTransport creates a service over any transport. Extra
// task options are applied to every task the service creates.
func NewAnalysisServiceWithTransport(cfg *config.Config, tr task.Transport, opts ...task.Option) *AnalysisService {
	return &AnalysisService{
		config:    cfg,
		transport: tr,
		taskOpts:  opts,
	}
}

// GetConfig returns the current configuration
func (s *AnalysisService) GetConfig() *config.Config {
	return s.config
}

func (s *AnalysisService) options(ro RunOptions) []task.Option {
	opts := []task.Option{
		task.WithNotFoundGrace(s.config.NotFoundGrace),
		task.WithParams(ro.Params),
	}
	if ro.ID != "" {
		opts = append(opts, task.WithID(ro.ID))
	}
	return append(opts, s.taskOpts...)
}

// WaitOptions builds wait settings from the configuration
func (s *AnalysisService) WaitOptions(onPoll func(task.PollEvent)) task.WaitOptions {
	return task.WaitOptions{
		PollInterval:         s.config.PollInterval,
		MaxPollInterval:      s.config.MaxPollInterval,
		Timeout:              s.config.WaitTimeout,
		MaxTransportFailures: s.config.MaxTransportFailures,
		OnPoll:               onPoll,
	}
}

func (s *AnalysisService) CreateClusterTask(ro RunOptions) *ClusterTask {
	return task.New(s.transport, ClusterKind, s.options(ro)...)
}

func (s *AnalysisService) CreateCommentsTask(ro RunOptions) *CommentsTask {
	return task.New(s.transport, CommentsKind, s.options(ro)...)
}

// AttachClusterTask returns a handle on an existing cluster job
func (s *AnalysisService) AttachClusterTask(id string) *ClusterTask {
	return task.Attach(s.transport, ClusterKind, id, s.taskOpts...)
}

// AttachCommentsTask returns a handle on an existing comments job
func (s *AnalysisService) AttachCommentsTask(id string) *CommentsTask {
	return task.Attach(s.transport, CommentsKind, id, s.taskOpts...)
}

// Cluster groups near-duplicate documents in one round trip: submit, wait,
// fetch and clear.
func (s *AnalysisService) Cluster(ctx context.Context, docs []models.Document, ro RunOptions) ([]models.Cluster, error) {
	if len(docs) == 0 {
		if ro.OnDone != nil {
			ro.OnDone(nil)
		}
		return []models.Cluster{}, nil
	}
	return run(ctx, s, s.CreateClusterTask(ro), docs, ro)
}

// Comments extracts shared opinions from short comments in one round trip.
func (s *AnalysisService) Comments(ctx context.Context, docs []models.Document, ro RunOptions) ([]models.CommentGroup, error) {
	if len(docs) == 0 {
		if ro.OnDone != nil {
			ro.OnDone(nil)
		}
		return []models.CommentGroup{}, nil
	}
	return run(ctx, s, s.CreateCommentsTask(ro), docs, ro)
}

// ClusterBatch runs one cluster task per batch, at most cfg.Concurrency at a
// time. optsFor supplies the options of batch i; see SameOptions. Results
// are in batch order and the first failure cancels the rest.
func (s *AnalysisService) ClusterBatch(ctx context.Context, batches [][]models.Document, optsFor func(int) RunOptions) ([][]models.Cluster, error) {
	return runBatch(ctx, s, batches, optsFor, s.Cluster)
}

// CommentsBatch is ClusterBatch for comments tasks.
func (s *AnalysisService) CommentsBatch(ctx context.Context, batches [][]models.Document, optsFor func(int) RunOptions) ([][]models.CommentGroup, error) {
	return runBatch(ctx, s, batches, optsFor, s.Comments)
}

// SameOptions applies ro to every batch, suffixing a caller-chosen ID with
// the batch index so job ids stay unique.
func SameOptions(ro RunOptions) func(int) RunOptions {
	return func(i int) RunOptions {
		batchOpts := ro
		if ro.ID != "" {
			batchOpts.ID = fmt.Sprintf("%s-%d", ro.ID, i)
		}
		return batchOpts
	}
}

// Ping checks connectivity and credentials
func (s *AnalysisService) Ping(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("ping requires an HTTP client")
	}
	return s.client.Ping(ctx)
}

func run[R any](ctx context.Context, s *AnalysisService, t *task.Task[models.Document, R], docs []models.Document, ro RunOptions) (_ R, err error) {
	var zero R
	kind := t.Kind()
	if ro.OnDone != nil {
		defer func() { ro.OnDone(err) }()
	}

	if err := t.Push(docs...); err != nil {
		return zero, err
	}

	logger.Info("Submitting %d documents for %s analysis", len(docs), kind)
	if err := t.Submit(ctx); err != nil {
		return zero, fmt.Errorf("failed to submit %s task: %w", kind, err)
	}
	if ro.OnSubmit != nil {
		ro.OnSubmit(t.Ref())
	}

	if ro.Keep {
		logger.Info("Keeping %s task %s on the server", kind, t.ID())
	} else {
		defer clearTask(ctx, t)
	}

	state, err := t.WaitUntilComplete(ctx, s.WaitOptions(ro.OnPoll))
	if err != nil {
		return zero, fmt.Errorf("failed waiting for %s task %s: %w", kind, t.ID(), err)
	}

	result, err := t.Result(ctx)
	if err != nil {
		return zero, fmt.Errorf("failed to fetch result of %s task %s (%s): %w", kind, t.ID(), state, err)
	}

	logger.Info("Completed %s task %s", kind, t.ID())
	return result, nil
}

// clearTask releases the job even when ctx has been cancelled.
func clearTask[R any](ctx context.Context, t *task.Task[models.Document, R]) {
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), clearTimeout)
	defer cancel()

	if err := t.Clear(clearCtx); err != nil {
		logger.Warn("Failed to clear %s task %s: %v", t.Kind(), t.ID(), err)
	}
}

func runBatch[R any](
	ctx context.Context,
	s *AnalysisService,
	batches [][]models.Document,
	optsFor func(int) RunOptions,
	runOne func(context.Context, []models.Document, RunOptions) (R, error),
) ([]R, error) {
	results := make([]R, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for i, docs := range batches {
		i, docs := i, docs
		ro := optsFor(i)
		g.Go(func() error {
			result, err := runOne(gctx, docs, ro)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// IsRetryable reports whether err came from a transient condition that a
// later attempt might not hit.
func IsRetryable(err error) bool {
	return errors.Is(err, task.ErrTransport) || errors.Is(err, task.ErrTimeout)
}
