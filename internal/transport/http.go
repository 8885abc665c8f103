package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kelsos/bosonnlp-go/internal/client"
	"github.com/kelsos/bosonnlp-go/internal/logger"
	"github.com/kelsos/bosonnlp-go/internal/models"
	"github.com/kelsos/bosonnlp-go/internal/task"
)

const (
	// DefaultChunkSize is the largest batch the service accepts per push.
	DefaultChunkSize = 100

	cleanupTimeout = 10 * time.Second
)

// HTTPTransport speaks the BosonNLP REST protocol:
//
//	POST /{kind}/push/{id}       append a chunk of documents
//	GET  /{kind}/analysis/{id}   start the computation
//	GET  /{kind}/status/{id}     poll
//	GET  /{kind}/result/{id}     fetch output
//	GET  /{kind}/clear/{id}      delete server-side data
type HTTPTransport struct {
	client    *client.APIClient
	chunkSize int
}

var _ task.Transport = (*HTTPTransport)(nil)

// New creates a transport over apiClient. A chunkSize outside 1..100 falls
// back to DefaultChunkSize.
func New(apiClient *client.APIClient, chunkSize int) *HTTPTransport {
	if chunkSize < 1 || chunkSize > DefaultChunkSize {
		chunkSize = DefaultChunkSize
	}
	return &HTTPTransport{client: apiClient, chunkSize: chunkSize}
}

func endpoint(kind, op, id string) string {
	return fmt.Sprintf("/%s/%s/%s", url.PathEscape(kind), op, url.PathEscape(id))
}

// SubmitJob pushes the items in chunks and then starts the analysis. If any
// step after the first push fails, the partially uploaded job is cleared so
// the service does not keep orphaned data.
func (t *HTTPTransport) SubmitJob(ctx context.Context, req task.SubmitRequest) (string, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	job := task.JobRef{Kind: req.Kind, ID: id}

	total := len(req.Items)
	pushed := 0
	for start := 0; start < total; start += t.chunkSize {
		end := start + t.chunkSize
		if end > total {
			end = total
		}

		if err := t.client.Post(ctx, endpoint(req.Kind, "push", id), nil, req.Items[start:end], nil); err != nil {
			t.abandon(ctx, job, pushed > 0)
			return "", classify("push", err)
		}
		pushed = end
		logger.Info("Pushed %d/%d documents to %s", pushed, total, job)
	}

	if err := t.client.Get(ctx, endpoint(req.Kind, "analysis", id), analysisParams(req.Params), nil); err != nil {
		t.abandon(ctx, job, pushed > 0)
		return "", classify("analysis", err)
	}

	logger.Info("Started analysis of %s", job)
	return id, nil
}

// abandon best-effort clears a job whose submission did not complete.
func (t *HTTPTransport) abandon(ctx context.Context, job task.JobRef, uploaded bool) {
	if !uploaded {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := t.DeleteJob(cleanupCtx, job); err != nil {
		logger.Warn("Failed to clear partially submitted job %s: %v", job, err)
		return
	}
	logger.Debug("Cleared partially submitted job %s", job)
}

func analysisParams(p task.Params) url.Values {
	params := url.Values{}
	if p.Alpha != nil {
		params.Set("alpha", strconv.FormatFloat(*p.Alpha, 'f', -1, 64))
	}
	if p.Beta != nil {
		params.Set("beta", strconv.FormatFloat(*p.Beta, 'f', -1, 64))
	}
	return params
}

// QueryStatus polls the job. A 404 carrying the service's error envelope is
// reported as a not-found status rather than an error; the task decides what
// it means. Any other 404 is a transport failure.
func (t *HTTPTransport) QueryStatus(ctx context.Context, job task.JobRef) (task.StatusReport, error) {
	var raw json.RawMessage
	err := t.client.Get(ctx, endpoint(job.Kind, "status", job.ID), nil, &raw)
	if err != nil {
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) && httpErr.IsServiceNotFound() {
			return task.StatusReport{Code: task.StatusNotFound, Raw: json.RawMessage(httpErr.Body)}, nil
		}
		return task.StatusReport{}, classify("status", err)
	}

	var status models.StatusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return task.StatusReport{}, &task.TransportError{Op: "status", Err: fmt.Errorf("malformed status body: %w", err)}
	}
	if status.Status == "" {
		return task.StatusReport{}, &task.TransportError{Op: "status", Err: fmt.Errorf("status body has no status field: %s", raw)}
	}

	return task.StatusReport{Code: task.ParseStatusCode(status.Status), Raw: raw}, nil
}

func (t *HTTPTransport) FetchResult(ctx context.Context, job task.JobRef) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := t.client.Get(ctx, endpoint(job.Kind, "result", job.ID), nil, &raw); err != nil {
		return nil, classify("result", err)
	}
	return raw, nil
}

func (t *HTTPTransport) DeleteJob(ctx context.Context, job task.JobRef) error {
	if err := t.client.Get(ctx, endpoint(job.Kind, "clear", job.ID), nil, nil); err != nil {
		return classify("clear", err)
	}
	return nil
}

// classify maps client errors onto the task error taxonomy. Only a 4xx that
// carries the service's own error envelope is a remote rejection; bare
// proxy errors and every 5xx are treated as transient.
func classify(op string, err error) error {
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) && httpErr.Recognized && httpErr.StatusCode < http.StatusInternalServerError {
		return &task.RemoteError{Op: op, StatusCode: httpErr.StatusCode, Message: httpErr.Message}
	}
	return &task.TransportError{Op: op, Err: err}
}
