package task

import (
	"context"
	"encoding/json"
)

// JobRef names a remote job. Endpoints are scoped by kind, so the id alone
// is not enough to address a job.
type JobRef struct {
	Kind string
	ID   string
}

func (r JobRef) String() string {
	return r.Kind + "/" + r.ID
}

// Params are the optional analysis knobs forwarded on submission.
type Params struct {
	// Alpha bounds the maximum cluster size (service default 0.8).
	Alpha *float64
	// Beta bounds the average cluster size (service default 0.45).
	Beta *float64
}

type SubmitRequest struct {
	Kind string
	// ID is a caller-chosen job id. Empty lets the transport assign one.
	ID     string
	Items  []json.RawMessage
	Params Params
}

type StatusReport struct {
	Code StatusCode
	Raw  json.RawMessage
}

// Transport reaches the remote analysis service. Implementations return
// *TransportError for connectivity and framing problems and *RemoteError for
// well-formed rejections, and must be safe for concurrent use when shared
// between tasks.
type Transport interface {
	SubmitJob(ctx context.Context, req SubmitRequest) (string, error)
	QueryStatus(ctx context.Context, job JobRef) (StatusReport, error)
	FetchResult(ctx context.Context, job JobRef) (json.RawMessage, error)
	DeleteJob(ctx context.Context, job JobRef) error
}

// Kind supplies the payload-specific half of a task: how items go on the
// wire and how the final output is read back.
type Kind[I, R any] interface {
	Name() string
	EncodeItems(items []I) ([]json.RawMessage, error)
	DecodeResult(raw json.RawMessage) (R, error)
}
