package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kelsos/bosonnlp-go/internal/client"
	"github.com/kelsos/bosonnlp-go/internal/config"
	"github.com/kelsos/bosonnlp-go/internal/mockserver"
	"github.com/kelsos/bosonnlp-go/internal/models"
	"github.com/kelsos/bosonnlp-go/internal/services"
	"github.com/kelsos/bosonnlp-go/internal/task"
	"github.com/kelsos/bosonnlp-go/internal/transport"
)

func newTransport(t *testing.T, h http.Handler, chunkSize int) *transport.HTTPTransport {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.NewConfig()
	cfg.BaseURL = srv.URL
	cfg.Token = "tok"
	return transport.New(client.NewAPIClientWithHTTPClient(cfg, srv.Client()), chunkSize)
}

func items(t *testing.T, n int) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, n)
	for i := range out {
		b, err := json.Marshal(models.Document{ID: models.IndexID(i), Text: "same text"})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		out[i] = b
	}
	return out
}

func TestSubmitJob_PushesInChunksAndStartsAnalysis(t *testing.T) {
	t.Parallel()
	mock := mockserver.New(mockserver.Config{Token: "tok", PollsUntilDone: 1})
	tr := newTransport(t, mock, 2)

	alpha := 0.6
	id, err := tr.SubmitJob(context.Background(), task.SubmitRequest{
		Kind:   "cluster",
		ID:     "job-42",
		Items:  items(t, 5),
		Params: task.Params{Alpha: &alpha},
	})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if id != "job-42" {
		t.Errorf("expected caller id, got %q", id)
	}

	info, ok := mock.Job(models.KindCluster, "job-42")
	if !ok {
		t.Fatalf("job not stored")
	}
	if info.Pushes != 3 || info.Documents != 5 || !info.Analysed {
		t.Errorf("unexpected job info %+v", info)
	}
	if info.Params["alpha"] != "0.6" {
		t.Errorf("expected alpha forwarded, got %v", info.Params)
	}
	if _, ok := info.Params["beta"]; ok {
		t.Errorf("expected beta omitted, got %v", info.Params)
	}
}

func TestSubmitJob_AssignsIDWhenEmpty(t *testing.T) {
	t.Parallel()
	mock := mockserver.New(mockserver.Config{Token: "tok"})
	tr := newTransport(t, mock, 100)

	id, err := tr.SubmitJob(context.Background(), task.SubmitRequest{Kind: "comments", Items: items(t, 1)})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}
	if _, ok := mock.Job(models.KindComments, id); !ok {
		t.Errorf("job %q not stored", id)
	}
}

func TestSubmitJob_RejectedChunkClearsPartialJob(t *testing.T) {
	t.Parallel()
	mock := mockserver.New(mockserver.Config{Token: "tok", MaxPushSize: 2})
	pushes := 0
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			pushes++
			if pushes == 2 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"message":"bad document"}`))
				return
			}
		}
		mock.ServeHTTP(w, r)
	})
	tr := newTransport(t, h, 2)

	_, err := tr.SubmitJob(context.Background(), task.SubmitRequest{Kind: "cluster", ID: "p", Items: items(t, 4)})
	var remoteErr *task.RemoteError
	if !errors.As(err, &remoteErr) || remoteErr.Message != "bad document" {
		t.Fatalf("expected remote error, got %v", err)
	}
	if _, ok := mock.Job(models.KindCluster, "p"); ok {
		t.Errorf("expected partially pushed job to be cleared")
	}
}

func TestQueryStatus_MapsBodiesAndNotFound(t *testing.T) {
	t.Parallel()
	mock := mockserver.New(mockserver.Config{Token: "tok", PollsUntilDone: 1})
	tr := newTransport(t, mock, 100)
	ctx := context.Background()

	report, err := tr.QueryStatus(ctx, task.JobRef{Kind: "cluster", ID: "missing"})
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}
	if report.Code != task.StatusNotFound {
		t.Errorf("expected not_found, got %q", report.Code)
	}

	id, err := tr.SubmitJob(ctx, task.SubmitRequest{Kind: "cluster", Items: items(t, 2)})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	job := task.JobRef{Kind: "cluster", ID: id}
	for _, want := range []task.StatusCode{task.StatusReceived, task.StatusDone} {
		report, err := tr.QueryStatus(ctx, job)
		if err != nil {
			t.Fatalf("QueryStatus: %v", err)
		}
		if report.Code != want {
			t.Errorf("expected %q, got %q", want, report.Code)
		}
		if len(report.Raw) == 0 {
			t.Errorf("expected raw status body")
		}
	}

	raw, err := tr.FetchResult(ctx, job)
	if err != nil {
		t.Fatalf("FetchResult: %v", err)
	}
	var clusters []models.Cluster
	if err := json.Unmarshal(raw, &clusters); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(clusters) != 1 || clusters[0].Num != 2 {
		t.Errorf("unexpected clusters %+v", clusters)
	}

	if err := tr.DeleteJob(ctx, job); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	err = tr.DeleteJob(ctx, job)
	var remoteErr *task.RemoteError
	if !errors.As(err, &remoteErr) || !remoteErr.NotFound() {
		t.Errorf("expected remote not-found on second delete, got %v", err)
	}
}

func TestQueryStatus_ServiceNotFoundIsReport(t *testing.T) {
	t.Parallel()
	body := `{"message":"task not found"}`
	tr := newTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(body))
	}), 100)
	report, err := tr.QueryStatus(context.Background(), task.JobRef{Kind: "cluster", ID: "x"})
	if err != nil {
		t.Fatalf("QueryStatus: %v", err)
	}
	if report.Code != task.StatusNotFound {
		t.Errorf("expected not_found, got %q", report.Code)
	}
	if string(report.Raw) != body {
		t.Errorf("expected raw body %s, got %s", body, report.Raw)
	}
}

func TestQueryStatus_Bare404IsTransportError(t *testing.T) {
	t.Parallel()
	tr := newTransport(t, http.NotFoundHandler(), 100)
	_, err := tr.QueryStatus(context.Background(), task.JobRef{Kind: "cluster", ID: "x"})
	if !errors.Is(err, task.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if errors.Is(err, task.ErrTaskNotFound) {
		t.Errorf("bare 404 must not read as a missing job: %v", err)
	}
}

func TestWait_Bare404StatusEscalatesAsTransportError(t *testing.T) {
	t.Parallel()
	mock := mockserver.New(mockserver.Config{Token: "tok"})
	tr := newTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/status/") {
			http.NotFound(w, r)
			return
		}
		mock.ServeHTTP(w, r)
	}), 100)

	tk := task.New(tr, services.ClusterKind)
	if err := tk.Push(models.Document{ID: "0", Text: "a"}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := tk.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	state, err := tk.WaitUntilComplete(context.Background(), task.WaitOptions{
		PollInterval:         time.Millisecond,
		Timeout:              5 * time.Second,
		MaxTransportFailures: 3,
	})
	if !errors.Is(err, task.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if state == task.StateNotFound {
		t.Errorf("expected task not to be marked not found")
	}
}

func TestErrors_AreClassified(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"service rejection", http.StatusForbidden, `{"message":"invalid api token"}`, task.ErrRemote},
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`, task.ErrTransport},
		{"proxy error", http.StatusBadRequest, `<html></html>`, task.ErrTransport},
		{"malformed status", http.StatusOK, `not json`, task.ErrTransport},
		{"missing status field", http.StatusOK, `{}`, task.ErrTransport},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr := newTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}), 100)
			_, err := tr.QueryStatus(context.Background(), task.JobRef{Kind: "cluster", ID: "x"})
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSubmitJob_UnreachableServerIsTransportError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	cfg := config.NewConfig()
	cfg.BaseURL = srv.URL
	tr := transport.New(client.NewAPIClient(cfg), 100)

	_, err := tr.SubmitJob(context.Background(), task.SubmitRequest{Kind: "cluster", Items: items(t, 1)})
	if !errors.Is(err, task.ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
}
