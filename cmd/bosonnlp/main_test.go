package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kelsos/bosonnlp-go/internal/mockserver"
	"github.com/kelsos/bosonnlp-go/internal/models"
	"github.com/kelsos/bosonnlp-go/internal/task"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeDocs(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docs.txt")
	if err := os.WriteFile(path, []byte(lines), 0600); err != nil {
		t.Fatalf("write docs: %v", err)
	}
	return path
}

func TestClusterCommand_PrintsClusters(t *testing.T) {
	t.Parallel()
	mock := mockserver.New(mockserver.Config{PollsUntilDone: 1})
	srv := httptest.NewServer(mock)
	defer srv.Close()

	path := writeDocs(t, "breaking news\nsports\n\nBreaking  News\n")
	out, err := execute(t, "--url", srv.URL, "cluster", "--poll-interval", "1ms", path)
	if err != nil {
		t.Fatalf("cluster: %v", err)
	}

	var clusters []models.Cluster
	if err := json.Unmarshal([]byte(out), &clusters); err != nil {
		t.Fatalf("decode output: %v (%s)", err, out)
	}
	if len(clusters) != 1 || clusters[0].Num != 2 || clusters[0].List[1] != "2" {
		t.Errorf("unexpected clusters %+v", clusters)
	}
	if mock.Len() != 0 {
		t.Errorf("expected job to be cleared")
	}
}

func TestJobCommands_WorkOnKeptJob(t *testing.T) {
	t.Parallel()
	mock := mockserver.New(mockserver.Config{PollsUntilDone: 0})
	srv := httptest.NewServer(mock)
	defer srv.Close()

	path := writeDocs(t, "tasty\ntasty\n")
	if _, err := execute(t, "--url", srv.URL, "comments", "--id", "kept", "--keep", "--poll-interval", "1ms", path); err != nil {
		t.Fatalf("comments: %v", err)
	}

	out, err := execute(t, "--url", srv.URL, "status", "--kind", "comments", "kept")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status jobStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v (%s)", err, out)
	}
	if status.State != task.StateFinished.String() || status.ID != "kept" {
		t.Errorf("unexpected status %+v", status)
	}

	out, err = execute(t, "--url", srv.URL, "result", "--kind", "comments", "--clear", "kept")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	var groups []models.CommentGroup
	if err := json.Unmarshal([]byte(out), &groups); err != nil {
		t.Fatalf("decode result: %v (%s)", err, out)
	}
	if len(groups) != 1 || groups[0].Opinion != "tasty" {
		t.Errorf("unexpected groups %+v", groups)
	}
	if mock.Len() != 0 {
		t.Errorf("expected result --clear to remove the job")
	}

	out, err = execute(t, "--url", srv.URL, "status", "kept")
	if err != nil {
		t.Fatalf("status after clear: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.State != task.StateNotFound.String() {
		t.Errorf("expected not found after clear, got %+v", status)
	}
}

func TestPingCommand(t *testing.T) {
	t.Parallel()
	mock := httptest.NewServer(mockserver.New(mockserver.Config{Token: "tok"}))
	defer mock.Close()
	if _, err := execute(t, "--url", mock.URL, "--token", "tok", "ping"); err != nil {
		t.Errorf("ping: %v", err)
	}

	elsewhere := httptest.NewServer(http.NotFoundHandler())
	defer elsewhere.Close()
	if _, err := execute(t, "--url", elsewhere.URL, "ping"); err == nil {
		t.Errorf("expected ping to fail against a server that 404s every path")
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", &task.TimeoutError{}), 3},
		{&task.TaskError{State: task.StateFailed}, 4},
		{fmt.Errorf("%w: %w", task.ErrCancelled, context.Canceled), 130},
		{&task.TransportError{Op: "status", Err: fmt.Errorf("eof")}, 5},
		{fmt.Errorf("bad flag"), 1},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestEffectiveLogLevel(t *testing.T) {
	t.Parallel()
	noEnv := func(string) (string, bool) { return "", false }
	debugEnv := func(key string) (string, bool) { return "1", key == "DEBUG" }

	cases := []struct {
		name      string
		flagLevel string
		flagSet   bool
		debugFlag bool
		lookupEnv func(string) (string, bool)
		want      string
	}{
		{"configured", "", false, false, noEnv, "info"},
		{"debug variable", "", false, false, debugEnv, "debug"},
		{"flag beats debug variable", "warn", true, false, debugEnv, "warn"},
		{"debug flag beats everything", "error", true, true, noEnv, "debug"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := effectiveLogLevel("info", tc.flagLevel, tc.flagSet, tc.debugFlag, tc.lookupEnv)
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
