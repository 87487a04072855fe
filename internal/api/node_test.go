package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/nerrad567/mfersafe-core/internal/emitter"
	"github.com/nerrad567/mfersafe-core/internal/nodeconfig"
	"github.com/nerrad567/mfersafe-core/internal/supervisor"
)

const restartBody = `{
  "impersonated_account": "0xdef",
  "web3_rpc": "wss://y",
  "listen_host_port": "127.0.0.1:9100",
  "key_cache_file_path": "",
  "log_file_path": "/tmp/m.log",
  "batch_size": 25
}`

func TestGetNodeArgs(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/api/v1/node/args", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	got := decodeBody[nodeconfig.Config](t, w)
	if got != sampleNodeConfig() {
		t.Errorf("args = %+v, want %+v", got, sampleNodeConfig())
	}
}

func TestRestartNode_Success(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/api/v1/node/restart", restartBody, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	resp := decodeBody[restartResponse](t, w)
	if !resp.Success || resp.Error != "" {
		t.Errorf("response = %+v, want success", resp)
	}

	if len(env.node.restarts) != 1 {
		t.Fatalf("restarts = %d, want 1", len(env.node.restarts))
	}
	if env.node.restarts[0].ImpersonatedAccount != "0xdef" || env.node.restarts[0].BatchSize != 25 {
		t.Errorf("restarted with %+v", env.node.restarts[0])
	}
	if env.node.sources[0] != supervisor.SourceAPI {
		t.Errorf("source = %q, want %q", env.node.sources[0], supervisor.SourceAPI)
	}

	w = env.do(t, http.MethodGet, "/api/v1/node/args", "", "")
	if got := decodeBody[nodeconfig.Config](t, w); got.ListenHostPort != "127.0.0.1:9100" {
		t.Errorf("args after restart = %+v", got)
	}
}

func TestRestartNode_FailureIsReportedNotThrown(t *testing.T) {
	env := newTestEnv(t, "")
	env.node.restartErr = fmt.Errorf("%w: sidecar exited", supervisor.ErrRestartFailed)

	w := env.do(t, http.MethodPost, "/api/v1/node/restart", restartBody, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	resp := decodeBody[restartResponse](t, w)
	if resp.Success {
		t.Error("success = true, want false")
	}
	if !strings.Contains(resp.Error, "sidecar exited") {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestRestartNode_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"missing fields", `{"impersonated_account":"0xabc"}`},
		{"unknown field", strings.Replace(restartBody, `"batch_size": 25`, `"batch_size": 25, "extra": 1`, 1)},
		{"invalid listen", strings.Replace(restartBody, "127.0.0.1:9100", "no-port", 1)},
		{"zero batch", strings.Replace(restartBody, `"batch_size": 25`, `"batch_size": 0`, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")

			w := env.do(t, http.MethodPost, "/api/v1/node/restart", tt.body, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			resp := decodeBody[restartResponse](t, w)
			if resp.Success || resp.Error == "" {
				t.Errorf("response = %+v", resp)
			}
			if len(env.node.restarts) != 0 {
				t.Error("node was restarted despite invalid input")
			}
		})
	}
}

func TestNodeStatus(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/api/v1/node/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	st := decodeBody[supervisor.Stats](t, w)
	if st.Status != supervisor.StatusRunning || st.PID != 1234 {
		t.Errorf("stats = %+v", st)
	}
	if len(st.Args) == 0 || st.Args[0] != "-account" {
		t.Errorf("args = %v", st.Args)
	}
}

func TestNodeLogs(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		query     string
		wantCode  int
		wantCount int
	}{
		{"", http.StatusOK, 3},
		{"?n=2", http.StatusOK, 2},
		{"?n=0", http.StatusOK, 3},
		{"?n=-1", http.StatusBadRequest, 0},
		{"?n=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/node/logs"+tt.query, "", "")
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}

			type logsBody struct {
				Lines []emitter.Emitted `json:"lines"`
				Count int               `json:"count"`
			}
			body := decodeBody[logsBody](t, w)
			if body.Count != tt.wantCount || len(body.Lines) != tt.wantCount {
				t.Errorf("count = %d, lines = %d, want %d", body.Count, len(body.Lines), tt.wantCount)
			}
			if body.Lines[len(body.Lines)-1].Payload != "[terminated: exit status 1]" {
				t.Errorf("last line = %q", body.Lines[len(body.Lines)-1].Payload)
			}
		})
	}
}

func TestNodeLogs_NotConfigured(t *testing.T) {
	env := newTestEnv(t, "", func(d *Deps) { d.Logs = nil })

	w := env.do(t, http.MethodGet, "/api/v1/node/logs", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestListRestarts(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/api/v1/node/restarts?source=mqtt&failed=true&limit=10&offset=5", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	f := env.history.filter
	if f.Source != "mqtt" || !f.FailedOnly || f.Limit != 10 || f.Offset != 5 {
		t.Errorf("filter = %+v", f)
	}

	type restartsBody struct {
		Restarts []map[string]any `json:"restarts"`
		Total    int              `json:"total"`
	}
	if body := decodeBody[restartsBody](t, w); body.Total != 1 || body.Restarts[0]["id"] != "rst-1" {
		t.Errorf("body = %+v", body)
	}
}

func TestListRestarts_Errors(t *testing.T) {
	env := newTestEnv(t, "")

	if w := env.do(t, http.MethodGet, "/api/v1/node/restarts?limit=x", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}

	env.history.err = errors.New("disk I/O error")
	if w := env.do(t, http.MethodGet, "/api/v1/node/restarts", "", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("repository failure status = %d, want 500", w.Code)
	}

	noHistory := newTestEnv(t, "", func(d *Deps) { d.History = nil })
	if w := noHistory.do(t, http.MethodGet, "/api/v1/node/restarts", "", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no history status = %d, want 503", w.Code)
	}
}
