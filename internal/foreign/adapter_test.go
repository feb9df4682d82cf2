package foreign

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/oriys/pulsar/internal/domain"
)

// writeTool creates an executable fake invoke-local tool.
func writeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-sls")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write tool: %v", err)
	}
	return path
}

func newTestAdapter(cfg Config) *Adapter {
	return New(cfg).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func pythonRequest(payload string) domain.InvocationRequest {
	return domain.InvocationRequest{
		Runtime:          domain.KindPython,
		HandlerMethod:    "hello",
		Payload:          json.RawMessage(payload),
		WorkingDirectory: os.TempDir(),
	}
}

func TestArgs(t *testing.T) {
	req := pythonRequest(`{}`)
	if got := strings.Join(Args(req), " "); got != "invoke local -f hello" {
		t.Fatalf("Args() = %q", got)
	}
	req.ExtraArgs = map[string]string{"stage": "dev"}
	if got := strings.Join(Args(req), " "); got != "invoke local -f hello -s dev" {
		t.Fatalf("Args() with stage = %q", got)
	}
}

func TestInvoke_LogsThenResult(t *testing.T) {
	tool := writeTool(t, `cat >/dev/null
echo "loading handler"
echo "processing event"
echo '{"result":42}'`)

	res := newTestAdapter(Config{Tool: tool}).Run(context.Background(), pythonRequest(`{"x":1}`))
	if !res.Outcome.OK() {
		t.Fatalf("expected success, got %s", res.Outcome)
	}
	var value map[string]int
	if err := json.Unmarshal(res.Outcome.Value, &value); err != nil || value["result"] != 42 {
		t.Fatalf("unexpected value %s", res.Outcome.Value)
	}
	if res.DebugLog != "loading handler\nprocessing event" {
		t.Fatalf("debug log = %q", res.DebugLog)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d", res.ExitCode)
	}
}

func TestInvoke_StderrOnlyFailure(t *testing.T) {
	tool := writeTool(t, `cat >/dev/null
printf boom >&2
exit 1`)

	out := newTestAdapter(Config{Tool: tool}).Invoke(context.Background(), pythonRequest(`{}`))
	if out.OK() {
		t.Fatalf("expected failure, got %s", out)
	}
	if out.Err.Error() != "boom" {
		t.Fatalf("detail = %q, want %q", out.Err.Error(), "boom")
	}
	if _, ok := out.Err.(*domain.OpaqueError); !ok {
		t.Fatalf("foreign failures must be opaque, got %T", out.Err)
	}
}

func TestInvoke_PayloadAndArgsReachTool(t *testing.T) {
	tool := writeTool(t, `read line
printf '{"args":"%s","payload":%s,"cwd":"%s"}\n' "$*" "$line" "$(pwd)"`)

	dir := t.TempDir()
	req := pythonRequest("{\n  \"name\": \"pulsar\"\n}")
	req.WorkingDirectory = dir
	req.ExtraArgs = map[string]string{"stage": "dev"}

	res := newTestAdapter(Config{Tool: tool}).Run(context.Background(), req)
	if !res.Outcome.OK() {
		t.Fatalf("expected success, got %s (stdout %q)", res.Outcome, res.Stdout)
	}
	var got struct {
		Args    string            `json:"args"`
		Payload map[string]string `json:"payload"`
		Cwd     string            `json:"cwd"`
	}
	if err := json.Unmarshal(res.Outcome.Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Args != "invoke local -f hello -s dev" {
		t.Fatalf("args = %q", got.Args)
	}
	if got.Payload["name"] != "pulsar" {
		t.Fatalf("payload = %v", got.Payload)
	}
	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(got.Cwd)
	if gotDir != wantDir {
		t.Fatalf("cwd = %q, want %q", got.Cwd, dir)
	}
}

func TestInvoke_ThroughShell(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	tool := writeTool(t, `cat >/dev/null
echo "$GREETING"
echo '{"ok":true}'`)

	cfg := Config{Tool: tool, Shell: "/bin/sh", Env: append(os.Environ(), "GREETING=hi there")}
	res := newTestAdapter(cfg).Run(context.Background(), pythonRequest(`{}`))
	if !res.Outcome.OK() {
		t.Fatalf("expected success, got %s", res.Outcome)
	}
	if res.DebugLog != "hi there" {
		t.Fatalf("debug log = %q", res.DebugLog)
	}
	if !strings.Contains(res.Command, "invoke local -f hello") {
		t.Fatalf("command = %q", res.Command)
	}
}

func TestInvoke_CompiledRuntimeUsesWholeOutput(t *testing.T) {
	tool := writeTool(t, `cat >/dev/null
printf '{\n  "result": 7\n}\n'`)

	req := pythonRequest(`{}`)
	req.Runtime = domain.KindGo
	out := newTestAdapter(Config{Tool: tool}).Invoke(context.Background(), req)
	if !out.OK() {
		t.Fatalf("expected success, got %s", out)
	}
}

func TestInvoke_SpawnError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	out := newTestAdapter(Config{Tool: missing}).Invoke(context.Background(), pythonRequest(`{}`))
	if out.OK() {
		t.Fatal("expected failure for missing tool")
	}
	if !strings.Contains(out.Err.Error(), "spawn") {
		t.Fatalf("detail = %q, want spawn error", out.Err.Error())
	}
}

func TestInvoke_Timeout(t *testing.T) {
	tool := writeTool(t, `sleep 5
echo '{"late":true}'`)

	start := time.Now()
	out := newTestAdapter(Config{Tool: tool, Timeout: 100 * time.Millisecond}).Invoke(context.Background(), pythonRequest(`{}`))
	if out.OK() {
		t.Fatalf("expected timeout failure, got %s", out)
	}
	if !strings.Contains(out.Err.Error(), "timed out") {
		t.Fatalf("detail = %q", out.Err.Error())
	}
	if time.Since(start) > 4*time.Second {
		t.Fatal("timeout did not stop the tool")
	}
}

func TestPayloadLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"{\n \"a\": 1\n}", "{\"a\":1}\n"},
		{"", "null\n"},
		{`"text"`, "\"text\"\n"},
	}
	for _, tt := range tests {
		if got := string(payloadLine(json.RawMessage(tt.in))); got != tt.want {
			t.Fatalf("payloadLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
