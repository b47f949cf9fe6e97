package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/vincentruan/telegram-spring-bot/internal/config"
	"github.com/vincentruan/telegram-spring-bot/internal/log"
)

const testToken = "123:abc"

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	// Drain concurrently so large outputs cannot fill the pipe.
	outCh := make(chan []byte, 1)
	errCh := make(chan []byte, 1)
	go func() { b, _ := io.ReadAll(stdoutR); outCh <- b }()
	go func() { b, _ := io.ReadAll(stderrR); errCh <- b }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, stderrBytes := <-outCh, <-errCh
	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func botConfig(baseURL string) string {
	return fmt.Sprintf(`
botapi:
  base_url: %s
  token: "%s"
  timeout: 5s
`, baseURL, testToken)
}

func fakeBotAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bot" + testToken + "/sendMessage":
			var params map[string]any
			_ = json.NewDecoder(r.Body).Decode(&params)
			_, _ = fmt.Fprintf(w, `{"ok":true,"result":{"message_id":99,"text":%q}}`, params["text"])
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunConfigCheck(t *testing.T) {
	path := writeConfig(t, botConfig("https://api.telegram.org"))

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"check", "--config", path})
	})
	if code != 0 {
		t.Fatalf("config check code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Config OK") || !strings.Contains(stdout, "Digest: ") {
		t.Fatalf("unexpected stdout: %s", stdout)
	}
}

func TestRunConfigCheckJSONInvalid(t *testing.T) {
	path := writeConfig(t, "sender:\n  queue_size: 0\n")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"check", "--config", path, "--json"})
	})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}

	var res configCheckResult
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("invalid JSON output %q: %v", stdout, err)
	}
	if res.Valid || !strings.Contains(res.Error, "sender.queue_size") {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunConfigCheckExpectDigest(t *testing.T) {
	path := writeConfig(t, botConfig("https://api.telegram.org"))

	_, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"check", "--config", path, "--json"})
	})
	var res configCheckResult
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatal(err)
	}

	code, _, _ := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"check", "--config", path, "--expect-digest", res.Digest})
	})
	if code != 0 {
		t.Fatalf("expected matching digest to pass, got %d", code)
	}

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"check", "--config", path, "--expect-digest", strings.Repeat("0", 64)})
	})
	if code != 1 {
		t.Fatalf("expected mismatched digest to fail, got %d", code)
	}
	if !strings.Contains(stderr, "Config invalid") {
		t.Fatalf("unexpected stderr: %s", stderr)
	}
}

func TestRunConfigShowRedactsSecrets(t *testing.T) {
	path := writeConfig(t, botConfig("https://api.telegram.org")+`
api:
  enabled: true
  listen: 127.0.0.1:0
  api_key: super-secret
`)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"show", "--config", path})
	})
	if code != 0 {
		t.Fatalf("config show code = %d, stderr: %s", code, stderr)
	}
	if strings.Contains(stdout, testToken) || strings.Contains(stdout, "super-secret") {
		t.Fatalf("secrets leaked: %s", stdout)
	}
	if !strings.Contains(stdout, redacted) || !strings.Contains(stdout, "queue_size: 1000") {
		t.Fatalf("unexpected stdout: %s", stdout)
	}
}

func TestRunConfigNounUnknownAction(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"lock"})
	})
	if code != 1 || !strings.Contains(stderr, "Unknown config action") {
		t.Fatalf("code=%d stderr=%s", code, stderr)
	}
}

func TestRunSend(t *testing.T) {
	srv := fakeBotAPI(t)
	path := writeConfig(t, botConfig(srv.URL))

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runSend([]string{"sendMessage", "--config", path, "--params", `{"chat_id":1,"text":"hello"}`, "--wait", "5s"})
	})
	if code != 0 {
		t.Fatalf("send code = %d, stderr: %s", code, stderr)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("stdout is not JSON: %q", stdout)
	}
	if out["message_id"] != float64(99) || out["text"] != "hello" {
		t.Fatalf("unexpected result: %v", out)
	}
}

func TestRunSendFailure(t *testing.T) {
	srv := fakeBotAPI(t)
	path := writeConfig(t, botConfig(srv.URL))

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runSend([]string{"--config", path, "getNothing"})
	})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr, "telegram error 404") {
		t.Fatalf("unexpected stderr: %s", stderr)
	}
}

func TestRunSendUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing method", args: nil, want: "Usage"},
		{name: "params not object", args: []string{"getMe", "--params", "[1]"}, want: "JSON object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := captureOutputWithExitCode(t, func() int { return runSend(tt.args) })
			if code != 1 || !strings.Contains(stderr, tt.want) {
				t.Fatalf("code=%d stderr=%s", code, stderr)
			}
		})
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func TestRunStartServesAndStopsOnSignal(t *testing.T) {
	srv := fakeBotAPI(t)
	dir := t.TempDir()
	addr := freeAddr(t)

	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	var exports atomic.Int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/traces" {
			exports.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(collector.Close)

	path := writeConfig(t, botConfig(srv.URL)+fmt.Sprintf(`
service:
  lock_path: %s
  tracing:
    enabled: true
    endpoint: %s/v1/traces
journal:
  enabled: true
  path: %s
api:
  enabled: true
  listen: %s
  api_key: test-key
`, filepath.Join(dir, "tgsender.lock"), collector.URL, filepath.Join(dir, "journal.db"), addr))

	done := make(chan int, 1)
	go func() { done <- runStart([]string{"--config", path}) }()

	base := "http://" + addr
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("server never became healthy")
		}
		time.Sleep(20 * time.Millisecond)
	}

	req, _ := http.NewRequest(http.MethodPost, base+"/commands/sendMessage?wait=2s", strings.NewReader(`{"chat_id":1,"text":"via api"}`))
	req.Header.Set("Authorization", "Bearer test-key")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"succeeded"`) {
		t.Fatalf("send via api: %d %s", resp.StatusCode, body)
	}

	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatal(err)
	}
	select {
	case code := <-done:
		if code != 0 {
			t.Fatalf("runStart exit code = %d", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runStart did not stop after SIGINT")
	}

	// The execution span is flushed once the sender has stopped.
	if exports.Load() == 0 {
		t.Fatal("no spans exported to the collector")
	}
}

func TestAPIConfigCarriesMaxWait(t *testing.T) {
	cfg := config.Defaults()
	cfg.API.Listen = "127.0.0.1:9999"
	cfg.API.APIKey = "k"
	cfg.API.MaxWait = 7 * time.Second

	got := apiConfig(cfg)
	if got.Listen != cfg.API.Listen || got.APIKey != "k" || got.MaxWait != 7*time.Second {
		t.Fatalf("apiConfig = %+v", got)
	}
}

func TestRunConfigGet(t *testing.T) {
	path := writeConfig(t, botConfig("https://api.telegram.org")+"sender:\n  queue_size: 42\n")

	tests := []struct {
		name     string
		args     []string
		wantCode int
		want     string
	}{
		{name: "scalar", args: []string{"get", "sender.queue_size", "--config", path}, want: "42\n"},
		{name: "secret", args: []string{"get", "botapi.token", "--config", path}, want: redacted + "\n"},
		{name: "section", args: []string{"get", "sender.callback", "--config", path}, want: "core_size: 4"},
		{name: "missing", args: []string{"get", "sender.nope", "--config", path}, wantCode: 1},
		{name: "no path", args: []string{"get"}, wantCode: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := captureOutputWithExitCode(t, func() int { return runConfigNoun(tt.args) })
			if code != tt.wantCode {
				t.Fatalf("code = %d, stderr: %s", code, stderr)
			}
			if tt.want != "" && !strings.Contains(stdout, tt.want) {
				t.Fatalf("stdout %q does not contain %q", stdout, tt.want)
			}
		})
	}
}

func TestRunMonitorRequiresAPIKey(t *testing.T) {
	t.Setenv("TGSENDER_API_KEY", "")
	cfgPath := writeConfig(t, botConfig("http://127.0.0.1:1"))

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runMonitor([]string{"--config", cfgPath})
	})
	if code != 1 || !strings.Contains(stderr, "API key required") {
		t.Fatalf("code=%d stderr=%s", code, stderr)
	}
}

func TestRunMonitorMissingConfig(t *testing.T) {
	t.Setenv("TGSENDER_API_KEY", "")
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runMonitor([]string{"--api-url", "http://127.0.0.1:1", "--config", missing})
	})
	if code != 1 || !strings.Contains(stderr, "--api-url and --api-key") {
		t.Fatalf("code=%d stderr=%s", code, stderr)
	}
}
