package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/MrWong99/modelmixer/pkg/mixer"
)

func writeConfig(t *testing.T, endpoint string) string {
	t.Helper()
	doc := `
server:
  log_level: warn
mixer:
  enabled: true
  strategy:
    type: priority
  providers:
    - id: up
      name: Upstream
      type: local
      endpoint: ` + endpoint + `
      model: tiny
      enabled: true
      priority: 5
    - id: spare
      type: cloud
      endpoint: http://spare.invalid
      enabled: false
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestValidate(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "http://up.invalid")

	code, out, errOut := runCLI(t, "--config", path, "validate")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "ok (2 providers, 1 enabled, strategy priority") {
		t.Errorf("stdout = %q", out)
	}
}

func TestValidate_MissingFile(t *testing.T) {
	t.Parallel()
	code, _, errOut := runCLI(t, "-c", filepath.Join(t.TempDir(), "nope.yaml"), "validate")
	if code != 1 || !strings.Contains(errOut, "not found") {
		t.Errorf("exit %d, stderr %q", code, errOut)
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()
	if code, _, _ := runCLI(t, "explode"); code != 2 {
		t.Errorf("exit %d, want 2", code)
	}
}

func TestExport(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "http://up.invalid")

	code, out, errOut := runCLI(t, "--config", path, "export")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	cfg, err := mixer.UnmarshalConfig([]byte(out))
	if err != nil {
		t.Fatalf("export is not importable: %v", err)
	}
	if len(cfg.Providers) != 2 || cfg.Strategy.Type != mixer.StrategyPriority || !cfg.Enabled {
		t.Errorf("exported = %+v", cfg)
	}

	target := filepath.Join(t.TempDir(), "export.json")
	if code, _, errOut := runCLI(t, "--config", path, "export", "--out", target); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != out {
		t.Error("file export differs from stdout export")
	}
}

func TestCall(t *testing.T) {
	t.Parallel()
	var got map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"pong"}`))
	}))
	t.Cleanup(upstream.Close)
	path := writeConfig(t, upstream.URL)

	code, out, errOut := runCLI(t, "--config", path, "call", "ping", "-o", "max_tokens=5", "-o", "stop=end")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(errOut, "provider: Upstream (up), attempts: 1") {
		t.Errorf("stderr = %q", errOut)
	}
	if strings.TrimSpace(out) != "{\n  \"text\": \"pong\"\n}" {
		t.Errorf("stdout = %q", out)
	}
	want := map[string]any{"model": "tiny", "prompt": "ping", "max_tokens": float64(5), "stop": "end"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("upstream body = %v, want %v", got, want)
	}
}

func TestCall_ProviderFailure(t *testing.T) {
	t.Parallel()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(upstream.Close)

	code, _, errOut := runCLI(t, "--config", writeConfig(t, upstream.URL), "call", "ping")
	if code != 1 || !strings.Contains(errOut, "HTTP 503") {
		t.Errorf("exit %d, stderr %q", code, errOut)
	}
}

func TestParseOptions(t *testing.T) {
	t.Parallel()
	got := parseOptions(map[string]string{
		"n":      "3",
		"stream": "false",
		"stop":   "END",
		"extra":  `{"a":1}`,
	})
	want := mixer.Options{"n": float64(3), "stream": false, "stop": "END", "extra": map[string]any{"a": float64(1)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseOptions = %v, want %v", got, want)
	}
	if parseOptions(nil) != nil {
		t.Error("empty input should give nil options")
	}
}
