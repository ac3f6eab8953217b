package metrics

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewServer(t *testing.T) {
	s := NewServer(":0")
	if s.addr != ":0" {
		t.Errorf("addr = %q, want %q", s.addr, ":0")
	}
}

func TestServer_StartAndClose(t *testing.T) {
	s := NewServerWithRegistry(":0", prometheus.NewRegistry())
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Close()

	addr := s.Addr()
	if !strings.Contains(addr, ":") {
		t.Errorf("Addr() = %q, expected host:port format", addr)
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServerWithCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewReporterMetricsWithRegistry(reg)
	m.RecordLine("broker")
	m.RecordSkip("broker", "report", "unchanged")

	s := NewServerWithRegistry(":0", reg)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Close()

	time.Sleep(10 * time.Millisecond)

	status, body := get(t, "http://"+s.Addr()+"/metrics")
	if status != http.StatusOK {
		t.Errorf("status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(body, "brokerstats_reporter_lines_total") {
		t.Error("expected brokerstats_reporter_lines_total in metrics output")
	}
	if !strings.Contains(body, `reason="unchanged"`) {
		t.Error("expected reason=unchanged label in metrics output")
	}
}

func TestServer_HealthzAndExtraHandlers(t *testing.T) {
	s := NewServerWithRegistry(":0", prometheus.NewRegistry())
	s.Handle("/stats/messages", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("lag"))
	}))
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Close()

	time.Sleep(10 * time.Millisecond)

	status, body := get(t, "http://"+s.Addr()+"/healthz")
	if status != http.StatusOK || !strings.Contains(body, "ok") {
		t.Errorf("healthz = %d %q", status, body)
	}

	status, body = get(t, "http://"+s.Addr()+"/stats/messages")
	if status != http.StatusOK || body != "lag" {
		t.Errorf("extra handler = %d %q", status, body)
	}
}

func TestServer_Close(t *testing.T) {
	s := NewServerWithRegistry(":0", prometheus.NewRegistry())
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	addr := s.Addr()

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := http.Get("http://" + addr + "/metrics"); err == nil {
		t.Error("expected error after server close")
	}
}

func TestServer_CloseWithoutStart(t *testing.T) {
	s := NewServer(":0")
	if err := s.Close(); err != nil {
		t.Errorf("Close on unstarted server returned error: %v", err)
	}
}
