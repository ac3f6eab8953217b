package oxia

import (
	"os"
	"testing"
	"time"

	"github.com/oxia-db/oxia/oxiad/dataserver"
)

// startTestServer starts an embedded Oxia standalone server, or uses the
// one named by OXIA_SERVICE_ADDRESS. It is closed via t.Cleanup.
func startTestServer(t *testing.T) string {
	t.Helper()

	if addr := os.Getenv("OXIA_SERVICE_ADDRESS"); addr != "" {
		t.Logf("Using external Oxia server at %s", addr)
		return addr
	}

	standalone, err := dataserver.NewStandalone(dataserver.NewTestConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("failed to start Oxia standalone server: %v", err)
	}
	t.Cleanup(func() {
		_ = standalone.Close()
	})
	return standalone.ServiceAddr()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(Config{
		ServiceAddress: startTestServer(t),
		Namespace:      "default",
		RequestTimeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
