package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dray-io/brokerstats/internal/config"
	"github.com/dray-io/brokerstats/internal/lag"
	"github.com/dray-io/brokerstats/internal/logging"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Observability.MetricsAddr = "127.0.0.1:0"
	cfg.Stats.AlignToInterval = false
	cfg.Stats.ReportIntervalMs = 100
	cfg.Perf.SummaryIntervalMs = 100
	cfg.Lag.OffsetSweepIntervalMs = 100
	return cfg
}

func startDaemon(t *testing.T, cfg *config.Config) (*Daemon, string) {
	t.Helper()
	d, err := NewDaemon(DaemonOptions{
		Config:     cfg,
		Logger:     logging.Discard(),
		InstanceID: "test",
		Version:    "test",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	select {
	case <-d.Ready():
	case err := <-errCh:
		t.Fatalf("daemon failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not start")
	}

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		require.NoError(t, d.Shutdown(shutdownCtx))
	})
	return d, "http://" + d.Addr()
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestDaemon_LagQueryEndToEnd(t *testing.T) {
	_, base := startDaemon(t, testConfig())

	resp := post(t, base+topicsPath, createTopicRequest{Name: "orders", ReadQueueNums: 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = post(t, base+topicsPath, createTopicRequest{Name: "orders", ReadQueueNums: 2})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	require.Equal(t, http.StatusOK, post(t, base+appendPath, appendRequest{Topic: "orders", QueueID: 0, Count: 100}).StatusCode)
	require.Equal(t, http.StatusOK, post(t, base+appendPath, appendRequest{Topic: "orders", QueueID: 1, Count: 40}).StatusCode)
	require.Equal(t, http.StatusNoContent, post(t, base+timingPath, timingRequest{Topic: "orders", Delta: 3}).StatusCode)
	require.Equal(t, http.StatusOK, post(t, base+commitOffsetPath, commitRequest{Group: "g1", Topic: "orders", QueueID: 0, Offset: 40}).StatusCode)

	ctx := context.Background()
	res, err := queryServer(ctx, base, lag.Request{Topic: "orders", Group: "g1"})
	require.NoError(t, err)
	require.Equal(t, lag.CodeSuccess, res.Code)
	assert.Equal(t, int64(100), res.Result.ActiveMessages)
	assert.Equal(t, int64(140), res.Result.TotalMessages)
	assert.Equal(t, int64(3), res.Result.DelayMessages)

	res, err = queryServer(ctx, base, lag.Request{Topic: "missing", Group: "g1"})
	require.NoError(t, err)
	assert.Equal(t, lag.CodeTopicNotExist, res.Code)

	status, body := get(t, base+itemsPath+"?kind="+lag.StatsKind)
	require.Equal(t, http.StatusOK, status)
	var items []itemView
	require.NoError(t, json.Unmarshal([]byte(body), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "orders", items[0].Object)
	assert.Equal(t, int64(100), items[0].Values["active"])

	status, body = get(t, base+itemsPath+"?kind=TOPIC_PUT_NUMS")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"nums":140`)

	status, body = get(t, base+"/metrics")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `brokerstats_lag_queries_total{status="success"} 1`)
	assert.Contains(t, body, `brokerstats_perf_events{counter="lag.orders"}`)
	assert.Contains(t, body, `brokerstats_perf_range_share_percent{counter="lag.orders",range="0-1000"}`)
	assert.Contains(t, body, `brokerstats_perf_events{counter="put.orders"} 2`)
	assert.Contains(t, body, `brokerstats_metadata_operations_total{backend="memory",operation="put",status="success"} 1`)
	assert.Contains(t, body, `brokerstats_metadata_operations_total{backend="memory",operation="put",status="failure"} 1`)
}

func TestDaemon_IncAndReporting(t *testing.T) {
	d, base := startDaemon(t, testConfig())

	resp := post(t, base+incPath, incRequest{Kind: "TOPIC_PUT_NUMS", Object: "orders", Values: []int64{2, 256}})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = post(t, base+incPath, incRequest{Kind: "NOPE", Object: "orders", Values: []int64{1}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = post(t, base+incPath, map[string]any{"kind": "TOPIC_PUT_NUMS", "bogus": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	item, ok := d.manager.Item("TOPIC_PUT_NUMS", "orders")
	require.True(t, ok)
	assert.Equal(t, int64(256), item.Value("size"))

	// The item is reported on the 100ms interval.
	require.Eventually(t, func() bool {
		_, body := get(t, base+"/metrics")
		return strings.Contains(body, `brokerstats_reporter_lines_total{reporter="broker"}`)
	}, 5*time.Second, 50*time.Millisecond)

	resp = post(t, base+reportingPath+"?enabled=false", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, rep := range d.reporters {
		assert.False(t, rep.Enabled())
	}
	status, body := get(t, base+reportingPath)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"enabled":false}`, body)

	resp = post(t, base+reportingPath+"?enabled=maybe", struct{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDaemon_StartTwice(t *testing.T) {
	d, _ := startDaemon(t, testConfig())
	assert.Error(t, d.Start(context.Background()))
}

func TestNewDaemon_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Stats.SampleIntervalMs = 10
	_, err := NewDaemon(DaemonOptions{Config: cfg, Logger: logging.Discard()})
	assert.ErrorIs(t, err, config.ErrInvalidSampleInterval)
}

func TestPrintResponse(t *testing.T) {
	resp := &lag.Response{Code: lag.CodeSuccess, Result: &lag.Result{ActiveMessages: 100, TotalMessages: 140}}

	var buf bytes.Buffer
	require.NoError(t, printResponse(&buf, "yaml", resp))
	assert.Contains(t, buf.String(), "activeMessages: 100")
	assert.NotContains(t, buf.String(), "queuesScanned")

	buf.Reset()
	require.NoError(t, printResponse(&buf, "json", resp))
	assert.Contains(t, buf.String(), `"totalMessages": 140`)

	assert.Error(t, printResponse(&buf, "table", resp))
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "brokerstatsd version dev")
}

func do(t *testing.T, method, url string, body any) (int, string) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestDaemon_Admin(t *testing.T) {
	d, base := startDaemon(t, testConfig())

	require.Equal(t, http.StatusCreated, post(t, base+topicsPath, createTopicRequest{Name: "orders", ReadQueueNums: 1}).StatusCode)

	status, _ := do(t, http.MethodPut, base+topicsPath, createTopicRequest{Name: "orders", ReadQueueNums: 3})
	require.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodPut, base+topicsPath, createTopicRequest{Name: "missing", ReadQueueNums: 3})
	assert.Equal(t, http.StatusNotFound, status)

	status, body := get(t, base+topicsPath)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"readQueueNums":3`)

	require.Equal(t, http.StatusOK, post(t, base+appendPath, appendRequest{Topic: "orders", QueueID: 2, Count: 5, StoreTimeMs: 1000}).StatusCode)
	status, body = get(t, base+queuesPath+"?topic=orders")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"queueId":2,"minOffset":0,"maxOffset":5}]`, body)

	resp := post(t, base+commitOffsetPath, commitRequest{
		Group: "g1",
		Offsets: []queueOffset{
			{Topic: "orders", QueueID: 0, Offset: 0},
			{Topic: "orders", QueueID: 2, Offset: 4},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	status, body = get(t, base+offsetsPath+"?group=g1")
	require.Equal(t, http.StatusOK, status)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &listed))
	assert.Len(t, listed, 2)

	res, err := queryServer(context.Background(), base, lag.Request{Topic: "orders", Group: "g1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Result.ActiveMessages)

	status, _ = do(t, http.MethodDelete, base+offsetsPath+"?group=g1&topic=orders&queueId=2", nil)
	require.Equal(t, http.StatusNoContent, status)
	res, err = queryServer(context.Background(), base, lag.Request{Topic: "orders", Group: "g1"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Result.ActiveMessages)

	status, _ = do(t, http.MethodDelete, base+topicsPath+"?name=orders", nil)
	require.Equal(t, http.StatusNoContent, status)
	_, ok := d.manager.Item("TOPIC_PUT_NUMS", "orders")
	assert.False(t, ok)
	_, ok = d.manager.Item(lag.StatsKind, "orders")
	assert.False(t, ok)
	assert.Empty(t, d.ticks.Names())
	status, _ = do(t, http.MethodDelete, base+topicsPath+"?name=orders", nil)
	assert.Equal(t, http.StatusNotFound, status)

	resp = post(t, base+appendPath, appendRequest{Topic: "orders", QueueID: 0, Count: 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDaemon_LagQueriesKeepStateBounded(t *testing.T) {
	d, base := startDaemon(t, testConfig())
	require.Equal(t, http.StatusCreated, post(t, base+topicsPath, createTopicRequest{Name: "orders", ReadQueueNums: 1}).StatusCode)

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		res, err := queryServer(ctx, base, lag.Request{Topic: fmt.Sprintf("nope-%d", i), Group: "g1"})
		require.NoError(t, err)
		require.Equal(t, lag.CodeTopicNotExist, res.Code)

		res, err = queryServer(ctx, base, lag.Request{Topic: "orders", Group: fmt.Sprintf("g-%d", i)})
		require.NoError(t, err)
		require.Equal(t, lag.CodeSuccess, res.Code)
	}

	assert.Equal(t, []string{lag.TicksName("orders")}, d.ticks.Names())

	var lagItems int
	for _, item := range d.manager.Items() {
		if item.Kind() == lag.StatsKind {
			lagItems++
		}
	}
	assert.Equal(t, 1, lagItems)
	item, ok := d.manager.Item(lag.StatsKind, "orders")
	require.True(t, ok)
	assert.Equal(t, int64(50), item.InvokeTimes())
}
