package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raylab/nodeguard/internal/history"
)

// setupClickHouseContainer starts a ClickHouse container. Skipped when Docker
// is unavailable or in short mode.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	container, err := tcclickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		tcclickhouse.WithUsername("default"),
		tcclickhouse.WithPassword(""),
		tcclickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("failed to start ClickHouse container: %v", err)
		return nil, ""
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Skipf("failed to get container host: %v", err)
		return nil, ""
	}
	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Skipf("failed to get mapped port: %v", err)
		return nil, ""
	}
	return container, host + ":" + port.Port()
}

func TestSink_Integration(t *testing.T) {
	ctx := context.Background()
	container, addr := setupClickHouseContainer(ctx, t)
	defer func() { _ = container.Terminate(ctx) }()

	sink, err := New(addr, "lifecycle_history_test")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	code := 1
	events := []history.Event{
		{
			Type:       history.EventStart,
			OccurredAt: time.Now().UTC(),
			Record:     history.Record{Name: "ray-worker", PID: 123, State: "running"},
		},
		{
			Type:       history.EventExit,
			OccurredAt: time.Now().UTC(),
			Record: history.Record{
				Name: "ray-worker", PID: 123, State: "restarting",
				ExitCode: &code, ExitReason: "normal",
			},
		},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.Type, err)
		}
	}

	// Give the server a moment to make the inserts visible.
	time.Sleep(100 * time.Millisecond)

	row := sink.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM lifecycle_history_test WHERE name = ?", "ray-worker")
	var count uint64
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != uint64(len(events)) {
		t.Fatalf("rows: got %d want %d", count, len(events))
	}
}

func TestNew_ConnectionError(t *testing.T) {
	if _, err := New("invalid-host:9000", "t"); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}
