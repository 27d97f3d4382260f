package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/raylab/nodeguard/internal/history"
)

// startPostgresContainer starts a PostgreSQL container and returns a pgx
// stdlib DSN. The test is skipped when Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("failed to start PostgreSQL container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("failed to get container host: %v", err)
		return "", nil
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}
	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	t.Helper()
	deadline := time.Now().Add(45 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				_ = db.Close()
				cancel()
				return
			}
			_ = db.Close()
		}
		lastErr = err
		cancel()
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("postgres not ready in time: %v", lastErr)
}

func TestSink_SendAndReadBack(t *testing.T) {
	dsn, terminate := startPostgresContainer(t)
	defer terminate()
	waitForPostgres(t, dsn)

	s, err := New(dsn)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	code := 137
	err = s.Send(ctx, history.Event{
		Type:       history.EventExit,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			Name: "ray-head", PID: 4242, State: "restarting",
			ExitCode: &code, ExitReason: "timeout_killed",
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	var evt, name, state, reason string
	var pid int
	var exitCode *int
	err = s.db.QueryRowContext(ctx, `
		SELECT event, name, pid, state, exit_code, exit_reason
		FROM lifecycle_history WHERE name = 'ray-head'`).
		Scan(&evt, &name, &pid, &state, &exitCode, &reason)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if evt != "exit" || pid != 4242 || state != "restarting" || reason != "timeout_killed" {
		t.Fatalf("row mismatch: %s %s %d %s %s", evt, name, pid, state, reason)
	}
	if exitCode == nil || *exitCode != 137 {
		t.Fatalf("exit code: got %v want 137", exitCode)
	}
}

func TestNew_EmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
