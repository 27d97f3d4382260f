package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/raylab/nodeguard/internal/history"
)

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to a ClickHouse server at addr ("host:9000") and writes
// events to table (default "lifecycle_history").
func New(addr, table string) (*Sink, error) {
	if table == "" {
		table = "lifecycle_history"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: table}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		timestamp DateTime64(3),
		event String,
		name String,
		pid Int64,
		state String,
		exit_code Nullable(Int64),
		exit_reason String
	) ENGINE = MergeTree() ORDER BY (name, timestamp)`, s.table)
	if err := s.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create ClickHouse table: %w", err)
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (timestamp, event, name, pid, state, exit_code, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, s.table)

	var exitCode *int64
	if e.Record.ExitCode != nil {
		v := int64(*e.Record.ExitCode)
		exitCode = &v
	}
	err := s.conn.Exec(ctx, query,
		e.OccurredAt,
		string(e.Type),
		e.Record.Name,
		int64(e.Record.PID),
		e.Record.State,
		exitCode,
		e.Record.ExitReason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
