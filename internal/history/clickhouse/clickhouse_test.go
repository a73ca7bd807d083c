package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/openautonote/usher/internal/history"
)

// setupClickHouse starts a ClickHouse container and returns the native
// protocol address.
func setupClickHouse(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	clickHouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start ClickHouse container: %v", err)
	}

	host, err := clickHouseContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := clickHouseContainer.MappedPort(ctx, "9000/tcp")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}
	return clickHouseContainer, fmt.Sprintf("%s:%s", host, port.Port())
}

func createLaunchTable(ctx context.Context, t *testing.T, addr string) {
	t.Helper()
	conn, err := ch.Open(&ch.Options{
		Addr: []string{addr},
		Auth: ch.Auth{Database: "default", Username: "default", Password: ""},
	})
	if err != nil {
		t.Fatalf("Failed to connect for schema setup: %v", err)
	}
	defer func() { _ = conn.Close() }()

	err = conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS launch_history (
		occurred_at DateTime,
		event String,
		name String,
		pid Int64,
		port Int64,
		attempts Int64,
		exit_code Int64,
		detail String
	) ENGINE = MergeTree() ORDER BY occurred_at`)
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, addr := setupClickHouse(ctx, t)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	}()

	createLaunchTable(ctx, t, addr)

	sink, err := New(addr, "launch_history")
	if err != nil {
		t.Fatalf("Failed to create ClickHouse sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	now := time.Now().UTC().Truncate(time.Second)
	events := []history.Event{
		{Type: history.EventLaunchStarted, OccurredAt: now, Name: "api-server", Port: 8964},
		{Type: history.EventBackendSpawned, OccurredAt: now, Name: "api-server", PID: 4242, Port: 8964},
		{Type: history.EventBackendReady, OccurredAt: now, Name: "api-server", PID: 4242, Port: 8964, Attempts: 1},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", e.Type, err)
		}
	}

	var count uint64
	row := sink.conn.QueryRow(ctx, "SELECT count() FROM launch_history")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != uint64(len(events)) {
		t.Fatalf("row count = %d, want %d", count, len(events))
	}
}

func TestClickHouseSink_BadAddr(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping connection test in short mode")
	}
	if _, err := New("127.0.0.1:1", "launch_history"); err == nil {
		t.Fatalf("expected connection error")
	}
}
