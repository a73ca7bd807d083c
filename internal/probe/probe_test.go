package probe

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const resp200 = "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: 0\r\n\r\n"

// startServer runs a minimal TCP responder on a loopback port. handler
// is invoked with the 1-based connection index.
func startServer(t *testing.T, handler func(n int, c net.Conn)) (port int, stop func()) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		n := 0
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			n++
			handler(n, c)
		}
	}()
	stop = func() {
		_ = l.Close()
		wg.Wait()
	}
	return l.Addr().(*net.TCPAddr).Port, stop
}

// freePort grabs an ephemeral port and releases it so nothing listens
// there during the test.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

func TestRunImmediateReady(t *testing.T) {
	port, stop := startServer(t, func(n int, c net.Conn) {
		_, _ = io.WriteString(c, resp200)
		_ = c.Close()
	})
	defer stop()

	p := &Prober{Port: port, Interval: 20 * time.Millisecond, MaxAttempts: 5}
	res := p.Run(context.Background())
	if res.State != Ready {
		t.Fatalf("state = %v, want Ready", res.State)
	}
	if res.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", res.Attempts)
	}
}

func TestRunReadyOnThirdConnection(t *testing.T) {
	var conns atomic.Int32
	port, stop := startServer(t, func(n int, c net.Conn) {
		conns.Store(int32(n))
		if n < 3 {
			_ = c.Close()
			return
		}
		_, _ = io.WriteString(c, resp200)
		_ = c.Close()
	})
	defer stop()

	interval := 30 * time.Millisecond
	p := &Prober{Port: port, Interval: interval, MaxAttempts: 10}
	start := time.Now()
	res := p.Run(context.Background())
	elapsed := time.Since(start)

	if res.State != Ready {
		t.Fatalf("state = %v, want Ready", res.State)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}
	if elapsed < 2*interval {
		t.Fatalf("elapsed = %v, want at least %v", elapsed, 2*interval)
	}
	// Give any stray extra attempt time to land, then verify none did.
	time.Sleep(3 * interval)
	if got := conns.Load(); got != 3 {
		t.Fatalf("server saw %d connections, want exactly 3", got)
	}
}

func TestRunExhaustsBudget(t *testing.T) {
	port := freePort(t)

	interval := 20 * time.Millisecond
	attempts := 5
	p := &Prober{Port: port, Interval: interval, MaxAttempts: attempts}
	start := time.Now()
	res := p.Run(context.Background())
	elapsed := time.Since(start)

	if res.State != Failed {
		t.Fatalf("state = %v, want Failed", res.State)
	}
	if res.Attempts != attempts {
		t.Fatalf("attempts = %d, want %d", res.Attempts, attempts)
	}
	if min := time.Duration(attempts-1) * interval; elapsed < min {
		t.Fatalf("elapsed = %v, want at least %v", elapsed, min)
	}
}

func TestRunNon200NeverReady(t *testing.T) {
	port, stop := startServer(t, func(n int, c net.Conn) {
		_, _ = io.WriteString(c, "HTTP/1.1 503 Service Unavailable\r\n\r\n")
		_ = c.Close()
	})
	defer stop()

	p := &Prober{Port: port, Interval: 10 * time.Millisecond, MaxAttempts: 4}
	res := p.Run(context.Background())
	if res.State != Failed {
		t.Fatalf("state = %v, want Failed", res.State)
	}
	if res.Attempts != 4 {
		t.Fatalf("attempts = %d, want 4", res.Attempts)
	}
}

func TestRunSendsExactRequest(t *testing.T) {
	var mu sync.Mutex
	var got string
	port, stop := startServer(t, func(n int, c net.Conn) {
		buf := make([]byte, 256)
		rn, _ := c.Read(buf)
		mu.Lock()
		got = string(buf[:rn])
		mu.Unlock()
		_, _ = io.WriteString(c, resp200)
		_ = c.Close()
	})
	defer stop()

	p := &Prober{Port: port, Interval: 10 * time.Millisecond, MaxAttempts: 3}
	if res := p.Run(context.Background()); res.State != Ready {
		t.Fatalf("state = %v, want Ready", res.State)
	}
	want := "GET / HTTP/1.1\r\nHost: 127.0.0.1\r\nConnection: close\r\n\r\n"
	mu.Lock()
	defer mu.Unlock()
	if got != want {
		t.Fatalf("request = %q, want %q", got, want)
	}
}

func TestRunSlowResponseStillReady(t *testing.T) {
	port, stop := startServer(t, func(n int, c net.Conn) {
		time.Sleep(100 * time.Millisecond)
		_, _ = io.WriteString(c, resp200)
		_ = c.Close()
	})
	defer stop()

	p := &Prober{
		Port:        port,
		Interval:    10 * time.Millisecond,
		MaxAttempts: 3,
		ReadTimeout: time.Second,
	}
	res := p.Run(context.Background())
	if res.State != Ready {
		t.Fatalf("state = %v, want Ready", res.State)
	}
	if res.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", res.Attempts)
	}
}

func TestRunCanceled(t *testing.T) {
	port := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	p := &Prober{Port: port, Interval: time.Second, MaxAttempts: 60}
	start := time.Now()
	res := p.Run(ctx)
	elapsed := time.Since(start)

	if res.State != Canceled {
		t.Fatalf("state = %v, want Canceled", res.State)
	}
	if res.Attempts >= 60 {
		t.Fatalf("attempts = %d, want early exit", res.Attempts)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("cancel took %v, want prompt return", elapsed)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		response string
		want     bool
	}{
		{"HTTP/1.1 200 OK\r\n", true},
		{"HTTP/1.0 200 OK\r\n", true},
		{"HTTP/1.1 200", true},
		{"HTTP/1.1 404 Not Found\r\n", false},
		{"HTTP/1.1 503 Service Unavailable\r\n", false},
		{"HTTP/2 200\r\n", false},
		{"http/1.1 200 ok\r\n", false},
		{"HTTP/1.1 20", false},
		{"", false},
		{"garbage", false},
	}
	for _, tc := range cases {
		if got := classify([]byte(tc.response)); got != tc.want {
			t.Errorf("classify(%q) = %v, want %v", tc.response, got, tc.want)
		}
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Probing:   "probing",
		Ready:     "ready",
		Failed:    "failed",
		Canceled:  "canceled",
		State(99): "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
