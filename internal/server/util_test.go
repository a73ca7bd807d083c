package server

import "testing"

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"  ", ""},
		{"debug", "/debug"},
		{"/debug", "/debug"},
		{"/debug/", "/debug"},
		{"debug///", "/debug"},
	}
	for _, tc := range cases {
		if got := sanitizeBase(tc.in); got != tc.want {
			t.Errorf("sanitizeBase(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEnsureLoopback(t *testing.T) {
	ok := []string{"127.0.0.1:7788", "localhost:7788", "[::1]:7788", "127.0.0.2:80"}
	for _, addr := range ok {
		if err := ensureLoopback(addr); err != nil {
			t.Errorf("ensureLoopback(%q) = %v, want nil", addr, err)
		}
	}

	bad := []string{"0.0.0.0:7788", ":7788", "192.168.1.10:7788", "example.com:80", "127.0.0.1", "nonsense"}
	for _, addr := range bad {
		if err := ensureLoopback(addr); err == nil {
			t.Errorf("ensureLoopback(%q) accepted a non-loopback address", addr)
		}
	}
}

func TestNewServerRejectsNonLoopback(t *testing.T) {
	if _, err := NewServer("0.0.0.0:0", "", func() Status { return Status{} }, nil); err == nil {
		t.Fatalf("expected error for wildcard bind")
	}
}

func TestNewServerLoopback(t *testing.T) {
	srv, err := NewServer("127.0.0.1:0", "/debug", func() Status { return Status{} }, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
