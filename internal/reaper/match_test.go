package reaper

import "testing"

func TestSameBaseName(t *testing.T) {
	tests := []struct {
		got  string
		want string
		same bool
	}{
		{"api-server", "api-server", true},
		{"API-Server", "api-server", true},
		{"api-server.exe", "api-server", true},
		{"/usr/local/bin/api-server", "api-server", true},
		{"api-server2", "api-server", false},
		{"", "api-server", false},
		{"api-server", "", false},
	}
	for _, tt := range tests {
		if got := sameBaseName(tt.got, tt.want); got != tt.same {
			t.Fatalf("sameBaseName(%q, %q) = %v, want %v", tt.got, tt.want, got, tt.same)
		}
	}
}

func TestContainsSequence(t *testing.T) {
	argv := []string{"/opt/app/api-server", "--port", "8964", "--secret", "x"}
	tests := []struct {
		name   string
		marker []string
		want   bool
	}{
		{"port pair", []string{"--port", "8964"}, true},
		{"wrong port", []string{"--port", "9000"}, false},
		{"single token", []string{"--secret"}, true},
		{"non consecutive", []string{"--port", "x"}, false},
		{"empty marker", nil, false},
		{"longer than argv", []string{"a", "b", "c", "d", "e", "f"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsSequence(argv, tt.marker); got != tt.want {
				t.Fatalf("containsSequence = %v, want %v", got, tt.want)
			}
		})
	}
}
