package main

import "time"

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string // path to usher.toml; empty triggers discovery
}

// LaunchFlags holds overrides for the default launch command. The *Set
// fields record whether the flag was given, so an explicit zero (port 0
// means "pick an ephemeral port") can be told apart from the default.
type LaunchFlags struct {
	Headless    bool
	HeadlessSet bool
	Port        int
	PortSet     bool
	Backend     string
	Path        string
	Secret      string
}

// ProbeFlags holds flags for the one-off readiness probe.
type ProbeFlags struct {
	Host        string
	Port        int
	Interval    time.Duration
	MaxAttempts int
}

// ReapFlags holds flags for the one-off stale backend reap.
type ReapFlags struct {
	Name    string
	Port    int
	PIDFile string
	All     bool // drop the --port marker scope and match by name alone
}

// StatusFlags holds flags for querying a running launcher's debug API.
type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
	JSON       bool
	Usage      bool
}

// InitFlags holds flags for generating a starter configuration.
type InitFlags struct {
	Profile string
	Backend string
	Port    int
	Output  string
	Force   bool
}
