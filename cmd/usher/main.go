package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(command{stdout: os.Stdout})
	if err := root.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot assembles the CLI. The bare command launches the
// application; the subcommands are operational tools around it.
func buildRoot(c command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	launchFlags := &LaunchFlags{}
	probeFlags := &ProbeFlags{}
	reapFlags := &ReapFlags{}
	statusFlags := &StatusFlags{}
	initFlags := &InitFlags{}

	root := createRootCommand(c, globalFlags, launchFlags)
	root.AddCommand(
		createProbeCommand(c, globalFlags, probeFlags),
		createReapCommand(c, globalFlags, reapFlags),
		createStatusCommand(c, globalFlags, statusFlags),
		createInitCommand(c, initFlags),
	)
	return root
}

func createRootCommand(c command, globalFlags *GlobalFlags, launchFlags *LaunchFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "usher",
		Short: "Desktop application launcher and backend supervisor",
		Long: `Usher starts the OpenAutoNote desktop bundle: it clears stale backend
processes, spawns the backend API server, relays its output, waits until
the backend answers HTTP on its port, and only then brings up the main
window. Run it with no arguments to launch.

Examples:
  usher                                  # launch with usher.toml discovery
  usher --config /etc/usher.toml         # launch with an explicit config
  usher --headless --port 0              # no UI, ephemeral backend port
  usher probe --port 8964                # one-off readiness check
  usher reap                             # kill stale backends and exit`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			launchFlags.HeadlessSet = cmd.Flags().Changed("headless")
			launchFlags.PortSet = cmd.Flags().Changed("port")
			return c.Launch(globalFlags, launchFlags)
		},
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file (optional)")

	root.Flags().BoolVar(&launchFlags.Headless, "headless", false, "run without the fullscreen shell")
	root.Flags().IntVar(&launchFlags.Port, "port", 0, "backend port override (0 picks an ephemeral port)")
	root.Flags().StringVar(&launchFlags.Backend, "backend", "", "backend executable name override")
	root.Flags().StringVar(&launchFlags.Path, "backend-path", "", "explicit backend executable path")
	root.Flags().StringVar(&launchFlags.Secret, "secret", "", "value passed to the backend as --secret")

	return root
}

func createProbeCommand(c command, globalFlags *GlobalFlags, probeFlags *ProbeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe a backend port for readiness",
		Long: `Probe sends the launcher's readiness request to a port until it answers
HTTP 200 or the attempt budget is spent. Exit status 0 means ready.

Examples:
  usher probe                       # probe the configured backend port
  usher probe --port 8964 --max-attempts 10
  usher probe --host 127.0.0.1 --port 8080 --interval 250ms`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Probe(globalFlags, probeFlags)
		},
	}

	cmd.Flags().StringVar(&probeFlags.Host, "host", "127.0.0.1", "host to probe")
	cmd.Flags().IntVar(&probeFlags.Port, "port", 0, "port to probe (default: configured backend port)")
	cmd.Flags().DurationVar(&probeFlags.Interval, "interval", 0, "pause between attempts (default: configured)")
	cmd.Flags().IntVar(&probeFlags.MaxAttempts, "max-attempts", 0, "attempt budget (default: configured)")

	return cmd
}

func createReapCommand(c command, globalFlags *GlobalFlags, reapFlags *ReapFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Terminate stale backend processes",
		Long: `Reap finds backend processes left behind by a previous run, by pidfile
first and then by executable name scoped to the --port marker, and
terminates them. It never touches the current process or its parent.

Examples:
  usher reap                        # reap using the configured backend
  usher reap --name api-server --port 8964
  usher reap --all                  # match by name alone, any port`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Reap(globalFlags, reapFlags)
		},
	}

	cmd.Flags().StringVar(&reapFlags.Name, "name", "", "backend executable name (default: configured)")
	cmd.Flags().IntVar(&reapFlags.Port, "port", 0, "port marker to scope matches (default: configured)")
	cmd.Flags().StringVar(&reapFlags.PIDFile, "pidfile", "", "pidfile from a previous run")
	cmd.Flags().BoolVar(&reapFlags.All, "all", false, "match by name alone, ignoring the port marker")

	return cmd
}

func createStatusCommand(c command, globalFlags *GlobalFlags, statusFlags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running launcher's debug API",
		Long: `Status connects to the debug API of a running launcher and reports the
launch state. The debug API must be enabled via debug.listen.

Examples:
  usher status
  usher status --json
  usher status --usage              # backend CPU/memory samples
  usher status --api-url http://127.0.0.1:7878`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(globalFlags, statusFlags)
		},
	}

	cmd.Flags().StringVar(&statusFlags.APIUrl, "api-url", "", "debug API base URL (default: from config)")
	cmd.Flags().DurationVar(&statusFlags.APITimeout, "api-timeout", 5*time.Second, "request timeout")
	cmd.Flags().BoolVar(&statusFlags.JSON, "json", false, "print the raw status JSON")
	cmd.Flags().BoolVar(&statusFlags.Usage, "usage", false, "print backend resource usage instead")

	return cmd
}

func createInitCommand(c command, initFlags *InitFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a starter usher.toml",
		Long: `Init renders a starter configuration for a profile and writes it to a
file or stdout.

Examples:
  usher init --profile desktop -o usher.toml
  usher init --profile dev                   # print to stdout
  usher init --profile headless --backend notes-api -o usher.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Init(initFlags)
		},
	}

	cmd.Flags().StringVar(&initFlags.Profile, "profile", "desktop", "configuration profile: desktop, dev, headless")
	cmd.Flags().StringVar(&initFlags.Backend, "backend", "", "backend executable name")
	cmd.Flags().IntVar(&initFlags.Port, "port", 0, "fixed backend port")
	cmd.Flags().StringVarP(&initFlags.Output, "output", "o", "", "output path (default: stdout)")
	cmd.Flags().BoolVar(&initFlags.Force, "force", false, "overwrite an existing file")

	return cmd
}
