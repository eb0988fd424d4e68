// Command controlplane runs the Sampler, Retention Store, Alert Engine,
// Validator, Recovery Engine, and Failover Engine as one process, exposing
// the CLI surface spec.md §6 describes.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/R3E-Network/service_layer/applications/controlplane"
	"github.com/R3E-Network/service_layer/infrastructure/logging"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

// run returns the process exit code: 0 success, non-zero on fatal config
// or I/O errors, matching spec.md §6's exit-code contract.
func run(ctx context.Context, args []string) int {
	root := flag.NewFlagSet("controlplane", flag.ContinueOnError)
	root.SetOutput(io.Discard)
	configPath := root.String("config", "", "Path to a YAML configuration file")
	if err := root.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "controlplane: %v\n", err)
		return 2
	}

	remaining := root.Args()
	if len(remaining) == 0 {
		fmt.Fprintln(os.Stderr, "controlplane: no command specified")
		printUsage(os.Stderr)
		return 2
	}

	cfg, err := controlplane.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "controlplane: %v\n", err)
		return 2
	}

	log := logging.New(cfg.ServiceName, cfg.Logging.Level, cfg.Logging.Format)

	cp, err := controlplane.New(cfg, nil, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "controlplane: %v\n", err)
		return 2
	}

	command, rest := remaining[0], remaining[1:]
	switch command {
	case "start":
		return cmdStart(ctx, cp, log)
	case "status":
		return cmdStatus(ctx, cp)
	case "test-alerts":
		return cmdTestAlerts(ctx, cp)
	case "trigger-alert":
		return cmdTriggerAlert(cp, rest)
	case "maintenance":
		return cmdMaintenance(cp)
	case "export":
		return cmdExport(cp, rest)
	case "failover":
		return cmdFailover(ctx, cp, rest)
	case "components":
		return cmdComponents(cp)
	case "rules":
		return cmdRules(cp)
	default:
		fmt.Fprintf(os.Stderr, "controlplane: unknown command %q\n", command)
		printUsage(os.Stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `usage: controlplane [-config path] <command> [args]

commands:
  start                        start sampling, retention, and alerting until a termination signal
  status                       print a health summary; exit 0 healthy, 1 warning, 2 critical
  test-alerts                  send a synthetic alert through every configured channel
  trigger-alert <severity>     emit a synthetic alert at the given severity
  maintenance                  force a compression + eviction pass
  export <days> <path>         write a JSON export of the last N days of snapshots
  failover <component> <reason> force a manual failover of a component
  components                   list configured recovery components
  rules                        list configured failover rule ids`)
}

// cmdStart begins every component and blocks until SIGINT/SIGTERM, then
// stops within a bounded deadline, matching the teacher's appserver
// graceful-shutdown idiom.
func cmdStart(ctx context.Context, cp *controlplane.ControlPlane, log *logging.Logger) int {
	if err := cp.Start(ctx); err != nil {
		log.WithError(err).Error("controlplane: start failed")
		return 2
	}
	log.Info("controlplane: started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := cp.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("controlplane: shutdown failed")
		return 2
	}
	log.Info("controlplane: stopped")
	return 0
}

func cmdStatus(ctx context.Context, cp *controlplane.ControlPlane) int {
	report := cp.Status(ctx)
	fmt.Printf("state: %s\n", report.State)
	for name, state := range report.Components {
		fmt.Printf("  %s: %s\n", name, state)
	}
	for _, reason := range report.Reasons {
		fmt.Printf("  reason: %s\n", reason)
	}
	switch report.State {
	case controlplane.HealthHealthy:
		return 0
	case controlplane.HealthWarning:
		return 1
	default:
		return 2
	}
}

func cmdTestAlerts(ctx context.Context, cp *controlplane.ControlPlane) int {
	results := cp.TestChannels(ctx)
	allPass := true
	for name, ok := range results {
		status := "pass"
		if !ok {
			status = "fail"
			allPass = false
		}
		fmt.Printf("%s: %s\n", name, status)
	}
	if !allPass {
		return 1
	}
	return 0
}

func cmdTriggerAlert(cp *controlplane.ControlPlane, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "controlplane: trigger-alert requires exactly one severity argument")
		return 2
	}
	alert := cp.TriggerAlert(severityFromString(args[0]))
	fmt.Printf("triggered alert %s (%s)\n", alert.ID, alert.Severity)
	return 0
}

func cmdMaintenance(cp *controlplane.ControlPlane) int {
	compressed, evicted, totalBytes, err := cp.Maintenance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "controlplane: maintenance failed: %v\n", err)
		return 2
	}
	fmt.Printf("compressed=%d evicted=%d total_bytes=%d\n", compressed, evicted, totalBytes)
	return 0
}

func cmdExport(cp *controlplane.ControlPlane, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "controlplane: export requires <days> <path>")
		return 2
	}
	days, err := parsePositiveInt(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "controlplane: invalid days: %v\n", err)
		return 2
	}
	snapshots, err := cp.Export(days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "controlplane: export failed: %v\n", err)
		return 2
	}
	if err := writeJSONFile(args[1], snapshots); err != nil {
		fmt.Fprintf(os.Stderr, "controlplane: export failed: %v\n", err)
		return 2
	}
	fmt.Printf("exported %d snapshots to %s\n", len(snapshots), args[1])
	return 0
}

func cmdFailover(ctx context.Context, cp *controlplane.ControlPlane, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "controlplane: failover requires <component> <reason>")
		return 2
	}
	result, err := cp.Failover(ctx, args[0], args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "controlplane: failover failed: %v\n", err)
		return 2
	}
	fmt.Printf("failover %s: succeeded=%v\n", result.Target, result.Succeeded)
	if !result.Succeeded {
		return 1
	}
	return 0
}

func cmdComponents(cp *controlplane.ControlPlane) int {
	for _, name := range cp.Components() {
		fmt.Println(name)
	}
	return 0
}

func cmdRules(cp *controlplane.ControlPlane) int {
	for _, id := range cp.Rules() {
		fmt.Println(id)
	}
	return 0
}

func parsePositiveInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
