// hidprobe is a diagnostic toolkit for reverse-engineering vendor HID
// battery protocols: it polls, snapshots, and probes raw feature
// reports, diffing observations over time and flagging bytes that look
// like a battery level.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sstallion/go-hid"

	"hidprobe/internal/config"
	"hidprobe/probe"
	"hidprobe/report"
)

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "", "Path to config file")
	mode := flag.String("mode", "list", "Mode: list, monitor, snapshot, inject, battery")
	path := flag.String("path", "", "Raw HID path (overrides VID/PID)")
	vid := flag.String("vid", "", "USB vendor ID (decimal or hex, e.g. 0x3151)")
	pid := flag.String("pid", "", "USB product ID (decimal or hex)")
	verbose := flag.Bool("verbose", false, "Report per-report-ID read errors")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if *verbose {
		cfg.Probe.Verbose = true
	}

	setupLogger(cfg.Log)

	if err := hid.Init(); err != nil {
		slog.Error("HID init failed", "err", err)
		return 1
	}
	defer hid.Exit()

	if *mode == "list" {
		listDevices()
		fmt.Println("\nProvide -vid/-pid or -path plus a mode to probe a specific device.")
		return 0
	}

	identity, err := resolveIdentity(cfg, *path, *vid, *pid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opener := func() (probe.Session, error) {
		s, err := probe.Open(identity)
		if err != nil {
			return nil, err
		}
		slog.Info("device opened", "path", s.Path())
		return s, nil
	}

	switch *mode {
	case "monitor":
		return runMonitor(ctx, opener, cfg)
	case "snapshot":
		return runSnapshot(ctx, opener, cfg)
	case "inject":
		return runInject(ctx, opener, cfg)
	case "battery":
		return runBattery(ctx, opener, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Unknown mode %q\n", *mode)
		return 2
	}
}

// resolveIdentity merges CLI overrides into the configured device
// identity. The path is an opaque token, passed through untouched.
func resolveIdentity(cfg *config.Config, path, vid, pid string) (probe.Identity, error) {
	id := probe.Identity{
		Path:      cfg.Device.Path,
		VendorID:  cfg.Device.VendorID,
		ProductID: cfg.Device.ProductID,
		Interface: cfg.Device.Interface,
	}
	if path != "" {
		id.Path = path
	}
	if vid != "" {
		v, err := config.ParseUint16(vid)
		if err != nil {
			return id, fmt.Errorf("bad -vid: %w", err)
		}
		id.VendorID = v
		id.Path = ""
	}
	if pid != "" {
		p, err := config.ParseUint16(pid)
		if err != nil {
			return id, fmt.Errorf("bad -pid: %w", err)
		}
		id.ProductID = p
		if vid != "" {
			id.Path = ""
		}
	}
	return id, nil
}

func runnerOptions(cfg *config.Config) probe.Options {
	return probe.Options{
		ReportIDs:        cfg.Probe.ReportIDs,
		PayloadLen:       cfg.Probe.PayloadLength,
		PollInterval:     cfg.Probe.PollInterval,
		SnapshotCount:    cfg.Snapshot.Count,
		SnapshotInterval: cfg.Snapshot.Interval,
		Commands:         cfg.Inject.Commands,
		TargetReportID:   cfg.Inject.TargetReport,
		SettleDelay:      cfg.Inject.SettleDelay,
		ReadRetries:      cfg.Inject.Retries,
		ValidateIndex:    cfg.Inject.ValidateIndex,
		Verbose:          cfg.Probe.Verbose,
	}
}

func runMonitor(ctx context.Context, opener probe.Opener, cfg *config.Config) int {
	r := probe.NewRunner(opener, runnerOptions(cfg))
	fmt.Printf("Polling every %v; press Ctrl+C to stop.\n", cfg.Probe.PollInterval)

	err := r.Monitor(ctx, func(ev probe.ChangeEvent) {
		if ev.First {
			fmt.Printf("[cycle %d] report 0x%02X: %s\n", ev.Cycle, ev.ReportID, report.FormatBytes(ev.Payload))
		} else {
			fmt.Printf("[cycle %d] report 0x%02X changed:\n", ev.Cycle, ev.ReportID)
			fmt.Printf("  old: %s\n", report.FormatBytes(ev.Previous))
			fmt.Printf("  new: %s\n", report.FormatBytes(ev.Payload))
			for _, c := range ev.Delta {
				fmt.Printf("    %s\n", c)
			}
		}
		printGuesses(ev.Guesses)
	})
	if err != nil {
		slog.Error("monitor campaign failed", "err", err)
		return 1
	}
	fmt.Println("\nStopped.")
	return 0
}

func runSnapshot(ctx context.Context, opener probe.Opener, cfg *config.Config) int {
	r := probe.NewRunner(opener, runnerOptions(cfg))
	fmt.Printf("Capturing %d snapshots %v apart; change device state between captures.\n",
		cfg.Snapshot.Count, cfg.Snapshot.Interval)

	res, err := r.SnapshotCampaign(ctx)
	if err != nil {
		slog.Error("snapshot campaign failed", "err", err)
		return 1
	}

	for i, snap := range res.Captures {
		fmt.Printf("\nSnapshot %d (%s):\n", i+1, snap.Taken.Format("15:04:05"))
		for rid := 0; rid <= 0xFF; rid++ {
			if payload, ok := snap.Reports[byte(rid)]; ok {
				fmt.Printf("  report 0x%02X: %s\n", rid, report.FormatBytes(payload))
			}
		}
	}

	fmt.Println("\nDiff (first vs last snapshot):")
	if len(res.Changed) == 0 && len(res.Appeared) == 0 {
		fmt.Println("  no changes")
		return 0
	}
	for _, rd := range res.Changed {
		fmt.Printf("  report 0x%02X changed:\n", rd.ReportID)
		fmt.Printf("    old: %s\n", report.FormatBytes(rd.Old))
		fmt.Printf("    new: %s\n", report.FormatBytes(rd.New))
		for _, c := range rd.Delta {
			fmt.Printf("      %s\n", c)
		}
		printGuesses(probe.EvaluateBattery(rd.New))
	}
	for _, ap := range res.Appeared {
		fmt.Printf("  report 0x%02X newly appeared: %s\n", ap.ReportID, report.FormatBytes(ap.Payload))
		printGuesses(probe.EvaluateBattery(ap.Payload))
	}
	return 0
}

func runInject(ctx context.Context, opener probe.Opener, cfg *config.Config) int {
	r := probe.NewRunner(opener, runnerOptions(cfg))
	fmt.Printf("Testing %d candidate commands against report 0x%02X.\n",
		len(cfg.Inject.Commands), cfg.Inject.TargetReport)

	res, err := r.InjectCommands(ctx)
	if err != nil {
		slog.Error("injection campaign failed", "err", err)
		return 1
	}

	for i, cr := range res.Results {
		if cr.OK {
			fmt.Printf("[%2d] OK   %s -> value %d after %d attempt(s)\n",
				i+1, report.FormatBytes(cr.Command), cr.Value, cr.Attempts)
			fmt.Printf("     payload: %s\n", report.FormatBytes(cr.Payload))
		} else {
			fmt.Printf("[%2d] FAIL %s\n", i+1, report.FormatBytes(cr.Command))
		}
	}
	fmt.Printf("\n%d of %d commands produced a plausible battery byte.\n",
		res.Successes, len(res.Results))
	if res.Successes == 0 {
		return 1
	}
	return 0
}

func runBattery(ctx context.Context, opener probe.Opener, cfg *config.Config) int {
	s, err := opener()
	if err != nil {
		slog.Error("open device", "err", err)
		return 1
	}
	defer s.Close()

	lvl, err := probe.ReadBattery(ctx, s, probe.SystemClock(), cfg.Inject.Retries, cfg.Inject.SettleDelay)
	if err != nil {
		slog.Error("battery read failed", "err", err)
		return 1
	}
	fmt.Println(lvl)
	return 0
}

func printGuesses(guesses []probe.BatteryGuess) {
	if len(guesses) == 0 {
		return
	}
	fmt.Print("    heuristics: ")
	for i, g := range guesses {
		if i > 0 {
			fmt.Print("; ")
		}
		fmt.Print(g)
	}
	fmt.Println()
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file, falling back to stderr: %v\n", err)
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
