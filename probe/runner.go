package probe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"hidprobe/report"
)

// DefaultReportIDs is the curated list of feature report IDs worth
// probing blind on an unknown mouse, gathered from captured traffic
// across several vendors.
var DefaultReportIDs = []byte{
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06,
	0x10, 0x11, 0x20, 0x21, 0x30, 0x31, 0x3F,
	0x40, 0x41, 0x81, 0x90, 0x91,
}

// State tracks where a campaign is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateOpening
	StatePolling
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StatePolling:
		return "polling"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a probe campaign. Zero values fall back to
// defaults in NewRunner.
type Options struct {
	// ReportIDs to probe each cycle. Defaults to DefaultReportIDs.
	ReportIDs []byte
	// PayloadLen is the number of payload bytes requested per read,
	// excluding the report ID. Defaults to 32.
	PayloadLen int

	// PollInterval is the wait between continuous-diff cycles.
	PollInterval time.Duration

	// SnapshotCount and SnapshotInterval drive the snapshot campaign.
	SnapshotCount    int
	SnapshotInterval time.Duration

	// Commands are candidate initialization wire buffers (report ID
	// first) for the injection strategy.
	Commands [][]byte
	// TargetReportID is read after each candidate command.
	TargetReportID byte
	// SettleDelay is the wait between sending a command and reading,
	// and between read retries.
	SettleDelay time.Duration
	// ReadRetries bounds reads per command. Defaults to 1.
	ReadRetries int
	// ValidateIndex is the payload byte checked for a 1..100 value to
	// classify a command successful.
	ValidateIndex int

	// Verbose logs per-report IO errors instead of skipping silently.
	Verbose bool

	Clock  Clock
	Logger *slog.Logger
}

// ChangeEvent is surfaced by Monitor for every first observation and
// every non-empty delta.
type ChangeEvent struct {
	Cycle    int
	ReportID byte
	First    bool
	Previous []byte
	Payload  []byte
	Delta    report.Delta
	Guesses  []BatteryGuess
	Time     time.Time
}

// Capture is one full pass over the configured report IDs.
type Capture struct {
	Taken   time.Time
	Reports map[byte][]byte
}

// ReportDelta is a per-report-ID change between two snapshots.
type ReportDelta struct {
	ReportID byte
	Old      []byte
	New      []byte
	Delta    report.Delta
}

// AppearedReport is a report ID present only in the later snapshot.
type AppearedReport struct {
	ReportID byte
	Payload  []byte
}

// SnapshotResult compares the first capture against the last. The
// intermediate captures are retained for display but not diffed.
type SnapshotResult struct {
	RunID    string
	Captures []Capture
	Changed  []ReportDelta
	Appeared []AppearedReport
}

// CommandResult classifies one candidate initialization command.
type CommandResult struct {
	Command  []byte
	Attempts int
	OK       bool
	Value    byte
	Payload  []byte
}

// InjectionResult holds the outcome of a command-injection campaign.
type InjectionResult struct {
	RunID     string
	Results   []CommandResult
	Successes int
}

// Runner drives one campaign over one device session. A Runner is
// single-use: it owns the session from open to close and is not safe
// for concurrent use.
type Runner struct {
	open    Opener
	opts    Options
	log     *slog.Logger
	clock   Clock
	runID   uuid.UUID
	state   State
	session Session
	store   *Store
}

// NewRunner builds a campaign runner. The Opener is invoked once, when
// the campaign starts; tests pass an Opener returning a fake Session.
func NewRunner(open Opener, opts Options) *Runner {
	if len(opts.ReportIDs) == 0 {
		opts.ReportIDs = DefaultReportIDs
	}
	if opts.PayloadLen <= 0 {
		opts.PayloadLen = 32
	}
	if opts.ReadRetries < 1 {
		opts.ReadRetries = 1
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	id := uuid.New()
	return &Runner{
		open:  open,
		opts:  opts,
		log:   opts.Logger.With("run", id.String()),
		clock: opts.Clock,
		runID: id,
		state: StateIdle,
		store: NewStore(),
	}
}

// State returns the campaign lifecycle state.
func (r *Runner) State() State {
	return r.state
}

// RunID identifies this campaign in logs and results.
func (r *Runner) RunID() string {
	return r.runID.String()
}

// Store exposes the observation store, mainly for rendering after a
// campaign finished.
func (r *Runner) Store() *Store {
	return r.store
}

func (r *Runner) begin() error {
	if r.state != StateIdle {
		return fmt.Errorf("campaign already ran (state %s)", r.state)
	}
	r.state = StateOpening
	s, err := r.open()
	if err != nil {
		r.state = StateFailed
		return fmt.Errorf("open session: %w", err)
	}
	r.session = s
	r.state = StatePolling
	r.log.Info("session opened", "reports", len(r.opts.ReportIDs), "payloadLen", r.opts.PayloadLen)
	return nil
}

// finish closes the session and settles the terminal state. Closing is
// idempotent so a prior failure path can't double-release the handle.
func (r *Runner) finish(failed bool) {
	if r.session != nil {
		if err := r.session.Close(); err != nil {
			r.log.Warn("close session", "err", err)
		}
	}
	if failed {
		r.state = StateFailed
	} else {
		r.state = StateClosed
	}
	r.log.Info("session released", "state", r.state.String())
}

// readOnce performs a single feature read and classifies the outcome:
// transient misses return (nil, false, nil), anything else unexpected
// is fatal to the campaign.
func (r *Runner) readOnce(rid byte) ([]byte, bool, error) {
	payload, err := r.session.GetFeatureReport(rid, r.opts.PayloadLen)
	if err != nil {
		if IsTransient(err) {
			if r.opts.Verbose {
				r.log.Debug("report unavailable", "rid", fmt.Sprintf("0x%02X", rid), "err", err)
			}
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

// Monitor runs the continuous poll-and-diff strategy until the context
// is cancelled. onEvent receives every first observation and every
// non-empty delta; it must not retain the payload slices across calls.
func (r *Runner) Monitor(ctx context.Context, onEvent func(ChangeEvent)) error {
	if err := r.begin(); err != nil {
		return err
	}

	cycle := 0
	for {
		if ctx.Err() != nil {
			r.finish(false)
			return nil
		}
		cycle++

		for _, rid := range r.opts.ReportIDs {
			payload, ok, err := r.readOnce(rid)
			if err != nil {
				r.finish(true)
				return err
			}
			if !ok {
				continue
			}

			prev, existed := r.store.Record(rid, payload)
			ev := ChangeEvent{
				Cycle:    cycle,
				ReportID: rid,
				Payload:  payload,
				Time:     r.clock.Now(),
			}
			if !existed {
				ev.First = true
				ev.Guesses = EvaluateBattery(payload)
				onEvent(ev)
				continue
			}
			if d := report.Diff(prev, payload); !d.Empty() {
				ev.Previous = prev
				ev.Delta = d
				ev.Guesses = EvaluateBattery(payload)
				onEvent(ev)
			}
		}

		if err := r.clock.Sleep(ctx, r.opts.PollInterval); err != nil {
			r.finish(false)
			return nil
		}
	}
}

// captureAll reads every configured report ID once. Transient misses
// leave the report out of the capture.
func (r *Runner) captureAll() (map[byte][]byte, error) {
	reports := make(map[byte][]byte)
	for _, rid := range r.opts.ReportIDs {
		payload, ok, err := r.readOnce(rid)
		if err != nil {
			return nil, err
		}
		if ok {
			reports[rid] = payload
		}
	}
	return reports, nil
}

// SnapshotCampaign captures SnapshotCount full reads spaced by
// SnapshotInterval, leaving the user free to toggle real-world device
// state between captures, then diffs the first capture against the
// last.
func (r *Runner) SnapshotCampaign(ctx context.Context) (*SnapshotResult, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}

	count := r.opts.SnapshotCount
	if count < 2 {
		count = 2
	}

	res := &SnapshotResult{RunID: r.RunID()}
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := r.clock.Sleep(ctx, r.opts.SnapshotInterval); err != nil {
				r.finish(false)
				return nil, err
			}
		}
		reports, err := r.captureAll()
		if err != nil {
			r.finish(true)
			return nil, err
		}
		res.Captures = append(res.Captures, Capture{Taken: r.clock.Now(), Reports: reports})
		r.log.Info("snapshot captured", "n", i+1, "reports", len(reports))
	}

	first := res.Captures[0].Reports
	last := res.Captures[len(res.Captures)-1].Reports
	for rid := 0; rid <= 0xFF; rid++ {
		b := byte(rid)
		newPayload, inLast := last[b]
		if !inLast {
			continue
		}
		oldPayload, inFirst := first[b]
		if !inFirst {
			res.Appeared = append(res.Appeared, AppearedReport{ReportID: b, Payload: newPayload})
			continue
		}
		if d := report.Diff(oldPayload, newPayload); !d.Empty() {
			res.Changed = append(res.Changed, ReportDelta{
				ReportID: b,
				Old:      oldPayload,
				New:      newPayload,
				Delta:    d,
			})
		}
	}

	r.finish(false)
	return res, nil
}

// InjectCommands sends each candidate initialization command, waits the
// settle delay, then reads the target report up to the retry budget.
// A command is successful when the payload byte at ValidateIndex lands
// in 1..100. Every candidate is attempted regardless of earlier
// successes; only the per-command read loop short-circuits.
func (r *Runner) InjectCommands(ctx context.Context) (*InjectionResult, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}

	res := &InjectionResult{RunID: r.RunID()}
	for i, cmd := range r.opts.Commands {
		if ctx.Err() != nil {
			r.finish(false)
			return res, ctx.Err()
		}

		cr := CommandResult{Command: cmd}
		r.log.Info("sending candidate command", "n", i+1, "bytes", report.FormatBytes(cmd))

		if _, err := r.session.SendFeatureReport(cmd); err != nil {
			if !IsTransient(err) {
				r.finish(true)
				return nil, err
			}
			r.log.Debug("command rejected", "n", i+1, "err", err)
			res.Results = append(res.Results, cr)
			continue
		}

		for attempt := 1; attempt <= r.opts.ReadRetries; attempt++ {
			if err := r.clock.Sleep(ctx, r.opts.SettleDelay); err != nil {
				r.finish(false)
				return res, err
			}
			cr.Attempts = attempt

			payload, ok, err := r.readOnce(r.opts.TargetReportID)
			if err != nil {
				r.finish(true)
				return nil, err
			}
			if !ok || len(payload) <= r.opts.ValidateIndex {
				continue
			}
			if v := payload[r.opts.ValidateIndex]; v >= 1 && v <= 100 {
				cr.OK = true
				cr.Value = v
				cr.Payload = payload
				res.Successes++
				r.log.Info("command validated", "n", i+1, "value", v, "attempts", attempt)
				break
			}
		}

		res.Results = append(res.Results, cr)
	}

	r.finish(false)
	return res, nil
}
