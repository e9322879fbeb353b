package probe_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hidprobe/probe"
	"hidprobe/report"
)

// fakeSession scripts feature-report behavior per read so campaigns
// run without hardware.
type fakeSession struct {
	get        func(rid byte, payloadLen int) ([]byte, error)
	sent       [][]byte
	sendErr    error
	closeCount int
}

func (f *fakeSession) SendFeatureReport(buf []byte) (int, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.sent = append(f.sent, cp)
	return len(buf), nil
}

func (f *fakeSession) GetFeatureReport(rid byte, payloadLen int) ([]byte, error) {
	return f.get(rid, payloadLen)
}

func (f *fakeSession) Close() error {
	f.closeCount++
	return nil
}

func opener(s probe.Session) probe.Opener {
	return func() (probe.Session, error) { return s, nil }
}

func unsupported(rid byte) error {
	return &probe.IOError{Op: "get", ReportID: rid, Err: errors.New("incorrect function")}
}

// fakeClock advances instantly and can abort the campaign after a set
// number of sleeps.
type fakeClock struct {
	now     time.Time
	sleeps  int
	onSleep func(n int) error
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps++
	c.now = c.now.Add(d)
	if c.onSleep != nil {
		return c.onSleep(c.sleeps)
	}
	return nil
}

func TestMonitorReportsFirstObservationAndDelta(t *testing.T) {
	cycle := 0
	fs := &fakeSession{}
	fs.get = func(rid byte, payloadLen int) ([]byte, error) {
		if rid != 0x3F {
			return nil, unsupported(rid)
		}
		if cycle == 0 {
			return []byte{0, 0, 0, 0}, nil
		}
		return []byte{0, 0, 0, 55}, nil
	}

	clk := &fakeClock{onSleep: func(n int) error {
		cycle++
		if n >= 2 {
			return context.Canceled
		}
		return nil
	}}

	r := probe.NewRunner(opener(fs), probe.Options{
		ReportIDs:  []byte{0x01, 0x3F},
		PayloadLen: 4,
		Clock:      clk,
	})

	var events []probe.ChangeEvent
	err := r.Monitor(context.Background(), func(ev probe.ChangeEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	require.Len(t, events, 2)

	first := events[0]
	assert.True(t, first.First)
	assert.Equal(t, byte(0x3F), first.ReportID)
	assert.Equal(t, []byte{0, 0, 0, 0}, first.Payload)
	assert.Empty(t, first.Delta)

	change := events[1]
	assert.False(t, change.First)
	assert.Equal(t, byte(0x3F), change.ReportID)
	assert.Equal(t, []byte{0, 0, 0, 0}, change.Previous)
	assert.Equal(t, []byte{0, 0, 0, 55}, change.Payload)
	require.Len(t, change.Delta, 1)
	assert.Equal(t, report.Change{Index: 3, Old: 0, New: 55}, change.Delta[0])
	require.NotEmpty(t, change.Guesses)
	assert.Equal(t, probe.ScaleDirect, change.Guesses[0].Scale)

	assert.Equal(t, probe.StateClosed, r.State())
	assert.Equal(t, 1, fs.closeCount)
}

func TestMonitorQuietCycleEmitsNothing(t *testing.T) {
	fs := &fakeSession{}
	fs.get = func(rid byte, payloadLen int) ([]byte, error) {
		return []byte{1, 2, 3}, nil
	}

	clk := &fakeClock{onSleep: func(n int) error {
		if n >= 3 {
			return context.Canceled
		}
		return nil
	}}

	r := probe.NewRunner(opener(fs), probe.Options{
		ReportIDs: []byte{0x10},
		Clock:     clk,
	})

	events := 0
	err := r.Monitor(context.Background(), func(probe.ChangeEvent) { events++ })
	require.NoError(t, err)
	assert.Equal(t, 1, events, "only the first observation should surface when nothing changes")
}

func TestSnapshotCampaignFirstVsLast(t *testing.T) {
	capture := 0
	fs := &fakeSession{}
	fs.get = func(rid byte, payloadLen int) ([]byte, error) {
		switch {
		case rid == 0x3F && capture == 0:
			return []byte{0, 0, 0, 0}, nil
		case rid == 0x3F:
			return []byte{0, 0, 0, 55}, nil
		case rid == 0x40 && capture > 0:
			return []byte{1}, nil
		default:
			return nil, unsupported(rid)
		}
	}

	clk := &fakeClock{onSleep: func(int) error {
		capture++
		return nil
	}}

	r := probe.NewRunner(opener(fs), probe.Options{
		ReportIDs:        []byte{0x3F, 0x40},
		PayloadLen:       4,
		SnapshotCount:    2,
		SnapshotInterval: time.Second,
		Clock:            clk,
	})

	res, err := r.SnapshotCampaign(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Captures, 2)

	require.Len(t, res.Changed, 1)
	assert.Equal(t, byte(0x3F), res.Changed[0].ReportID)
	require.Len(t, res.Changed[0].Delta, 1)
	assert.Equal(t, report.Change{Index: 3, Old: 0, New: 55}, res.Changed[0].Delta[0])

	require.Len(t, res.Appeared, 1)
	assert.Equal(t, byte(0x40), res.Appeared[0].ReportID)
	assert.Equal(t, []byte{1}, res.Appeared[0].Payload)

	assert.Equal(t, probe.StateClosed, r.State())
	assert.Equal(t, 1, fs.closeCount)
}

func TestSnapshotCampaignNoChanges(t *testing.T) {
	fs := &fakeSession{}
	fs.get = func(rid byte, payloadLen int) ([]byte, error) {
		return []byte{7, 7}, nil
	}

	r := probe.NewRunner(opener(fs), probe.Options{
		ReportIDs:     []byte{0x01},
		SnapshotCount: 3,
		Clock:         &fakeClock{},
	})

	res, err := r.SnapshotCampaign(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Captures, 3)
	assert.Empty(t, res.Changed)
	assert.Empty(t, res.Appeared)
}

func TestInjectCommandsOnlySecondSucceeds(t *testing.T) {
	commands := [][]byte{
		{0x01, 0x00, 0x00},
		{0x3F, 0x01, 0x00},
		{0x10, 0x01, 0x00},
	}

	fs := &fakeSession{}
	fs.get = func(rid byte, payloadLen int) ([]byte, error) {
		if rid != 0x3F {
			return nil, unsupported(rid)
		}
		if len(fs.sent) == 2 {
			// The second command just went out; the device answers.
			return []byte{0, 0, 42, 0}, nil
		}
		return []byte{0, 0, 0, 0}, nil
	}

	r := probe.NewRunner(opener(fs), probe.Options{
		ReportIDs:      []byte{0x3F},
		PayloadLen:     4,
		Commands:       commands,
		TargetReportID: 0x3F,
		ReadRetries:    2,
		ValidateIndex:  2,
		Clock:          &fakeClock{},
	})

	res, err := r.InjectCommands(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Results, 3, "every candidate must be attempted")
	assert.Equal(t, 1, res.Successes)

	assert.False(t, res.Results[0].OK)
	assert.Equal(t, 2, res.Results[0].Attempts, "failed command must exhaust its retry budget")

	ok := res.Results[1]
	assert.True(t, ok.OK)
	assert.Equal(t, byte(42), ok.Value)
	assert.Equal(t, 1, ok.Attempts, "successful command short-circuits its retries")
	assert.Equal(t, commands[1], ok.Command)

	assert.False(t, res.Results[2].OK)
	assert.Equal(t, 2, res.Results[2].Attempts)

	require.Len(t, fs.sent, 3)
	assert.Equal(t, probe.StateClosed, r.State())
}

func TestInjectCommandsSendRejected(t *testing.T) {
	fs := &fakeSession{sendErr: &probe.IOError{Op: "send", ReportID: 0x01, Err: errors.New("access denied")}}
	fs.get = func(rid byte, payloadLen int) ([]byte, error) {
		return nil, unsupported(rid)
	}

	r := probe.NewRunner(opener(fs), probe.Options{
		Commands:       [][]byte{{0x01, 0x00}},
		TargetReportID: 0x3F,
		Clock:          &fakeClock{},
	})

	res, err := r.InjectCommands(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.False(t, res.Results[0].OK)
	assert.Zero(t, res.Successes)
}

func TestRunnerOpenFailure(t *testing.T) {
	open := func() (probe.Session, error) {
		return nil, probe.ErrDeviceNotFound
	}

	r := probe.NewRunner(open, probe.Options{Clock: &fakeClock{}})
	err := r.Monitor(context.Background(), func(probe.ChangeEvent) {})
	require.ErrorIs(t, err, probe.ErrDeviceNotFound)
	assert.Equal(t, probe.StateFailed, r.State())
}

func TestRunnerIsSingleUse(t *testing.T) {
	fs := &fakeSession{}
	fs.get = func(rid byte, payloadLen int) ([]byte, error) {
		return nil, unsupported(rid)
	}

	r := probe.NewRunner(opener(fs), probe.Options{
		ReportIDs:     []byte{0x01},
		SnapshotCount: 2,
		Clock:         &fakeClock{},
	})

	_, err := r.SnapshotCampaign(context.Background())
	require.NoError(t, err)

	_, err = r.SnapshotCampaign(context.Background())
	require.Error(t, err)
}

func TestMonitorFatalOnUnexpectedError(t *testing.T) {
	fs := &fakeSession{}
	fs.get = func(rid byte, payloadLen int) ([]byte, error) {
		return nil, probe.ErrSessionClosed
	}

	r := probe.NewRunner(opener(fs), probe.Options{
		ReportIDs: []byte{0x01},
		Clock:     &fakeClock{},
	})

	err := r.Monitor(context.Background(), func(probe.ChangeEvent) {})
	require.ErrorIs(t, err, probe.ErrSessionClosed)
	assert.Equal(t, probe.StateFailed, r.State())
	assert.Equal(t, 1, fs.closeCount, "session is still released on failure")
}

func TestMonitorStopsOnCancelledContext(t *testing.T) {
	fs := &fakeSession{}
	fs.get = func(rid byte, payloadLen int) ([]byte, error) {
		return []byte{1}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := probe.NewRunner(opener(fs), probe.Options{
		ReportIDs: []byte{0x01},
		Clock:     &fakeClock{},
	})

	err := r.Monitor(ctx, func(probe.ChangeEvent) {
		t.Fatal("no events expected with a cancelled context")
	})
	require.NoError(t, err)
	assert.Equal(t, probe.StateClosed, r.State())
}

func TestIsTransient(t *testing.T) {
	assert.True(t, probe.IsTransient(unsupported(0x10)))
	assert.True(t, probe.IsTransient(probe.ErrShortRead))
	assert.False(t, probe.IsTransient(probe.ErrSessionClosed))
	assert.False(t, probe.IsTransient(probe.ErrDeviceNotFound))
	assert.False(t, probe.IsTransient(errors.New("boom")))
}
