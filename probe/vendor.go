package probe

import (
	"context"
	"fmt"
	"time"

	"hidprobe/report"
)

// Reference protocol for the Angry Miao mouse this toolkit was
// reverse-engineered against. The init buffer and report ID were
// captured from the vendor driver with USBPcap/Wireshark; the battery
// level tracks the third payload byte of report 0xF7.
const (
	AngryMiaoVendorID  uint16 = 0x3151
	AngryMiaoProductID uint16 = 0x5007

	// BatteryReportID is the feature report carrying the battery byte.
	BatteryReportID byte = 0xF7
	// BatteryPayloadLen is the payload size of the battery report
	// (65-byte wire buffer including the report ID).
	BatteryPayloadLen = 64
	// BatteryByteIndex is the payload offset of the battery level.
	BatteryByteIndex = 2
)

// BatteryInitReport builds the initialization wire buffer the vendor
// driver emits before the battery report becomes readable: report ID 0
// with 0xF7 as the first payload byte, zero-padded to 64 bytes.
func BatteryInitReport() []byte {
	payload := make([]byte, BatteryPayloadLen)
	payload[0] = BatteryReportID
	return report.Encode(0x00, payload)
}

// ReadBattery performs the reference read sequence: send the init
// report, wait the settle delay, read report 0xF7, and extract the
// battery byte. The whole sequence is retried up to retries times;
// transient misses within the budget are swallowed, exhaustion is an
// error.
func ReadBattery(ctx context.Context, s Session, clk Clock, retries int, settle time.Duration) (int, error) {
	if clk == nil {
		clk = SystemClock()
	}
	if retries < 1 {
		retries = 1
	}

	init := BatteryInitReport()
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		if _, err := s.SendFeatureReport(init); err != nil {
			if !IsTransient(err) {
				return 0, err
			}
			lastErr = err
			continue
		}

		if err := clk.Sleep(ctx, settle); err != nil {
			return 0, err
		}

		payload, err := s.GetFeatureReport(BatteryReportID, BatteryPayloadLen)
		if err != nil {
			if !IsTransient(err) {
				return 0, err
			}
			lastErr = err
			continue
		}
		if len(payload) <= BatteryByteIndex {
			lastErr = fmt.Errorf("report 0x%02X: %d payload byte(s): %w", BatteryReportID, len(payload), ErrShortRead)
			continue
		}
		return int(payload[BatteryByteIndex]), nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("battery read failed after %d attempt(s)", retries)
	}
	return 0, lastErr
}
