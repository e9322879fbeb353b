package probe

import "fmt"

// Scale is the hypothesis for how a byte encodes battery level.
type Scale int

const (
	// ScaleDirect means the byte is a percentage as-is (1..100).
	ScaleDirect Scale = iota
	// ScaleRatio255 means the byte is a 0..255 scalar mapped to percent.
	ScaleRatio255
)

// BatteryGuess marks one payload byte as a plausible battery level.
// Guesses are hints for a human, not an authority; several bytes of
// one payload can carry a guess each.
type BatteryGuess struct {
	Index   int
	Raw     byte
	Scale   Scale
	Percent float64
}

func (g BatteryGuess) String() string {
	if g.Scale == ScaleDirect {
		return fmt.Sprintf("byte%d=%d%% (0-100 scale)", g.Index, g.Raw)
	}
	return fmt.Sprintf("byte%d=0x%02X (~%.1f%% on 0-255 scale)", g.Index, g.Raw, g.Percent)
}

// EvaluateBattery scans a payload for bytes that could encode battery
// level. Zero bytes are never candidates: a depleted or unset value is
// indistinguishable from absence and would drown the output in false
// positives. Values 1..100 read as a direct percentage; higher values
// read as a 0..255 scalar. Each byte yields at most one guess, direct
// taking precedence, in ascending index order.
func EvaluateBattery(payload []byte) []BatteryGuess {
	var guesses []BatteryGuess
	for i, v := range payload {
		if v == 0 {
			continue
		}
		if v <= 100 {
			guesses = append(guesses, BatteryGuess{
				Index:   i,
				Raw:     v,
				Scale:   ScaleDirect,
				Percent: float64(v),
			})
			continue
		}
		guesses = append(guesses, BatteryGuess{
			Index:   i,
			Raw:     v,
			Scale:   ScaleRatio255,
			Percent: float64(v) * 100.0 / 255.0,
		})
	}
	return guesses
}
