package disco

import (
	"fmt"
	"strings"
)

// SyncMode selects how active lights are grouped into tasks.
type SyncMode int

const (
	// SyncNone runs one task per light, each with its own random stream.
	SyncNone SyncMode = iota
	// SyncTime runs one task for all lights: one cycle duration per cycle,
	// a separate colour draw per light.
	SyncTime
	// SyncColor runs one task for all lights with a single draw per cycle
	// applied identically to every light.
	SyncColor
)

func (m SyncMode) String() string {
	switch m {
	case SyncNone:
		return "none"
	case SyncTime:
		return "time"
	case SyncColor:
		return "color"
	default:
		return fmt.Sprintf("SyncMode(%d)", int(m))
	}
}

// Strategy returns the sampling strategy tasks use in this mode.
func (m SyncMode) Strategy() Strategy {
	if m == SyncColor {
		return StrategyShared
	}
	return StrategyPerTarget
}

// ParseSyncMode accepts "none", "time" and "color" (case-insensitive).
func ParseSyncMode(s string) (SyncMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SyncNone, nil
	case "time":
		return SyncTime, nil
	case "color", "colour", "time_and_color":
		return SyncColor, nil
	default:
		return SyncNone, fmt.Errorf("unknown sync mode %q", s)
	}
}

func (m SyncMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *SyncMode) UnmarshalText(text []byte) error {
	parsed, err := ParseSyncMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
