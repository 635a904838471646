package disco

import (
	"errors"
	"fmt"
)

// Timing domain, in ticks.
const (
	MinTicks = 1
	MaxTicks = 100
)

var (
	ErrInvalidRange   = errors.New("range start exceeds end")
	ErrUnknownChannel = errors.New("unknown channel")
)

// Channel names one editable range of a Config.
type Channel string

const (
	ChannelRed   Channel = "red"
	ChannelGreen Channel = "green"
	ChannelBlue  Channel = "blue"
	ChannelTime  Channel = "time"
)

// Channels lists every editable channel in display order.
var Channels = []Channel{ChannelRed, ChannelGreen, ChannelBlue, ChannelTime}

// Config holds the disco parameters every running task samples from.
// It is a plain value: copying it yields an independent snapshot.
type Config struct {
	Red   Range[uint8]  `json:"red" yaml:"red"`
	Green Range[uint8]  `json:"green" yaml:"green"`
	Blue  Range[uint8]  `json:"blue" yaml:"blue"`
	Time  Range[uint16] `json:"time" yaml:"time"`
	Fade  bool          `json:"fade" yaml:"fade"`
}

// DefaultConfig returns full colour ranges, 1-10 ticks and no fade.
func DefaultConfig() Config {
	return Config{
		Red:   Range[uint8]{Start: 0, End: 255},
		Green: Range[uint8]{Start: 0, End: 255},
		Blue:  Range[uint8]{Start: 0, End: 255},
		Time:  Range[uint16]{Start: 1, End: 10},
	}
}

// Validate checks range ordering and the timing lower bound.
func (c Config) Validate() error {
	for _, ch := range []struct {
		name       Channel
		start, end int
	}{
		{ChannelRed, int(c.Red.Start), int(c.Red.End)},
		{ChannelGreen, int(c.Green.Start), int(c.Green.End)},
		{ChannelBlue, int(c.Blue.Start), int(c.Blue.End)},
		{ChannelTime, int(c.Time.Start), int(c.Time.End)},
	} {
		if ch.start > ch.end {
			return fmt.Errorf("%s [%d, %d): %w", ch.name, ch.start, ch.end, ErrInvalidRange)
		}
	}
	if c.Time.Start < MinTicks {
		return fmt.Errorf("time must start at %d tick or more, got %d", MinTicks, c.Time.Start)
	}
	return nil
}

// SetMin moves a channel's lower bound, clamping v into the channel domain.
func (c *Config) SetMin(ch Channel, v int) error {
	switch ch {
	case ChannelRed:
		c.Red.SetStart(clampByte(v))
	case ChannelGreen:
		c.Green.SetStart(clampByte(v))
	case ChannelBlue:
		c.Blue.SetStart(clampByte(v))
	case ChannelTime:
		c.Time.SetStart(clampTicks(v))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	return nil
}

// SetMax moves a channel's upper bound, clamping v into the channel domain.
func (c *Config) SetMax(ch Channel, v int) error {
	switch ch {
	case ChannelRed:
		c.Red.SetEnd(clampByte(v))
	case ChannelGreen:
		c.Green.SetEnd(clampByte(v))
	case ChannelBlue:
		c.Blue.SetEnd(clampByte(v))
	case ChannelTime:
		c.Time.SetEnd(clampTicks(v))
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	return nil
}

func clampByte(v int) uint8 {
	return uint8(min(max(v, 0), 255))
}

func clampTicks(v int) uint16 {
	return uint16(min(max(v, MinTicks), MaxTicks))
}
