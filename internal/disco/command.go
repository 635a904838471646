package disco

import (
	"fmt"
	"time"
)

// RGB is an 8-bit per channel colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Command is one desired light state. Transition and Delay are in ticks.
type Command struct {
	On         bool   `json:"on"`
	Color      RGB    `json:"color"`
	Transition uint16 `json:"transition"`
	Delay      uint16 `json:"delay"`
}

// DelayDuration converts the cycle delay to wall time.
func (c Command) DelayDuration(tick time.Duration) time.Duration {
	return time.Duration(c.Delay) * tick
}

// NewCommand draws a cycle duration and a colour from cfg.
// The duration is drawn first, then red, green and blue.
func NewCommand(src Source, cfg Config) Command {
	ticks := Sample(src, cfg.Time)
	return cfg.CommandFor(ticks, cfg.SampleColor(src))
}

// SampleColor draws one colour from the channel ranges.
func (c Config) SampleColor(src Source) RGB {
	return RGB{
		R: Sample(src, c.Red),
		G: Sample(src, c.Green),
		B: Sample(src, c.Blue),
	}
}

// CommandFor builds the command for an already drawn duration and colour.
// With fade on the light transitions over the whole cycle.
func (c Config) CommandFor(ticks uint16, color RGB) Command {
	cmd := Command{
		On:    true,
		Color: color,
		Delay: ticks,
	}
	if c.Fade {
		cmd.Transition = ticks
	}
	return cmd
}
