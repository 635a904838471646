package disco

import (
	"errors"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.Red != (Range[uint8]{0, 255}) || cfg.Green != (Range[uint8]{0, 255}) || cfg.Blue != (Range[uint8]{0, 255}) {
		t.Errorf("colour ranges = %v %v %v, want [0, 255) each", cfg.Red, cfg.Green, cfg.Blue)
	}
	if cfg.Time != (Range[uint16]{1, 10}) {
		t.Errorf("time = %v, want [1, 10)", cfg.Time)
	}
	if cfg.Fade {
		t.Error("fade should default to off")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"degenerate_ranges", func(c *Config) { c.Green = Range[uint8]{10, 10}; c.Time = Range[uint16]{5, 5} }, false},
		{"inverted_red", func(c *Config) { c.Red = Range[uint8]{20, 10} }, true},
		{"inverted_time", func(c *Config) { c.Time = Range[uint16]{9, 3} }, true},
		{"zero_ticks", func(c *Config) { c.Time = Range[uint16]{0, 4} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_SetMinSetMax(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*Config) error
		check func(Config) bool
	}{
		{
			name:  "min_above_max_pushes_max",
			apply: func(c *Config) error { return c.SetMin(ChannelRed, 255) },
			check: func(c Config) bool { return c.Red == Range[uint8]{255, 255} },
		},
		{
			name:  "max_below_min_pulls_min",
			apply: func(c *Config) error { c.Green.Start = 100; return c.SetMax(ChannelGreen, 40) },
			check: func(c Config) bool { return c.Green == Range[uint8]{40, 40} },
		},
		{
			name:  "channel_value_clamped_high",
			apply: func(c *Config) error { return c.SetMax(ChannelBlue, 1000) },
			check: func(c Config) bool { return c.Blue.End == 255 },
		},
		{
			name:  "channel_value_clamped_low",
			apply: func(c *Config) error { return c.SetMin(ChannelBlue, -5) },
			check: func(c Config) bool { return c.Blue.Start == 0 },
		},
		{
			name:  "time_clamped_to_tick_domain",
			apply: func(c *Config) error { return c.SetMin(ChannelTime, 0) },
			check: func(c Config) bool { return c.Time.Start == MinTicks },
		},
		{
			name:  "time_max_clamped",
			apply: func(c *Config) error { return c.SetMax(ChannelTime, 5000) },
			check: func(c Config) bool { return c.Time.End == MaxTicks },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if err := tt.apply(&cfg); err != nil {
				t.Fatalf("apply: %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("unexpected config %+v", cfg)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("edited config invalid: %v", err)
			}
		})
	}
}

func TestConfig_SetUnknownChannel(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.SetMin("alpha", 3); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("SetMin(alpha) = %v, want ErrUnknownChannel", err)
	}
	if err := cfg.SetMax("alpha", 3); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("SetMax(alpha) = %v, want ErrUnknownChannel", err)
	}
}

func TestConfig_EditSequencesStayValid(t *testing.T) {
	rng := newTestRand(9)
	cfg := DefaultConfig()

	for i := 0; i < 5000; i++ {
		ch := Channels[rng.IntN(len(Channels))]
		v := rng.IntN(400) - 50
		var err error
		if rng.IntN(2) == 0 {
			err = cfg.SetMin(ch, v)
		} else {
			err = cfg.SetMax(ch, v)
		}
		if err != nil {
			t.Fatalf("edit %d: %v", i, err)
		}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("after edit %d (%s=%d): %v", i, ch, v, err)
		}
	}
}

func TestParseSyncMode(t *testing.T) {
	tests := []struct {
		in      string
		want    SyncMode
		wantErr bool
	}{
		{"", SyncNone, false},
		{"none", SyncNone, false},
		{"TIME", SyncTime, false},
		{"color", SyncColor, false},
		{"colour", SyncColor, false},
		{"strobe", SyncNone, true},
	}
	for _, tt := range tests {
		got, err := ParseSyncMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSyncMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSyncMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
