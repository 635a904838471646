package hue

import (
	"math"
	"testing"

	"github.com/dokzlo13/discod/internal/disco"
)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestToXYBri(t *testing.T) {
	tests := []struct {
		name    string
		color   disco.RGB
		x, y    float64
		bri     uint8
		briTol  int
		checkXY bool
	}{
		{"white", disco.RGB{R: 255, G: 255, B: 255}, 0.3127, 0.3290, 254, 1, true},
		{"red", disco.RGB{R: 255}, 0.64, 0.33, 54, 2, true},
		{"green", disco.RGB{G: 255}, 0.30, 0.60, 182, 2, true},
		{"blue", disco.RGB{B: 255}, 0.15, 0.06, 18, 2, true},
		{"black", disco.RGB{}, 0, 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, bri := ToXYBri(tt.color)
			if tt.checkXY && (!near(float64(x), tt.x, 0.01) || !near(float64(y), tt.y, 0.01)) {
				t.Errorf("xy = (%.4f, %.4f), want (%.4f, %.4f)", x, y, tt.x, tt.y)
			}
			if d := int(bri) - int(tt.bri); d < -tt.briTol || d > tt.briTol {
				t.Errorf("bri = %d, want %d±%d", bri, tt.bri, tt.briTol)
			}
		})
	}
}

func TestStateBody_KeepsZeroTransition(t *testing.T) {
	body := StateBody(disco.Command{On: true, Color: disco.RGB{R: 10}, Delay: 4})

	tt, ok := body["transitiontime"]
	if !ok {
		t.Fatal("transitiontime missing, the bridge would apply its default fade")
	}
	if tt != uint16(0) {
		t.Errorf("transitiontime = %v, want 0", tt)
	}
	if body["on"] != true {
		t.Errorf("on = %v, want true", body["on"])
	}
}
