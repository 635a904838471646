// Package disco implements the modulation engine: sampled light commands,
// the shared configuration slot, per-light loops and their supervisor.
package disco

// Integer is the set of channel and timing domains a Range can span.
type Integer interface {
	~uint8 | ~uint16 | ~uint32 | ~int | ~int32 | ~int64
}

// Source produces uniformly distributed 64-bit values.
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	Uint64() uint64
}

// Range is a half-open interval [Start, End).
type Range[T Integer] struct {
	Start T `json:"min" yaml:"min"`
	End   T `json:"max" yaml:"max"`
}

// Empty reports whether the range holds no values.
func (r Range[T]) Empty() bool {
	return r.End <= r.Start
}

// SetStart moves the lower bound, pushing End up when it would fall below.
func (r *Range[T]) SetStart(v T) {
	r.Start = v
	if r.End < r.Start {
		r.End = r.Start
	}
}

// SetEnd moves the upper bound, pulling Start down when it would rise above.
func (r *Range[T]) SetEnd(v T) {
	r.End = v
	if r.Start > r.End {
		r.Start = r.End
	}
}

// Sample draws a value uniformly from r. An empty range yields r.Start.
func Sample[T Integer](src Source, r Range[T]) T {
	if r.Empty() {
		return r.Start
	}
	span := uint64(r.End - r.Start)
	return r.Start + T(src.Uint64()%span)
}
