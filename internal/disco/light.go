package disco

import (
	"context"
	"hash/fnv"
)

// LightHandle identifies one colour light and the engine's on/off intent for it.
type LightHandle struct {
	ID       string `json:"id"`
	UniqueID string `json:"unique_id"`
	Name     string `json:"name"`
	On       bool   `json:"on"`
}

// seedKey is the stable identity used to seed a light's random stream.
func (l LightHandle) seedKey() string {
	if l.UniqueID != "" {
		return l.UniqueID
	}
	return l.ID
}

// Dispatcher sends one command to one light. Implementations may fail;
// the engine treats every call as best-effort.
type Dispatcher interface {
	SetLightState(ctx context.Context, lightID string, cmd Command) error
}

// Pacer is implemented by dispatchers that limit their call rate. Tasks
// wait on it before each command; the wait is cancellable, the call is not.
type Pacer interface {
	Wait(ctx context.Context) error
}

// SeedFor derives a stream seed from the session seed and the stable keys of
// the lights bound to a task. Equal inputs give equal seeds across runs.
func SeedFor(sessionSeed uint64, keys ...string) uint64 {
	h := fnv.New64a()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return h.Sum64() ^ sessionSeed
}
