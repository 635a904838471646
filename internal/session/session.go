// Package session owns the editable disco config, the bridge connection and
// the light set, and applies background results once per refresh tick.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/discod/internal/disco"
	"github.com/dokzlo13/discod/internal/eventbus"
	"github.com/dokzlo13/discod/internal/hue"
	"github.com/dokzlo13/discod/internal/ledger"
	"github.com/dokzlo13/discod/internal/storage"
)

var (
	ErrNoAddress = errors.New("no bridge address known yet")
	ErrNotLinked = errors.New("bridge not connected")
)

// activateAll in the active list switches on every colour light.
const activateAll = "all"

// Provider finds bridges, registers users and opens clients.
type Provider interface {
	Discover(ctx context.Context) (string, error)
	Register(ctx context.Context, address string) (string, error)
	Connect(address, token string) hue.Bridge
}

// CredentialStore keeps bridge usernames between runs.
// Load with an empty address returns the most recently used credential.
type CredentialStore interface {
	Load(address string) (storage.Credential, bool, error)
	Store(cred storage.Credential) error
	Touch(address string) error
}

// ConfigStore keeps the last published config and sync mode between runs.
type ConfigStore interface {
	SaveConfig(cfg disco.Config) error
	SaveSyncMode(mode disco.SyncMode) error
}

// Recorder appends session events to an audit trail.
type Recorder interface {
	Append(eventID string, eventType ledger.EventType, payload map[string]any) error
}

// Options configures a Session. Supervisor, Provider and Credentials are required.
type Options struct {
	Supervisor  *disco.Supervisor
	Provider    Provider
	Credentials CredentialStore
	Inbox       *eventbus.Inbox
	ConfigStore ConfigStore
	Recorder    Recorder

	// Address and Token skip discovery and registration when set.
	Address string
	Token   string

	// Active lists light names or ids switched on when lights are first
	// discovered. "all" switches on every colour light.
	Active []string
}

// Status is a point-in-time view of the session.
type Status struct {
	Address    string           `json:"address"`
	Registered bool             `json:"registered"`
	Ready      bool             `json:"ready"`
	Error      string           `json:"error,omitempty"`
	SyncMode   disco.SyncMode   `json:"sync_mode"`
	Lights     int              `json:"lights"`
	Tasks      []disco.TaskInfo `json:"tasks"`
}

// Session is the engine surface used by the API and the refresh loop.
type Session struct {
	supervisor *disco.Supervisor
	provider   Provider
	creds      CredentialStore
	inbox      *eventbus.Inbox
	configs    ConfigStore
	recorder   Recorder
	token      string
	active     []string

	mu          sync.Mutex
	draft       disco.Config
	address     string
	bridge      hue.Bridge
	lightsKnown bool
	lastErr     error

	// background operations; bgMu orders Add against Shutdown's Wait
	bgMu     sync.Mutex
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New creates a session. The draft starts as the supervisor's published config.
func New(opts Options) *Session {
	inbox := opts.Inbox
	if inbox == nil {
		inbox = eventbus.New()
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())

	return &Session{
		supervisor: opts.Supervisor,
		provider:   opts.Provider,
		creds:      opts.Credentials,
		inbox:      inbox,
		configs:    opts.ConfigStore,
		recorder:   opts.Recorder,
		token:      opts.Token,
		active:     opts.Active,
		draft:      opts.Supervisor.Config(),
		address:    opts.Address,
		bgCtx:      bgCtx,
		bgCancel:   bgCancel,
	}
}

// Start connects to the configured bridge, or discovers one.
func (s *Session) Start() {
	s.mu.Lock()
	address := s.address
	s.mu.Unlock()

	if address != "" {
		s.inbox.Post(eventbus.BridgeFound(address))
		return
	}
	s.Discover()
}

// Discover looks for a bridge in the background.
func (s *Session) Discover() {
	s.background("discover", func(ctx context.Context) eventbus.Event {
		address, err := s.provider.Discover(ctx)
		if err != nil {
			return eventbus.Failed(fmt.Errorf("discovery: %w", err))
		}
		return eventbus.BridgeFound(address)
	})
}

// Register asks the bridge for a username in the background. The link
// button must have been pressed shortly before.
func (s *Session) Register() error {
	s.mu.Lock()
	address := s.address
	s.mu.Unlock()

	if address == "" {
		return ErrNoAddress
	}

	s.background("register", func(ctx context.Context) eventbus.Event {
		username, err := s.provider.Register(ctx, address)
		if err != nil {
			return eventbus.Failed(fmt.Errorf("registration: %w", err))
		}
		return eventbus.UserRegistered(address, username)
	})
	return nil
}

// RefreshLights re-reads the bridge's colour lights in the background.
func (s *Session) RefreshLights() error {
	s.mu.Lock()
	bridge := s.bridge
	s.mu.Unlock()

	if bridge == nil {
		return ErrNotLinked
	}

	s.background("refresh_lights", func(ctx context.Context) eventbus.Event {
		lights, err := bridge.ColorLights(ctx)
		if err != nil {
			return eventbus.Failed(fmt.Errorf("light discovery: %w", err))
		}
		return eventbus.LightsDiscovered(lights)
	})
	return nil
}

func (s *Session) background(op string, fn func(ctx context.Context) eventbus.Event) {
	s.bgMu.Lock()
	defer s.bgMu.Unlock()

	if s.bgCtx.Err() != nil {
		log.Debug().Str("op", op).Msg("Session shutting down, skipping background operation")
		return
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		event := fn(s.bgCtx)
		if s.bgCtx.Err() != nil {
			return
		}
		s.inbox.Post(event)
	}()
}

// Poll applies every pending background result and returns how many there were.
func (s *Session) Poll() int {
	events := s.inbox.Drain()
	for _, e := range events {
		s.apply(e)
		s.record(e.ID, ledger.EventType(e.Type), payloadOf(e))
	}
	return len(events)
}

func (s *Session) apply(e eventbus.Event) {
	switch e.Type {
	case eventbus.EventBridgeFound:
		s.onBridgeFound(e.Address)
	case eventbus.EventUserRegistered:
		s.onUserRegistered(e.Address, e.Username)
	case eventbus.EventLightsDiscovered:
		s.onLightsDiscovered(e.Lights)
	case eventbus.EventError:
		s.mu.Lock()
		s.lastErr = e.Err
		s.mu.Unlock()
		log.Warn().Err(e.Err).Msg("Background operation failed")
	}
}

func (s *Session) onBridgeFound(address string) {
	s.mu.Lock()
	s.address = address
	s.lastErr = nil
	s.mu.Unlock()

	token := s.token
	if token == "" {
		cred, ok := s.credentialFor(address)
		if !ok {
			log.Info().
				Str("address", address).
				Msg("Bridge not registered yet, press the link button and register")
			return
		}
		token = cred.Username
	}

	s.connect(address, token)
}

// credentialFor finds the username for the bridge at address. A bridge that
// moved to a new address keeps the last used credential, re-keyed to the
// new address.
func (s *Session) credentialFor(address string) (storage.Credential, bool) {
	cred, ok, err := s.creds.Load(address)
	if err != nil {
		log.Error().Err(err).Str("address", address).Msg("Failed to load credential")
	}
	if ok {
		if err := s.creds.Touch(address); err != nil {
			log.Debug().Err(err).Str("address", address).Msg("Failed to touch credential")
		}
		return cred, true
	}

	cred, ok, err = s.creds.Load("")
	if err != nil {
		log.Error().Err(err).Msg("Failed to load last used credential")
	}
	if !ok {
		return storage.Credential{}, false
	}

	log.Info().
		Str("previous", cred.Address).
		Str("address", address).
		Msg("Bridge address changed, reusing stored credential")
	cred.Address = address
	if err := s.creds.Store(cred); err != nil {
		log.Error().Err(err).Str("address", address).Msg("Failed to store credential")
	}
	return cred, true
}

func (s *Session) onUserRegistered(address, username string) {
	if err := s.creds.Store(storage.Credential{Address: address, Username: username}); err != nil {
		log.Error().Err(err).Str("address", address).Msg("Failed to store credential")
	}

	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()

	s.connect(address, username)
}

func (s *Session) connect(address, token string) {
	bridge := s.provider.Connect(address, token)

	s.mu.Lock()
	old := s.bridge
	s.bridge = bridge
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	s.supervisor.SetBridge(bridge)
	log.Info().Str("address", address).Msg("Connected to Hue bridge")

	if err := s.RefreshLights(); err != nil {
		log.Warn().Err(err).Str("address", address).Msg("Light discovery not started")
	}
}

func (s *Session) onLightsDiscovered(lights []disco.LightHandle) {
	s.supervisor.SetLights(lights)

	s.mu.Lock()
	first := !s.lightsKnown
	s.lightsKnown = true
	s.mu.Unlock()

	log.Info().Int("lights", len(lights)).Msg("Colour lights discovered")

	if first {
		s.activateConfigured(lights)
	}
}

// activateConfigured switches on the lights named in the active list.
func (s *Session) activateConfigured(lights []disco.LightHandle) {
	if len(s.active) == 0 {
		return
	}

	wanted := make(map[string]bool, len(s.active))
	all := false
	for _, a := range s.active {
		if strings.EqualFold(a, activateAll) {
			all = true
		}
		wanted[strings.ToLower(a)] = true
	}

	for _, l := range lights {
		if all || wanted[strings.ToLower(l.ID)] || wanted[strings.ToLower(l.Name)] {
			if err := s.supervisor.SetActive(l.ID, true); err != nil {
				log.Warn().Err(err).Str("light", l.ID).Msg("Failed to activate light")
			}
		}
	}
}

// Tick is one refresh step: apply background results, publish the draft,
// and rebuild the task set if lights or the sync mode changed.
// Tasks started here live until ctx is cancelled or the next rebuild.
func (s *Session) Tick(ctx context.Context) {
	s.Poll()

	if err := s.Publish(); err != nil {
		log.Warn().Err(err).Msg("Draft config not published")
	}

	if s.supervisor.ApplyPending(ctx) {
		s.record("", ledger.EventRebuild, map[string]any{
			"sync":  s.supervisor.SyncMode().String(),
			"tasks": len(s.supervisor.Running()),
		})
	}
}

// Publish makes the draft the config running tasks sample from.
func (s *Session) Publish() error {
	cfg := s.Draft()

	changed, err := s.supervisor.PublishConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid draft: %w", err)
	}
	if !changed {
		return nil
	}

	if s.configs != nil {
		if err := s.configs.SaveConfig(cfg); err != nil {
			log.Error().Err(err).Msg("Failed to persist disco config")
		}
	}
	s.record("", ledger.EventConfigPublished, map[string]any{"config": cfg})
	return nil
}

// Draft returns a copy of the editable config.
func (s *Session) Draft() disco.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// EditDraft applies fn to a copy of the draft and keeps the result unless fn
// fails or the result is invalid.
func (s *Session) EditDraft(fn func(cfg *disco.Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.draft
	if err := fn(&next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.draft = next
	return nil
}

// SetMin moves a channel's lower bound in the draft.
func (s *Session) SetMin(ch disco.Channel, v int) error {
	return s.EditDraft(func(cfg *disco.Config) error { return cfg.SetMin(ch, v) })
}

// SetMax moves a channel's upper bound in the draft.
func (s *Session) SetMax(ch disco.Channel, v int) error {
	return s.EditDraft(func(cfg *disco.Config) error { return cfg.SetMax(ch, v) })
}

// SetFade toggles fading in the draft.
func (s *Session) SetFade(fade bool) error {
	return s.EditDraft(func(cfg *disco.Config) error {
		cfg.Fade = fade
		return nil
	})
}

// Lights returns the known colour lights.
func (s *Session) Lights() []disco.LightHandle {
	return s.supervisor.Lights()
}

// SetActive switches a light on or off from the next refresh tick.
func (s *Session) SetActive(id string, on bool) error {
	return s.supervisor.SetActive(id, on)
}

// SetSyncMode changes light grouping from the next refresh tick.
func (s *Session) SetSyncMode(mode disco.SyncMode) {
	s.supervisor.SetSyncMode(mode)
	if s.configs != nil {
		if err := s.configs.SaveSyncMode(mode); err != nil {
			log.Error().Err(err).Msg("Failed to persist sync mode")
		}
	}
}

// Rebuild replaces the task set immediately.
func (s *Session) Rebuild(ctx context.Context) {
	s.supervisor.Rebuild(ctx)
}

// Ready reports whether the bridge's lights are known.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lightsKnown
}

// Status returns the current session state.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		Address:    s.address,
		Registered: s.bridge != nil,
		Ready:      s.lightsKnown,
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	s.mu.Unlock()

	st.SyncMode = s.supervisor.SyncMode()
	st.Lights = len(s.supervisor.Lights())
	st.Tasks = s.supervisor.Running()
	return st
}

// Shutdown stops background operations and every task, then closes the bridge.
func (s *Session) Shutdown(ctx context.Context) error {
	s.inbox.Close()
	s.bgMu.Lock()
	s.bgCancel()
	s.bgMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.bgWG.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("background operations: %w", ctx.Err()))
	}

	if err := s.supervisor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("modulation tasks: %w", err))
	}

	s.mu.Lock()
	bridge := s.bridge
	s.bridge = nil
	s.mu.Unlock()
	if bridge != nil {
		bridge.Close()
	}

	return errors.Join(errs...)
}

func (s *Session) record(eventID string, eventType ledger.EventType, payload map[string]any) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Append(eventID, eventType, payload); err != nil {
		log.Debug().Err(err).Str("event_type", string(eventType)).Msg("Failed to record event")
	}
}

func payloadOf(e eventbus.Event) map[string]any {
	switch e.Type {
	case eventbus.EventBridgeFound:
		return map[string]any{"address": e.Address}
	case eventbus.EventUserRegistered:
		// the username is a credential, keep it out of the ledger
		return map[string]any{"address": e.Address}
	case eventbus.EventLightsDiscovered:
		ids := make([]string, len(e.Lights))
		for i, l := range e.Lights {
			ids[i] = l.ID
		}
		return map[string]any{"lights": ids}
	case eventbus.EventError:
		return map[string]any{"error": e.Err.Error()}
	}
	return nil
}
