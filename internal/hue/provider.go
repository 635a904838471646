package hue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/discod/internal/disco"
)

var (
	ErrNoBridge             = errors.New("no hue bridge found")
	ErrLinkButtonNotPressed = errors.New("link button not pressed")
)

// linkButtonErrorType is the v1 API error returned by user creation until
// the bridge's link button has been pressed.
const linkButtonErrorType = 101

// Bridge is a connected bridge as seen by the session.
type Bridge interface {
	disco.Dispatcher
	disco.Pacer
	Address() string
	ColorLights(ctx context.Context) ([]disco.LightHandle, error)
	Close() error
}

// Provider finds bridges, registers users and opens clients.
type Provider struct {
	deviceType   string
	timeout      time.Duration
	rateLimitRPS float64
}

// NewProvider creates a provider. deviceType identifies this application
// on the bridge when registering.
func NewProvider(deviceType string, timeout time.Duration, rateLimitRPS float64) *Provider {
	return &Provider{
		deviceType:   deviceType,
		timeout:      timeout,
		rateLimitRPS: rateLimitRPS,
	}
}

// Discover returns the address of a bridge on the local network.
func (p *Provider) Discover(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	bridges, err := huego.DiscoverAll()
	if err != nil {
		return "", fmt.Errorf("bridge discovery failed: %w", err)
	}
	if len(bridges) == 0 {
		return "", ErrNoBridge
	}

	// Same choice as the discovery endpoint's last entry.
	found := bridges[len(bridges)-1]
	log.Info().
		Str("address", found.Host).
		Str("bridge_id", found.ID).
		Int("found", len(bridges)).
		Msg("Hue bridge discovered")

	return found.Host, nil
}

// Register creates a user on the bridge. The bridge only accepts this within
// a short window after its link button is pressed.
func (p *Provider) Register(ctx context.Context, address string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	user, err := huego.New(address, "").CreateUser(p.deviceType)
	if err != nil {
		if isLinkButtonError(err) {
			return "", ErrLinkButtonNotPressed
		}
		return "", fmt.Errorf("registration failed: %w", err)
	}

	log.Info().Str("address", address).Msg("Registered with Hue bridge")
	return user, nil
}

// Connect opens a client for a registered user.
func (p *Provider) Connect(address, token string) Bridge {
	return NewClient(address, token, p.timeout, p.rateLimitRPS)
}

func isLinkButtonError(err error) bool {
	var apiErr *huego.APIError
	if errors.As(err, &apiErr) && apiErr.Type == linkButtonErrorType {
		return true
	}
	return strings.Contains(err.Error(), "link button not pressed")
}
