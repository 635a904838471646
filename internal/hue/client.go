package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/discod/internal/disco"
)

// ColorLightType is the bridge's type name for full-colour lights.
const ColorLightType = "Extended color light"

// Client talks to one registered bridge. It implements disco.Dispatcher
// and disco.Pacer.
//
// Light listing goes through huego. Light state is written with a direct v1
// request so that a zero transition time reaches the bridge instead of
// falling back to its default fade.
type Client struct {
	address    string
	token      string
	bridge     *huego.Bridge
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client for a bridge and an authorized username.
// rateLimitRPS bounds the light commands sent per second (0 = 10).
func NewClient(address, token string, timeout time.Duration, rateLimitRPS float64) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if rateLimitRPS == 0 {
		rateLimitRPS = 10.0
	}

	return &Client{
		address:    address,
		token:      token,
		bridge:     huego.New(address, token),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rateLimitRPS), max(1, int(rateLimitRPS))),
	}
}

// Address returns the bridge address.
func (c *Client) Address() string {
	return c.address
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// ColorLights lists the bridge's full-colour lights.
func (c *Client) ColorLights(ctx context.Context) ([]disco.LightHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lights, err := c.bridge.GetLights()
	if err != nil {
		return nil, fmt.Errorf("failed to list lights: %w", err)
	}

	handles := make([]disco.LightHandle, 0, len(lights))
	for _, l := range lights {
		if l.Type != ColorLightType {
			continue
		}
		handles = append(handles, disco.LightHandle{
			ID:       strconv.Itoa(l.ID),
			UniqueID: l.UniqueID,
			Name:     l.Name,
		})
	}

	log.Debug().
		Int("lights", len(lights)).
		Int("color_lights", len(handles)).
		Msg("Lights fetched")

	return handles, nil
}

// Wait blocks until the rate limiter admits one more light command or ctx ends.
func (c *Client) Wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// SetLightState sends one command to a light. Callers pace commands with
// Wait; ctx bounds only the request itself.
func (c *Client) SetLightState(ctx context.Context, lightID string, cmd disco.Command) error {
	body, err := json.Marshal(StateBody(cmd))
	if err != nil {
		return err
	}

	resp, err := c.v1Request(ctx, http.MethodPut, fmt.Sprintf("lights/%s/state", lightID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to set light state: %s", string(msg))
	}

	// The v1 API reports per-attribute errors in a 200 response.
	var results []struct {
		Error *struct {
			Type        int    `json:"type"`
			Description string `json:"description"`
		} `json:"error"`
	}
	if json.NewDecoder(resp.Body).Decode(&results) != nil {
		// not a result list, the status code is all we have
		return nil
	}
	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("bridge rejected light %s state: %s", lightID, r.Error.Description)
		}
	}
	return nil
}

func (c *Client) v1URL(path string) string {
	return fmt.Sprintf("http://%s/api/%s/%s", c.address, c.token, path)
}

func (c *Client) v1Request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.v1URL(path), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}
