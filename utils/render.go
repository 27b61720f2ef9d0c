package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrRendererDisabled is returned when no renderer endpoint is configured.
// Callers fall back to embed-only output.
var ErrRendererDisabled = errors.New("renderer not configured")

// RenderResult is one rendered image plus a dominant-color hint for embeds.
type RenderResult struct {
	Image         []byte
	ContentType   string
	DominantColor int
}

// Renderer turns a component name and a props bag into an image. Presentation
// only; game correctness never depends on it.
type Renderer interface {
	Render(ctx context.Context, component string, props map[string]any) (*RenderResult, error)
}

// RenderClient calls the remote render service over HTTP.
type RenderClient struct {
	cfg    *RendererConfig
	client *http.Client
}

// NewRenderClient creates a client for the configured render service.
func NewRenderClient(cfg *RendererConfig) *RenderClient {
	return &RenderClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type renderRequest struct {
	RequestID string         `json:"request_id"`
	Component string         `json:"component"`
	Props     map[string]any `json:"props"`
	Scale     float64        `json:"scale"`
	Locale    string         `json:"locale"`
}

// Render posts the props bag and returns the image bytes. The dominant color
// comes back in the X-Dominant-Color header as a hex string.
func (c *RenderClient) Render(ctx context.Context, component string, props map[string]any) (*RenderResult, error) {
	if c.cfg.URL == "" {
		return nil, ErrRendererDisabled
	}

	body, err := json.Marshal(renderRequest{
		RequestID: uuid.NewString(),
		Component: component,
		Props:     props,
		Scale:     1.0,
		Locale:    "en",
	})
	if err != nil {
		return nil, fmt.Errorf("encode render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("render status %d after %s", resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read render body: %w", err)
	}

	color := BotColor
	if hex := strings.TrimPrefix(resp.Header.Get("X-Dominant-Color"), "#"); hex != "" {
		if v, err := strconv.ParseInt(hex, 16, 32); err == nil {
			color = int(v)
		}
	}

	return &RenderResult{
		Image:         img,
		ContentType:   resp.Header.Get("Content-Type"),
		DominantColor: color,
	}, nil
}
