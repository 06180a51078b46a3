package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

// HTTPCatalog reads layouts from the geometry service's internal API
type HTTPCatalog struct {
	baseURL string
	client  *http.Client
	logger  *logger.Logger
}

// NewHTTPCatalog creates a catalog client rooted at baseURL
func NewHTTPCatalog(baseURL string, client *http.Client, log *logger.Logger) *HTTPCatalog {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCatalog{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  log,
	}
}

var _ Catalog = (*HTTPCatalog)(nil)

func (c *HTTPCatalog) CurrentLayout(ctx context.Context, eventID string) (*models.SeatingLayout, error) {
	var layout models.SeatingLayout
	if err := c.get(ctx, fmt.Sprintf("/internal/v1/events/%s/layout/current", eventID), &layout); err != nil {
		return nil, err
	}
	return &layout, nil
}

func (c *HTTPCatalog) Layout(ctx context.Context, layoutID string) (*models.SeatingLayout, error) {
	var layout models.SeatingLayout
	if err := c.get(ctx, fmt.Sprintf("/internal/v1/layouts/%s", layoutID), &layout); err != nil {
		return nil, err
	}
	return &layout, nil
}

func (c *HTTPCatalog) PriceTiers(ctx context.Context, layoutID string) ([]models.PriceTier, error) {
	var tiers []models.PriceTier
	if err := c.get(ctx, fmt.Sprintf("/internal/v1/layouts/%s/tiers", layoutID), &tiers); err != nil {
		return nil, err
	}
	return tiers, nil
}

func (c *HTTPCatalog) get(ctx context.Context, path string, out interface{}) error {
	url := c.baseURL + path
	c.logger.Debug("LAYOUT", fmt.Sprintf("Fetching %s", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create layout request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("LAYOUT", fmt.Sprintf("Layout service error: %v", err))
		return fmt.Errorf("layout service error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Error("LAYOUT", fmt.Sprintf("Failed to close layout response body: %v", err))
		}
	}(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Warn("LAYOUT", fmt.Sprintf("Not found: %s", path))
		return fmt.Errorf("%w: %s", ErrLayoutNotFound, path)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("LAYOUT", fmt.Sprintf("Layout service returned status: %d", resp.StatusCode))
		return fmt.Errorf("layout service returned status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode layout response: %w", err)
	}
	return nil
}
