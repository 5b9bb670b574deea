package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skuledger/skuledger/internal/metrics"
	"github.com/skuledger/skuledger/internal/model"
)

// ErrSiteUnavailable marks a failed storefront call: network error, timeout,
// or a non-2xx response. The caller decides whether to retry.
var ErrSiteUnavailable = errors.New("storefront request failed")

const (
	perPage        = 100
	requestTimeout = 30 * time.Second
)

// RemoteProduct is one product row from the remote catalog listing.
type RemoteProduct struct {
	ID   int64  `json:"id"`
	SKU  string `json:"sku"`
	Type string `json:"type"`
}

// RemoteVariation is one variation row of a variable product.
type RemoteVariation struct {
	ID  int64  `json:"id"`
	SKU string `json:"sku"`
}

// Client talks to one WooCommerce site's wc/v3 REST API.
type Client struct {
	baseURL string
	key     string
	secret  string
	client  *http.Client
}

// NewClient creates a client for one site. The (key, secret) pair
// authenticates every request via HTTP Basic.
func NewClient(site model.SiteConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(site.BaseURL, "/"),
		key:     site.Key,
		secret:  site.Secret,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// ListProducts walks the whole catalog, calling fn for every product.
// Pagination is internal: pages of 100 until a short or empty page. An error
// from fn aborts the walk and is returned unchanged.
func (c *Client) ListProducts(ctx context.Context, fn func(RemoteProduct) error) error {
	for page := 1; ; page++ {
		var products []RemoteProduct
		if err := c.getPage(ctx, "/wp-json/wc/v3/products", page, "list_products", &products); err != nil {
			return err
		}
		for _, p := range products {
			if err := fn(p); err != nil {
				return err
			}
		}
		if len(products) < perPage {
			return nil
		}
	}
}

// ListVariations walks every variation of one variable product, same
// pagination rule as ListProducts.
func (c *Client) ListVariations(ctx context.Context, productID int64, fn func(RemoteVariation) error) error {
	path := fmt.Sprintf("/wp-json/wc/v3/products/%d/variations", productID)
	for page := 1; ; page++ {
		var variations []RemoteVariation
		if err := c.getPage(ctx, path, page, "list_variations", &variations); err != nil {
			return err
		}
		for _, v := range variations {
			if err := fn(v); err != nil {
				return err
			}
		}
		if len(variations) < perPage {
			return nil
		}
	}
}

// stockPayload is the write shape WooCommerce expects for stock updates.
// manage_stock must be forced on or the quantity is silently ignored.
type stockPayload struct {
	ManageStock   bool `json:"manage_stock"`
	StockQuantity int  `json:"stock_quantity"`
}

// SetProductStock writes the stock level of a simple product.
func (c *Client) SetProductStock(ctx context.Context, productID int64, qty int) error {
	path := fmt.Sprintf("/wp-json/wc/v3/products/%d", productID)
	return c.put(ctx, path, stockPayload{ManageStock: true, StockQuantity: qty})
}

// SetVariationStock writes the stock level of one variation.
func (c *Client) SetVariationStock(ctx context.Context, productID, variationID int64, qty int) error {
	path := fmt.Sprintf("/wp-json/wc/v3/products/%d/variations/%d", productID, variationID)
	return c.put(ctx, path, stockPayload{ManageStock: true, StockQuantity: qty})
}

func (c *Client) getPage(ctx context.Context, path string, page int, operation string, out any) error {
	start := time.Now()
	defer func() {
		metrics.StorefrontRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	url := fmt.Sprintf("%s%s?per_page=%d&page=%d", c.baseURL, path, perPage, page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.key, c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSiteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: GET %s: status %d: %s", ErrSiteUnavailable, path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrSiteUnavailable, path, err)
	}
	return nil
}

func (c *Client) put(ctx context.Context, path string, payload any) error {
	start := time.Now()
	defer func() {
		metrics.StorefrontRequestDuration.WithLabelValues("set_stock").Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.key, c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSiteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: PUT %s: status %d: %s", ErrSiteUnavailable, path, resp.StatusCode, respBody)
	}

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
