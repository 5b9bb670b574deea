package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/skuledger/skuledger/internal/model"
)

// syncctl drives the admin API from the command line.
//
// Usage:
//
//	syncctl                  refresh SKU mappings for all sites
//	syncctl -site store-a    refresh SKU mappings for one site
//	syncctl -list            print current SKU mappings
//	syncctl -stock           print stock levels
//	syncctl -failures        print propagation failures
//
// The API address and admin token come from -addr/-token or the
// SYNCCTL_ADDR and ADMIN_TOKEN environment variables.
func main() {
	addr := flag.String("addr", envOr("SYNCCTL_ADDR", "http://localhost:3000"), "Base URL of the sync API")
	token := flag.String("token", os.Getenv("ADMIN_TOKEN"), "Admin bearer token")
	site := flag.String("site", "", "Target a single site")
	list := flag.Bool("list", false, "Print current SKU mappings")
	stock := flag.Bool("stock", false, "Print current stock levels")
	failures := flag.Bool("failures", false, "Print propagation failures")
	flag.Parse()

	c := &client{
		base:  *addr,
		token: *token,
		http:  &http.Client{Timeout: 5 * time.Minute},
	}

	var err error
	switch {
	case *list:
		err = cmdList(c, *site)
	case *stock:
		err = cmdStock(c)
	case *failures:
		err = cmdFailures(c)
	default:
		err = cmdRefresh(c, *site)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) do(method, path string, out any) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func cmdRefresh(c *client, siteID string) error {
	var results []model.RefreshResult

	if siteID != "" {
		var result model.RefreshResult
		err := c.do(http.MethodPost, "/admin/refresh-mappings/"+siteID, &result)
		if se, ok := err.(*statusError); ok && se.code == http.StatusNotFound {
			return fmt.Errorf("site %q is not registered", siteID)
		}
		if err != nil {
			return err
		}
		results = []model.RefreshResult{result}
	} else {
		if err := c.do(http.MethodPost, "/admin/refresh-mappings", &results); err != nil {
			return err
		}
		if len(results) == 0 {
			return fmt.Errorf("no active sites registered")
		}
	}

	var failed []string
	for _, r := range results {
		fmt.Printf("\n→ Refreshed mappings for site: %s\n", r.SiteID)
		fmt.Printf("  Mapped:  %d\n", r.Inserted)
		if len(r.Errors) > 0 {
			failed = append(failed, r.SiteID)
			fmt.Printf("  Errors:  %d\n", len(r.Errors))
			for i, e := range r.Errors {
				if i == 10 {
					break
				}
				fmt.Printf("    - %s\n", e)
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("refresh finished with errors on: %s", strings.Join(failed, ", "))
	}
	return nil
}

func cmdList(c *client, siteID string) error {
	siteIDs := []string{siteID}
	if siteID == "" {
		var sites []model.SiteResponse
		if err := c.do(http.MethodGet, "/admin/sites", &sites); err != nil {
			return err
		}
		siteIDs = siteIDs[:0]
		for _, s := range sites {
			siteIDs = append(siteIDs, s.SiteID)
		}
	}

	var rows []model.SkuMapping
	for _, id := range siteIDs {
		var mappings []model.SkuMapping
		if err := c.do(http.MethodGet, "/admin/mappings/"+id, &mappings); err != nil {
			return err
		}
		rows = append(rows, mappings...)
	}

	if len(rows) == 0 {
		fmt.Println("No mappings found. Run without -list to refresh.")
		return nil
	}

	fmt.Printf("\n%-20s %-30s %-12s %-14s %s\n", "SITE", "SKU", "PRODUCT_ID", "VARIATION_ID", "REFRESHED")
	fmt.Println(strings.Repeat("-", 100))
	for _, r := range rows {
		variation := "-"
		if r.VariationID != nil {
			variation = fmt.Sprintf("%d", *r.VariationID)
		}
		fmt.Printf("%-20s %-30s %-12d %-14s %s\n",
			r.SiteID, r.SKU, r.ProductID, variation, r.RefreshedAt.Format(time.RFC3339))
	}
	return nil
}

func cmdStock(c *client) error {
	var rows []model.Stock
	if err := c.do(http.MethodGet, "/admin/stock?limit=500", &rows); err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Println("No stock records found.")
		return nil
	}

	fmt.Printf("\n%-30s %10s %10s %s\n", "SKU", "ON_HAND", "RESERVED", "UPDATED")
	fmt.Println(strings.Repeat("-", 80))
	for _, r := range rows {
		fmt.Printf("%-30s %10d %10d %s\n", r.SKU, r.OnHand, r.Reserved, r.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func cmdFailures(c *client) error {
	var rows []model.PropagationFailure
	if err := c.do(http.MethodGet, "/admin/failures", &rows); err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Println("No propagation failures.")
		return nil
	}

	fmt.Printf("\n%-6s %-20s %-30s %-9s %-19s %s\n", "ID", "SITE", "SKU", "ATTEMPTS", "LAST_TRIED", "ERROR")
	fmt.Println(strings.Repeat("-", 120))
	for _, r := range rows {
		errMsg := r.Error
		if len(errMsg) > 60 {
			errMsg = errMsg[:57] + "..."
		}
		fmt.Printf("%-6d %-20s %-30s %-9d %-19s %s\n",
			r.ID, r.SiteID, r.SKU, r.Attempts, r.LastTried.Format("2006-01-02 15:04:05"), errMsg)
	}
	return nil
}
