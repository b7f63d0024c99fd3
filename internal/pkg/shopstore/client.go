package shopstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/omafit/tryon-app/internal/pkg/config"
)

// identifierColumns are the legacy column names under which a shop row may be
// keyed, in priority order. Read and write both walk this list until one
// column works.
var identifierColumns = []string{"shop_domain", "shop", "store_url"}

// Client talks to the external REST data store that holds the canonical shop
// billing records. The store's schema is allowed to drift without a lockstep
// redeploy; see UpsertRow for the repair ladder that absorbs the drift.
type Client struct {
	baseURL    string
	serviceKey string
	table      string
	shopsTable string
	enabled    bool

	HTTPClient *http.Client
}

// New creates a store client. With missing configuration the client is
// disabled: reads report no record and writes fail softly, so billing never
// blocks the rest of the app.
func New(cfg config.StoreConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		table:      cfg.Table,
		shopsTable: cfg.ShopsTable,
		enabled:    cfg.Enabled(),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether the store is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

// identifierValue derives the lookup value for a candidate identifier column.
// URL-flavored legacy columns store the full store URL instead of the bare
// domain.
func identifierValue(column, shopDomain string) string {
	if strings.Contains(strings.ToLower(column), "url") {
		return "https://" + shopDomain
	}
	return shopDomain
}

func (c *Client) tableURL(table string) string {
	return c.baseURL + "/rest/v1/" + table
}

// do executes one REST call. A non-2xx response is returned as a *StoreError;
// transport failures (timeouts included) come back as err.
func (c *Client) do(ctx context.Context, method, rawURL, prefer string, body interface{}) (int, []byte, *StoreError, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, raw, nil, nil
	}

	storeErr := &StoreError{Status: resp.StatusCode}
	if jsonErr := json.Unmarshal(raw, storeErr); jsonErr != nil || storeErr.Message == "" {
		storeErr.Message = strings.TrimSpace(string(raw))
		if storeErr.Message == "" {
			storeErr.Message = fmt.Sprintf("http status %d", resp.StatusCode)
		}
	}
	return resp.StatusCode, raw, storeErr, nil
}

// selectRows reads up to limit rows where column equals value.
func (c *Client) selectRows(ctx context.Context, table, column, value string, limit int) ([]map[string]interface{}, *StoreError, error) {
	q := url.Values{}
	q.Set(column, "eq."+value)
	q.Set("select", "*")
	q.Set("limit", fmt.Sprintf("%d", limit))

	_, raw, storeErr, err := c.do(ctx, http.MethodGet, c.tableURL(table)+"?"+q.Encode(), "", nil)
	if err != nil || storeErr != nil {
		return nil, storeErr, err
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, nil, fmt.Errorf("store returned malformed rows: %w", err)
	}
	return rows, nil, nil
}

// insertRow inserts one row, optionally declaring a conflict target for
// merge-on-duplicate semantics.
func (c *Client) insertRow(ctx context.Context, table string, body map[string]interface{}, onConflict string) (*StoreError, error) {
	rawURL := c.tableURL(table)
	prefer := "return=minimal"
	if onConflict != "" {
		rawURL += "?on_conflict=" + url.QueryEscape(onConflict)
		prefer = "resolution=merge-duplicates,return=minimal"
	}
	_, _, storeErr, err := c.do(ctx, http.MethodPost, rawURL, prefer, body)
	return storeErr, err
}

// updateRows patches all rows where column equals value and returns how many
// rows the store reports as updated.
func (c *Client) updateRows(ctx context.Context, table, column, value string, body map[string]interface{}) (int, *StoreError, error) {
	q := url.Values{}
	q.Set(column, "eq."+value)

	_, raw, storeErr, err := c.do(ctx, http.MethodPatch, c.tableURL(table)+"?"+q.Encode(), "return=representation", body)
	if err != nil || storeErr != nil {
		return 0, storeErr, err
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		// Stores configured for minimal returns answer with an empty body;
		// treat a 2xx as one affected row in that case.
		if len(bytes.TrimSpace(raw)) == 0 {
			return 1, nil, nil
		}
		return 0, nil, fmt.Errorf("store returned malformed rows: %w", err)
	}
	return len(rows), nil, nil
}

// ReadRow fetches the billing row for a shop, walking the candidate
// identifier columns until one exists in the remote schema. A missing record
// returns (nil, nil).
func (c *Client) ReadRow(ctx context.Context, shopDomain string) (map[string]interface{}, error) {
	if !c.Enabled() {
		return nil, nil
	}

	var lastErr error
	for _, column := range identifierColumns {
		rows, storeErr, err := c.selectRows(ctx, c.table, column, identifierValue(column, shopDomain), 1)
		if err != nil {
			return nil, err
		}
		if storeErr != nil {
			class := Classify(storeErr)
			if class == ClassUndefinedColumn {
				lastErr = storeErr
				continue
			}
			return nil, storeErr
		}
		if len(rows) > 0 {
			return rows[0], nil
		}
		return nil, nil
	}
	return nil, lastErr
}

// DeleteRow removes the billing row for a shop (app uninstall). Best-effort:
// unknown identifier columns are skipped, other failures are reported.
func (c *Client) DeleteRow(ctx context.Context, shopDomain string) error {
	if !c.Enabled() {
		return nil
	}

	var lastErr error
	for _, column := range identifierColumns {
		q := url.Values{}
		q.Set(column, "eq."+identifierValue(column, shopDomain))
		_, _, storeErr, err := c.do(ctx, http.MethodDelete, c.tableURL(c.table)+"?"+q.Encode(), "", nil)
		if err != nil {
			return err
		}
		if storeErr == nil {
			return nil
		}
		if Classify(storeErr) != ClassUndefinedColumn {
			return storeErr
		}
		lastErr = storeErr
	}
	return lastErr
}
