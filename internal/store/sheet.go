package store

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

	"github.com/noah-nozomu/gacha-app/internal/models"
)

// SheetClient talks to the spreadsheet web API that holds the catalog
// and ledger. The API exposes one resource per worksheet:
//
//	GET  {base}/{table}  -> {"header": [...], "records": [[...], ...]}
//	PUT  {base}/{table}  <- same body, replaces the whole worksheet
//
// The response ETag is the table version; PUT with If-Match performs
// the conditional replace and answers 412 when someone else wrote
// first.
type SheetClient struct {
	base   string
	client *http.Client
}

// NewSheetClient creates a client for the sheet API at base.
func NewSheetClient(base string) *SheetClient {
	return &SheetClient{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *SheetClient) tableURL(table string) string {
	return s.base + "/" + url.PathEscape(table)
}

func (s *SheetClient) Read(ctx context.Context, table string) (models.Table, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tableURL(table), nil)
	if err != nil {
		return models.Table{}, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return models.Table{}, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Table{}, "", fmt.Errorf("%w: GET %s: %s", ErrUnavailable, table, resp.Status)
	}
	var t models.Table
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return models.Table{}, "", fmt.Errorf("%w: decode %s: %v", ErrUnavailable, table, err)
	}
	return t, resp.Header.Get("ETag"), nil
}

func (s *SheetClient) Write(ctx context.Context, table string, t models.Table, version string) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrUnavailable, table, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.tableURL(table), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if version != "" {
		req.Header.Set("If-Match", version)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusPreconditionFailed:
		return ErrVersionConflict
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return fmt.Errorf("%w: PUT %s: %s", ErrUnavailable, table, resp.Status)
	}
}
