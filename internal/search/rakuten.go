// Package search talks to the external item-search provider.
//
// The provider is treated as an opaque collaborator: keyword in, matched
// items out. No retries, no caching — a failed lookup is just an error the
// handler reports. The Searcher interface exists so handlers can be tested
// with a fake instead of a network call.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sakif/postmarket/internal/model"
)

// Searcher finds marketplace items matching a keyword.
type Searcher interface {
	Search(ctx context.Context, keyword string) ([]model.SearchItem, error)
}

const defaultEndpoint = "https://app.rakuten.co.jp/services/api/IchibaItem/Search/20220601"

// RakutenClient queries the Rakuten Ichiba item search API.
type RakutenClient struct {
	applicationID string
	endpoint      string
	httpClient    *http.Client
}

var _ Searcher = (*RakutenClient)(nil)

// NewRakutenClient creates a client for the Rakuten item search API.
// applicationID comes from the Rakuten Webservice console.
func NewRakutenClient(applicationID string) *RakutenClient {
	return &RakutenClient{
		applicationID: applicationID,
		endpoint:      defaultEndpoint,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NewRakutenClientWithEndpoint creates a client pointed at a custom endpoint.
// Used in tests with an httptest server.
func NewRakutenClientWithEndpoint(applicationID, endpoint string) *RakutenClient {
	c := NewRakutenClient(applicationID)
	c.endpoint = endpoint
	return c
}

// rakutenResponse mirrors the fields of the Ichiba search response we use.
// Rakuten nests each hit under an "Item" wrapper object.
type rakutenResponse struct {
	Items []struct {
		Item struct {
			ItemName        string `json:"itemName"`
			ItemPrice       int64  `json:"itemPrice"`
			ItemCode        string `json:"itemCode"`
			MediumImageURLs []struct {
				ImageURL string `json:"imageUrl"`
			} `json:"mediumImageUrls"`
		} `json:"Item"`
	} `json:"Items"`
}

// Search returns items matching the keyword.
// An empty keyword returns an empty slice without calling the provider.
func (c *RakutenClient) Search(ctx context.Context, keyword string) ([]model.SearchItem, error) {
	if keyword == "" {
		return []model.SearchItem{}, nil
	}

	params := url.Values{}
	params.Set("applicationId", c.applicationID)
	params.Set("keyword", keyword)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: calling item search API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: item search API returned status %d", resp.StatusCode)
	}

	var body rakutenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("search: decoding item search response: %w", err)
	}

	items := make([]model.SearchItem, 0, len(body.Items))
	for _, hit := range body.Items {
		item := model.SearchItem{
			Name:          hit.Item.ItemName,
			Price:         hit.Item.ItemPrice,
			RakutenItemID: hit.Item.ItemCode,
		}
		if len(hit.Item.MediumImageURLs) > 0 {
			item.ImageURL = hit.Item.MediumImageURLs[0].ImageURL
		}
		items = append(items, item)
	}

	return items, nil
}
