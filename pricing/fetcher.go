package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCatalogURL is the public volumes search endpoint.
const DefaultCatalogURL = "https://www.googleapis.com/books/v1/volumes"

// HTTPFetcher queries the books catalog API. Failures are caller-visible
// (bounded timeout), never a hang.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: DefaultCatalogURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// volumesResponse mirrors the slice of the API response we care about:
// items[0].saleInfo.{saleability, listPrice.amount}.
type volumesResponse struct {
	Items []struct {
		SaleInfo struct {
			Saleability string `json:"saleability"`
			ListPrice   struct {
				Amount float64 `json:"amount"`
			} `json:"listPrice"`
		} `json:"saleInfo"`
	} `json:"items"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context, title, author string) (Quote, error) {
	q := url.Values{}
	q.Set("q", title+" "+author)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Quote{}, err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("catalog fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("catalog fetch: unexpected status %d", resp.StatusCode)
	}

	var body volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("catalog fetch: decode: %w", err)
	}
	if len(body.Items) == 0 {
		return Quote{}, ErrNotListed
	}

	sale := body.Items[0].SaleInfo
	return Quote{
		Title:     title,
		Author:    author,
		BasePrice: decimal.NewFromFloat(sale.ListPrice.Amount),
		InStock:   sale.Saleability == "FOR_SALE",
	}, nil
}
