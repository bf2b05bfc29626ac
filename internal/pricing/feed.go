package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HistoryFeed retrieves ordered historical price samples for an asset.
type HistoryFeed interface {
	HistoricalPrices(ctx context.Context, assetID string, days int) ([]Sample, error)
}

// FeedOptions parameterise the market-chart fetcher.
type FeedOptions struct {
	BaseURL    string
	VsCurrency string
	Timeout    time.Duration
	UserAgent  string
}

// Feed fetches daily price history from a CoinGecko-compatible API.
type Feed struct {
	opts    FeedOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewFeed constructs a history feed client.
func NewFeed(opts FeedOptions, logger zerolog.Logger) *Feed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &Feed{
		opts:    opts,
		logger:  logger.With().Str("component", "price_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// HistoricalPrices returns samples for the trailing days window, ordered as
// the API delivers them (ascending by timestamp).
func (f *Feed) HistoricalPrices(ctx context.Context, assetID string, days int) ([]Sample, error) {
	if assetID == "" {
		return nil, errors.New("asset id required")
	}
	if days <= 0 {
		days = 31
	}

	vs := f.opts.VsCurrency
	if vs == "" {
		vs = "usd"
	}

	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=%s&days=%d", f.baseURL, assetID, vs, days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var chart chartResponse
	if err := json.Unmarshal(payload, &chart); err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, len(chart.Prices))
	for _, point := range chart.Prices {
		if len(point) != 2 {
			continue
		}
		samples = append(samples, Sample{
			Timestamp: time.UnixMilli(int64(point[0])).UTC(),
			Price:     point[1],
		})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("price api returned no samples for %s", assetID)
	}

	return samples, nil
}

type chartResponse struct {
	Prices [][]float64 `json:"prices"`
}

var _ HistoryFeed = (*Feed)(nil)
