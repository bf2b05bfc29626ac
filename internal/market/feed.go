package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Feed retrieves lending market snapshots from the yield data source.
type Feed interface {
	Markets(ctx context.Context) ([]Market, error)
}

// FeedOptions parameterise the market feed client.
type FeedOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// HTTPFeed fetches markets from a Joule-style price API.
type HTTPFeed struct {
	opts    FeedOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHTTPFeed constructs a market feed client.
func NewHTTPFeed(opts FeedOptions, logger zerolog.Logger) *HTTPFeed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPFeed{
		opts:    opts,
		logger:  logger.With().Str("component", "market_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Markets fetches all markets, normalising raw token amounts by each asset's
// declared decimals. Extra deposit APY defaults to 0 when absent or
// non-numeric.
func (f *HTTPFeed) Markets(ctx context.Context) ([]Market, error) {
	if f.baseURL == "" {
		return nil, fmt.Errorf("market feed base url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/market", nil)
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
		return nil, fmt.Errorf("market api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body marketResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode market response: %w", err)
	}

	markets := make([]Market, 0, len(body.Data))
	for _, raw := range body.Data {
		deposit := toFloat(raw.DepositAPY)
		extra := toFloat(raw.ExtraAPY.DepositAPY)

		scale := decimal.New(1, int32(raw.Asset.Decimals))
		markets = append(markets, Market{
			Asset:           raw.Asset.AssetName,
			TokenAddress:    extractTokenAddress(raw.Asset.Type),
			Decimals:        raw.Asset.Decimals,
			MarketSize:      toDecimal(raw.MarketSize).Div(scale),
			TotalBorrowed:   toDecimal(raw.TotalBorrowed).Div(scale),
			DepositAPY:      deposit,
			ExtraDepositAPY: extra,
			TotalDepositAPY: deposit + extra,
			BorrowAPY:       toFloat(raw.BorrowAPY),
			Price:           toDecimal(raw.PriceInfo.Price),
		})
	}

	f.logger.Debug().Int("markets", len(markets)).Msg("fetched market snapshots")
	return markets, nil
}

type marketResponse struct {
	Data []rawMarket `json:"data"`
}

type rawMarket struct {
	Asset struct {
		AssetName string `json:"assetName"`
		Decimals  int    `json:"decimals"`
		Type      string `json:"type"`
	} `json:"asset"`
	MarketSize    json.RawMessage `json:"marketSize"`
	TotalBorrowed json.RawMessage `json:"totalBorrowed"`
	DepositAPY    json.RawMessage `json:"depositApy"`
	ExtraAPY      struct {
		DepositAPY json.RawMessage `json:"depositAPY"`
	} `json:"extraAPY"`
	BorrowAPY json.RawMessage `json:"borrowApy"`
	PriceInfo struct {
		Price json.RawMessage `json:"price"`
	} `json:"priceInfo"`
}

var tokenAddressRe = regexp.MustCompile(`0x[a-fA-F0-9]+::[a-zA-Z_]+::[a-zA-Z_]+`)

// extractTokenAddress pulls the token address out of a fully qualified asset
// type string, returning the input unchanged when no address is embedded.
func extractTokenAddress(assetType string) string {
	if match := tokenAddressRe.FindString(assetType); match != "" {
		return match
	}
	return assetType
}

// toFloat parses a JSON number or numeric string, returning 0 otherwise.
func toFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			return parsed
		}
	}
	return 0
}

func toDecimal(raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 {
		return decimal.Zero
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if d, err := decimal.NewFromString(s); err == nil {
			return d
		}
		return decimal.Zero
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return decimal.NewFromFloat(f)
	}
	return decimal.Zero
}

var _ Feed = (*HTTPFeed)(nil)
