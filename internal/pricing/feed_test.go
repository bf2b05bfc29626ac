package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHistoricalPricesMissingAsset(t *testing.T) {
	f := NewFeed(FeedOptions{}, noopLogger())
	if _, err := f.HistoricalPrices(context.Background(), "", 31); err == nil {
		t.Fatal("缺少 asset id 时应返回错误")
	}
}

func TestHistoricalPricesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	f := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := f.HistoricalPrices(context.Background(), "ethereum", 31); err == nil {
		t.Fatal("HTTP 429 应返回错误")
	}
}

func TestHistoricalPricesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/ethereum/market_chart" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("vs_currency"); got != "usd" {
			t.Errorf("vs_currency = %q", got)
		}
		if got := r.URL.Query().Get("days"); got != "31" {
			t.Errorf("days = %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"prices": [][]float64{
				{1717200000000, 3800.5},
				{1717286400000, 3825.25},
				{1717372800000}, // malformed point, skipped
			},
		})
	}))
	defer srv.Close()

	f := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, noopLogger())

	samples, err := f.HistoricalPrices(context.Background(), "ethereum", 31)
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("期望 2 个样本, 实际 %d", len(samples))
	}
	if samples[0].Price != 3800.5 {
		t.Fatalf("首个样本价格 = %v", samples[0].Price)
	}
	want := time.UnixMilli(1717200000000).UTC()
	if !samples[0].Timestamp.Equal(want) {
		t.Fatalf("首个样本时间 = %v, 期望 %v", samples[0].Timestamp, want)
	}
}

func TestHistoricalPricesEmptySeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prices":[]}`))
	}))
	defer srv.Close()

	f := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := f.HistoricalPrices(context.Background(), "ethereum", 31); err == nil {
		t.Fatal("空序列应返回错误")
	}
}
