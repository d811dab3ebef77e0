package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"lending-loop-lab/internal/domain"
)

// DefaultLlamaBaseURL is the DefiLlama yields API endpoint for lend/borrow charts.
const DefaultLlamaBaseURL = "https://yields.llama.fi/chartLendBorrow"

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// DefaultLlamaPools maps asset names (protocol_chain_asset) to DefiLlama pool IDs.
var DefaultLlamaPools = map[string]string{
	"aave_arb_usdc":  "d9fa8e14-0447-4207-9ae8-7810199dfa1f",
	"aave_arb_usdt":  "3a6cc030-738d-4e19-8a40-e63e9c4d5a6f",
	"aave_arb_usdce": "7aab7b0f-01c1-4467-bc0d-77826d870f19",
	"aave_arb_dai":   "a8e3d841-2788-4647-ad54-5a36fac451b1",
	"aave_pol_usdc":  "1b8b4cdb-0728-42a8-bf13-2c8fea7427ee",
	"aave_pol_usdt":  "7e7821a2-3d20-4ae7-9c3d-04cd57904555",
	"aave_pol_dai":   "c57bdc97-3100-41ff-845f-075363f6f5a4",
	"aave_pol_usdce": "37b04faa-95bb-4ccb-9c4e-c70fa167342b",
	"comp_arb_usdc":  "d9c395b9-00d0-4426-a6b3-572a6dd68e54",
	"comp_pol_usdc":  "a17d8b32-48cb-4446-aad7-ed4278f144e0",
	"comp_eth_usdc":  "7da72d09-56ca-4ec5-a45f-59114353e487",
}

// LlamaSource fetches historical lend/borrow rates from the DefiLlama yields API.
type LlamaSource struct {
	baseURL     string
	pools       map[string]string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// LlamaOption configures LlamaSource.
type LlamaOption func(*LlamaSource)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) LlamaOption {
	return func(s *LlamaSource) {
		s.baseURL = url
	}
}

// WithPools overrides the asset-to-pool-ID mapping.
func WithPools(pools map[string]string) LlamaOption {
	return func(s *LlamaSource) {
		s.pools = pools
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) LlamaOption {
	return func(s *LlamaSource) {
		s.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) LlamaOption {
	return func(s *LlamaSource) {
		s.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) LlamaOption {
	return func(s *LlamaSource) {
		s.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) LlamaOption {
	return func(s *LlamaSource) {
		s.client = client
	}
}

// NewLlamaSource creates a DefiLlama rate source.
func NewLlamaSource(opts ...LlamaOption) *LlamaSource {
	s := &LlamaSource{
		baseURL:     DefaultLlamaBaseURL,
		pools:       DefaultLlamaPools,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assets returns the configured asset names.
func (s *LlamaSource) Assets() []string {
	assets := make([]string, 0, len(s.pools))
	for asset := range s.pools {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

// llamaChartResponse is the chartLendBorrow response envelope.
type llamaChartResponse struct {
	Status string            `json:"status"`
	Data   []llamaChartPoint `json:"data"`
}

// llamaChartPoint is one daily data point. APY fields are pointers because
// the API reports null for pools with no activity on a given day.
type llamaChartPoint struct {
	Timestamp     string   `json:"timestamp"`
	APYBase       *float64 `json:"apyBase"`
	APYBaseBorrow *float64 `json:"apyBaseBorrow"`
}

// Fetch returns observations for an asset within [from, to].
// Null APY values are recorded as zero so downstream availability
// masking treats those days as missing data.
func (s *LlamaSource) Fetch(ctx context.Context, asset string, from, to int64) ([]domain.RateObservation, error) {
	poolID, ok := s.pools[asset]
	if !ok {
		return nil, fmt.Errorf("unknown asset %q: %w", asset, domain.ErrInvalidParameter)
	}
	if poolID == "" {
		return nil, nil
	}

	body, err := s.get(ctx, fmt.Sprintf("%s/%s", s.baseURL, poolID))
	if err != nil {
		return nil, err
	}

	var resp llamaChartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal chart response: %w", err)
	}

	observations := make([]domain.RateObservation, 0, len(resp.Data))
	for _, point := range resp.Data {
		ts, err := parseLlamaTimestamp(point.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", point.Timestamp, err)
		}
		if ts < from || ts > to {
			continue
		}
		obs := domain.RateObservation{
			Timestamp: ts,
			Asset:     asset,
		}
		if point.APYBase != nil {
			obs.SupplyAPY = *point.APYBase
		}
		if point.APYBaseBorrow != nil {
			obs.BorrowAPY = *point.APYBaseBorrow
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

// get performs an HTTP GET with retries and exponential backoff.
func (s *LlamaSource) get(ctx context.Context, url string) ([]byte, error) {
	delay := s.retryDelay
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * s.backoffMult)
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// llamaTimestampLayouts are the timestamp formats observed in the API.
var llamaTimestampLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
	"2006-01-02",
}

func parseLlamaTimestamp(value string) (int64, error) {
	var lastErr error
	for _, layout := range llamaTimestampLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.Unix(), nil
		}
		lastErr = err
	}
	return 0, lastErr
}
