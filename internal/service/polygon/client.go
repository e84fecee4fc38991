package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"Aurelius/internal/domain/models"
	drepo "Aurelius/internal/domain/repository"
	"Aurelius/pkg/cache"
	xhttp "Aurelius/pkg/http"
	applogger "Aurelius/pkg/logger"
	"Aurelius/pkg/util"
)

const (
	EndpointAggregates = "aggregates"
	EndpointReference  = "reference"

	apiKeyParam = "apiKey"
)

// Gate serializes outbound requests. Allow takes a grant without blocking
// when one is due; Wait blocks for the next one.
type Gate interface {
	Allow() bool
	Wait(ctx context.Context) error
	Interval() time.Duration
}

// Client fetches aggregate bars and reference snapshots, one request at a time
// through a shared gate. It never retries.
type Client struct {
	http     *xhttp.Client
	gate     Gate
	cache    cache.Service
	cacheTTL time.Duration
	metrics  drepo.Metrics
	logger   *applogger.Logger
	now      func() time.Time

	baseURL  string
	apiKey   string
	timeout  time.Duration
	adjusted bool
	limit    int
}

type Option func(*Client)

// WithTimeout sets the deadline applied to each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCache stores successful raw responses so repeated units skip the provider.
func WithCache(s cache.Service, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = s
		c.cacheTTL = ttl
	}
}

func WithMetrics(m drepo.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithAdjusted toggles split-adjusted aggregates.
func WithAdjusted(adjusted bool) Option {
	return func(c *Client) { c.adjusted = adjusted }
}

// WithLimit caps the number of bars per aggregates request.
func WithLimit(n int) Option {
	return func(c *Client) { c.limit = n }
}

// WithNow overrides the clock used for ingestion timestamps and for deciding
// whether a response may be cached.
func WithNow(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a provider client rooted at baseURL.
func New(baseURL, apiKey string, gate Gate, opts ...Option) *Client {
	c := &Client{
		gate:     gate,
		logger:   applogger.Nop(),
		now:      time.Now,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		timeout:  30 * time.Second,
		adjusted: true,
		limit:    50000,
	}
	for _, opt := range opts {
		opt(c)
	}
	// the per-request deadline is enforced through the context
	c.http = xhttp.NewClient(xhttp.WithTimeout(0), xhttp.WithRedactedParams(apiKeyParam))
	return c
}

// Fetch issues one request for req and returns its validated records.
// An empty result is an empty batch, not an error.
func (c *Client) Fetch(ctx context.Context, req drepo.FetchRequest) (*models.RecordBatch, error) {
	endpoint, path, query, err := c.build(req)
	if err != nil {
		return nil, err
	}

	body, cached, err := c.get(ctx, endpoint, path, query)
	if err != nil {
		return nil, err
	}

	var batch *models.RecordBatch
	switch req.Kind {
	case drepo.KindBars:
		batch, err = c.decodeAggregates(req, body)
	case drepo.KindMarketCap:
		batch, err = c.decodeReference(req, body)
	}
	if err != nil {
		c.record(endpoint, "error", 0)
		return nil, &models.FetchError{Endpoint: endpoint, Err: err}
	}

	if !cached && c.cache != nil && c.windowClosed(req) {
		if err := c.cache.Set(ctx, cacheKey(path, query), body, c.cacheTTL); err != nil {
			c.logger.Warn("response cache write failed", applogger.String("endpoint", endpoint), applogger.Error(err))
		}
	}
	return batch, nil
}

func (c *Client) build(req drepo.FetchRequest) (endpoint, path string, query map[string][]string, err error) {
	if req.Ticker == "" {
		return "", "", nil, fmt.Errorf("fetch: ticker is required")
	}
	ticker := url.PathEscape(req.Ticker)
	switch req.Kind {
	case drepo.KindBars:
		iv := req.Interval
		if iv.Multiplier == 0 {
			iv = drepo.DefaultInterval(req.Table)
		}
		path = fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
			ticker, iv.Multiplier, iv.Timespan, util.FormatDate(req.From), util.FormatDate(req.To))
		query = map[string][]string{
			"adjusted": {strconv.FormatBool(c.adjusted)},
			"sort":     {"asc"},
			"limit":    {strconv.Itoa(c.limit)},
		}
		return EndpointAggregates, path, query, nil
	case drepo.KindMarketCap:
		path = fmt.Sprintf("/v3/reference/tickers/%s", ticker)
		query = map[string][]string{"date": {util.FormatDate(req.From)}}
		return EndpointReference, path, query, nil
	default:
		return "", "", nil, fmt.Errorf("fetch: unsupported table kind %q", req.Kind)
	}
}

// windowClosed reports whether req ends before today (UTC). The provider may
// still add bars to a window that ends today or later, so those responses are
// not cached.
func (c *Client) windowClosed(req drepo.FetchRequest) bool {
	end := req.To
	if end.IsZero() {
		end = req.From
	}
	return util.FormatDate(end) < util.FormatDate(c.now().UTC())
}

// get returns the raw body for path, from the cache or through the gate.
func (c *Client) get(ctx context.Context, endpoint, path string, query map[string][]string) ([]byte, bool, error) {
	var body []byte
	if c.cache != nil {
		if err := c.cache.Get(ctx, cacheKey(path, query), &body); err == nil {
			c.record(endpoint, "cached", 0)
			return body, true, nil
		}
	}

	var waited time.Duration
	if !c.gate.Allow() {
		c.logger.Debug("rate gate throttling request",
			applogger.String("endpoint", endpoint),
			applogger.Duration("interval", c.gate.Interval()),
		)
		waitStart := time.Now()
		if err := c.gate.Wait(ctx); err != nil {
			return nil, false, fmt.Errorf("rate gate: %w", err)
		}
		waited = time.Since(waitStart)
	}
	if c.metrics != nil {
		c.metrics.RecordGateWait(waited.Seconds())
	}

	params := make(map[string][]string, len(query)+1)
	for k, v := range query {
		params[k] = v
	}
	params[apiKeyParam] = []string{c.apiKey}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.http.SendAndParse(reqCtx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: params,
		Headers:     map[string]string{"Accept": "application/json"},
	}, &body)
	elapsed := time.Since(start).Seconds()

	if err == nil {
		c.record(endpoint, "ok", elapsed)
		return body, false, nil
	}

	// the caller's context ending is a cancellation of the run, not a unit failure
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	var se *xhttp.StatusError
	switch {
	case errors.As(err, &se):
		c.record(endpoint, "http_error", elapsed)
		return nil, false, &models.FetchError{Endpoint: endpoint, Status: se.Status, Err: err}
	case isTimeout(reqCtx, err):
		c.record(endpoint, "timeout", elapsed)
		return nil, false, &models.FetchError{Endpoint: endpoint, Timeout: true, Err: err}
	default:
		c.record(endpoint, "error", elapsed)
		return nil, false, &models.FetchError{Endpoint: endpoint, Err: err}
	}
}

func (c *Client) decodeAggregates(req drepo.FetchRequest, body []byte) (*models.RecordBatch, error) {
	var resp aggregatesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode aggregates: %w", err)
	}
	if strings.EqualFold(resp.Status, "ERROR") {
		return nil, fmt.Errorf("provider error: %s", resp.Error)
	}

	ticker := resp.Ticker
	if ticker == "" {
		ticker = req.Ticker
	}
	batch := &models.RecordBatch{Ticker: ticker, RequestID: resp.RequestID}
	ingestedAt := c.now()

	for i, raw := range resp.Results {
		bar, shapeErr := parseBar(raw, i, ticker)
		if shapeErr != nil {
			batch.Rejected = append(batch.Rejected, shapeErr)
			continue
		}
		bar.ResultsCount = resp.ResultsCount.Int64()
		bar.RequestID = resp.RequestID
		bar.IngestedAt = ingestedAt
		batch.Bars = append(batch.Bars, bar)
	}
	return batch, nil
}

var barFields = []string{"t", "o", "h", "l", "c", "v", "vw", "n"}

func parseBar(raw json.RawMessage, index int, ticker string) (models.Bar, *models.RecordShapeError) {
	var o object
	if err := json.Unmarshal(raw, &o); err != nil {
		return models.Bar{}, &models.RecordShapeError{Ticker: ticker, Index: index, Field: "<object>"}
	}

	ints := make(map[string]int64, 3)
	floats := make(map[string]float64, 5)
	for _, f := range barFields {
		switch f {
		case "t", "v", "n":
			v, ok := o.intField(f)
			if !ok {
				return models.Bar{}, &models.RecordShapeError{Ticker: ticker, Index: index, Field: f}
			}
			ints[f] = v
		default:
			v, ok := o.floatField(f)
			if !ok {
				return models.Bar{}, &models.RecordShapeError{Ticker: ticker, Index: index, Field: f}
			}
			floats[f] = v
		}
	}

	dt := util.Datetime(ints["t"])
	return models.Bar{
		Timestamp:      ints["t"],
		Datetime:       dt,
		Date:           dt[:10],
		Ticker:         ticker,
		Open:           floats["o"],
		High:           floats["h"],
		Low:            floats["l"],
		Close:          floats["c"],
		Volume:         ints["v"],
		VolumeWeighted: floats["vw"],
		Trades:         ints["n"],
	}, nil
}

func (c *Client) decodeReference(req drepo.FetchRequest, body []byte) (*models.RecordBatch, error) {
	var resp referenceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode reference: %w", err)
	}
	if strings.EqualFold(resp.Status, "ERROR") {
		return nil, fmt.Errorf("provider error: %s", resp.Error)
	}

	batch := &models.RecordBatch{Ticker: req.Ticker, RequestID: resp.RequestID}
	if !present(resp.Results) {
		return batch, nil
	}

	var o object
	if err := json.Unmarshal(resp.Results, &o); err != nil {
		batch.Rejected = append(batch.Rejected, &models.RecordShapeError{Ticker: req.Ticker, Field: "results"})
		return batch, nil
	}

	ticker, ok := o.stringField("ticker")
	if !ok {
		ticker = req.Ticker
	}
	rec := models.MarketCapRecord{
		Date:       util.FormatDate(req.From),
		Ticker:     ticker,
		RequestID:  resp.RequestID,
		IngestedAt: c.now(),
	}
	for _, f := range []struct {
		key string
		dst *int64
	}{
		{"share_class_shares_outstanding", &rec.ShareClassSharesOutstanding},
		{"weighted_shares_outstanding", &rec.WeightedSharesOutstanding},
		{"market_cap", &rec.MarketCap},
	} {
		v, ok := o.intField(f.key)
		if !ok {
			batch.Rejected = append(batch.Rejected, &models.RecordShapeError{Ticker: ticker, Field: f.key})
			return batch, nil
		}
		*f.dst = v
	}
	batch.MarketCaps = append(batch.MarketCaps, rec)
	return batch, nil
}

func (c *Client) record(endpoint, result string, seconds float64) {
	if c.metrics != nil {
		c.metrics.RecordFetch(endpoint, result, seconds)
	}
}

func isTimeout(reqCtx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// cacheKey identifies a request without its credentials.
func cacheKey(path string, query map[string][]string) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(path)
	for _, k := range keys {
		b.WriteString("&")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strings.Join(query[k], ","))
	}
	return cache.GenerateKey("polygon", cache.HashKey(b.String()))
}
