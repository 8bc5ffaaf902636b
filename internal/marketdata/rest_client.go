package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"portfolio-holdings/internal/config"
	"portfolio-holdings/internal/date"
	"portfolio-holdings/internal/models"
)

// ErrNotConfigured is returned by NewRestClient when no provider endpoint or key is set.
var ErrNotConfigured = errors.New("price provider not configured")

// RestClientInterface defines the interface for the price provider REST client.
type RestClientInterface interface {
	FetchPrices(ctx context.Context, security models.Security, from, to date.Date) ([]models.SecurityPrice, error)
}

// RestClient is a client for the security price REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client     *resty.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	maxRetries int
	pageLimit  int
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new price provider client.
func NewRestClient(cfg *config.Provider, logger *zap.Logger) (*RestClient, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json")
	if cfg.TimeoutSeconds > 0 {
		client.SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	return &RestClient{
		client:     client,
		logger:     logger.Named("marketdata"),
		limiter:    rate.NewLimiter(limit, burst),
		maxRetries: max(cfg.MaxRetries, 1),
		pageLimit:  cfg.PageLimit,
	}, nil
}

type pricePoint struct {
	Date  string          `json:"date"`
	Close decimal.Decimal `json:"close"`
}

type paging struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// PricesResponse represents one page of the /tickers/{ticker}/open-close endpoint.
type PricesResponse struct {
	Ticker   string       `json:"ticker"`
	Currency string       `json:"currency"`
	Prices   []pricePoint `json:"prices"`
	Paging   paging       `json:"paging"`
}

// FetchPrices returns the daily closing prices of security between from and
// to inclusive, following pagination. Points with an unparsable date or a
// non-positive close are skipped.
func (c *RestClient) FetchPrices(ctx context.Context, security models.Security, from, to date.Date) ([]models.SecurityPrice, error) {
	l := c.logger.With(
		zap.String("ticker", security.Ticker),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)

	var prices []models.SecurityPrice
	for page := 1; ; page++ {
		req := c.client.R().
			SetContext(ctx).
			SetPathParam("ticker", security.Ticker).
			SetQueryParams(map[string]string{
				"start_date": from.String(),
				"end_date":   to.String(),
				"page":       strconv.Itoa(page),
			}).
			SetResult(&PricesResponse{})
		if security.ExchangeMIC != "" {
			req.SetQueryParam("operating_mic_code", security.ExchangeMIC)
		}
		if c.pageLimit > 0 {
			req.SetQueryParam("limit", strconv.Itoa(c.pageLimit))
		}

		resp, err := c.doRequest(ctx, http.MethodGet, "/tickers/{ticker}/open-close", req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch prices for %s: %w", security.Ticker, err)
		}

		result := resp.Result().(*PricesResponse)
		currency := result.Currency
		if currency == "" {
			currency = security.Currency
		}
		for _, p := range result.Prices {
			d, err := date.Parse(p.Date)
			if err != nil || !p.Close.IsPositive() {
				l.Debug("Skipping invalid price point", zap.String("date", p.Date), zap.Stringer("close", p.Close))
				continue
			}
			prices = append(prices, models.SecurityPrice{
				SecurityID: security.ID,
				Date:       d,
				Price:      p.Close,
				Currency:   currency,
				Source:     models.PriceSourceProvider,
			})
		}

		if result.Paging.TotalPages <= page {
			break
		}
	}

	l.Debug("Fetched provider prices", zap.Int("count", len(prices)))
	return prices, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < c.maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			if !shouldRetry {
				return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
			}
			err = fmt.Errorf("request failed with status %s", resp.Status())
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if i == c.maxRetries-1 {
			break
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, err)
}
