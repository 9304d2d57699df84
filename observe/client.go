// Package observe fetches realized daily temperature extremes from the
// National Weather Service observation API.
package observe

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/wxtrader/config"
	"github.com/rustyeddy/wxtrader/ledger"
	"github.com/rustyeddy/wxtrader/logs"
	"github.com/rustyeddy/wxtrader/market"
	"github.com/rustyeddy/wxtrader/metrics"
)

const (
	DefaultBaseURL   = "https://api.weather.gov"
	DefaultUserAgent = "wxtrader/1.0 (prediction-market trading)"
	DefaultTimeout   = 15 * time.Second
	DefaultMaxTries  = 3
)

// lateReports extends the window into the next morning for reports filed
// after midnight UTC.
const lateReports = 6 * time.Hour

// Client implements settlement.Observer against api.weather.gov.
type Client struct {
	baseURL    string
	userAgent  string
	maxTries   uint
	stations   *market.Registry
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

// NewClient builds a client from cfg. A nil registry observes station ids
// directly.
func NewClient(cfg config.ObserveConfig, stations *market.Registry) (*Client, error) {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		maxTries:   DefaultMaxTries,
		stations:   stations,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if cfg.MaxRetries > 0 {
		c.maxTries = uint(cfg.MaxRetries) + 1
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("observe timeout: %w", err)
		}
		c.httpClient.Timeout = d
	}
	return c, nil
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpClient = h
	return c
}

type observationsResponse struct {
	Features []struct {
		Properties struct {
			Timestamp   string `json:"timestamp"`
			Temperature struct {
				Value    *float64 `json:"value"`
				UnitCode string   `json:"unitCode"`
			} `json:"temperature"`
		} `json:"properties"`
	} `json:"features"`
}

// Observe returns the high and low for station on date (YYYY-MM-DD). A nil
// observation with a nil error means the service had no readings.
func (c *Client) Observe(ctx context.Context, station, date string) (*ledger.Observation, error) {
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return nil, fmt.Errorf("observe %s: bad date %q: %w", station, date, err)
	}

	obsID := strings.ToUpper(station)
	if c.stations != nil {
		if s, ok := c.stations.Get(station); ok {
			obsID = s.ObservationStation
		}
	}

	q := url.Values{}
	q.Set("start", day.Format(time.RFC3339))
	q.Set("end", day.Add(24*time.Hour+lateReports).Format(time.RFC3339))
	u := fmt.Sprintf("%s/stations/%s/observations?%s", c.baseURL, url.PathEscape(obsID), q.Encode())

	resp, err := backoff.Retry(ctx, func() (*observationsResponse, error) {
		return c.fetch(ctx, u)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logs.WithFields(logrus.Fields{"station": station, "date": date, "wait": wait}).
				WithError(err).Warn("observation fetch failed, retrying")
		}),
	)
	if err != nil {
		metrics.ObservationFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("observe %s %s: %w", station, date, err)
	}

	obs := summarize(resp)
	if obs == nil {
		metrics.ObservationFetches.WithLabelValues("empty").Inc()
		return nil, nil
	}
	obs.Station = strings.ToUpper(station)
	obs.Date = date
	metrics.ObservationFetches.WithLabelValues("ok").Inc()
	return obs, nil
}

func (c *Client) fetch(ctx context.Context, u string) (*observationsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/geo+json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		err := fmt.Errorf("%s returned %d: %s", u, res.StatusCode, strings.TrimSpace(string(body)))
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var out observationsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode observations: %w", err))
	}
	return &out, nil
}

func summarize(resp *observationsResponse) *ledger.Observation {
	var (
		n        int
		hi, lo   float64
		haveTemp bool
	)
	for _, f := range resp.Features {
		v := f.Properties.Temperature.Value
		if v == nil {
			continue
		}
		c := *v
		if strings.HasSuffix(f.Properties.Temperature.UnitCode, "degF") {
			c = (c - 32) * 5 / 9
		}
		if !haveTemp {
			hi, lo, haveTemp = c, c, true
		}
		hi = math.Max(hi, c)
		lo = math.Min(lo, c)
		n++
	}
	if n == 0 {
		return nil
	}
	return &ledger.Observation{
		HighF:        CToF(hi),
		LowF:         CToF(lo),
		Observations: n,
	}
}

// CToF converts Celsius to Fahrenheit rounded to 0.1.
func CToF(c float64) float64 {
	return math.Round((c*9/5+32)*10) / 10
}
