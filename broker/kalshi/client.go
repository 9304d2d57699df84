// Package kalshi is the live exchange client behind broker.Broker.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/wxtrader/broker"
	"github.com/rustyeddy/wxtrader/config"
)

const (
	// ProdURL is the production trading API.
	ProdURL = "https://api.elections.kalshi.com/trade-api/v2"
	// DemoURL is the demo environment.
	DemoURL = "https://demo-api.kalshi.co/trade-api/v2"
)

// Signed request headers.
const (
	HeaderKey       = "KALSHI-ACCESS-KEY"
	HeaderSignature = "KALSHI-ACCESS-SIGNATURE"
	HeaderTimestamp = "KALSHI-ACCESS-TIMESTAMP"
)

var ErrNoCredentials = errors.New("kalshi credentials not configured")

// Client signs every request with the account's RSA key and throttles
// calls through a token bucket.
type Client struct {
	baseURL    string
	basePath   string
	keyID      string
	key        *rsa.PrivateKey
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

var _ broker.Broker = (*Client)(nil)

// NewClient creates a client for baseURL. ordersPerSecond <= 0 disables
// throttling.
func NewClient(baseURL, keyID string, key *rsa.PrivateKey, ordersPerSecond float64) (*Client, error) {
	if keyID == "" || key == nil {
		return nil, ErrNoCredentials
	}
	if baseURL == "" {
		baseURL = ProdURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("kalshi base url: %w", err)
	}

	limit := rate.Inf
	if ordersPerSecond > 0 {
		limit = rate.Limit(ordersPerSecond)
	}
	return &Client{
		baseURL:  u.String(),
		basePath: u.Path,
		keyID:    keyID,
		key:      key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}, nil
}

// New builds a client from config and the environment credentials.
func New(cfg config.BrokerConfig, env *config.EnvConfig) (*Client, error) {
	if env == nil || env.KeyID == "" || env.KeyPath == "" {
		return nil, fmt.Errorf("%w: set %s and %s", ErrNoCredentials, config.EnvKalshiKeyID, config.EnvKalshiKey)
	}
	key, err := LoadPrivateKey(env.KeyPath)
	if err != nil {
		return nil, err
	}
	return NewClient(cfg.BaseURL, env.KeyID, key, cfg.OrdersPerSecond)
}

// LoadPrivateKey reads a PEM encoded RSA key in PKCS#1 or PKCS#8 form.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kalshi key: %w", err)
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey decodes a PEM encoded RSA key.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("kalshi key: no PEM block")
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("kalshi key: %w", err)
	}
	k, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("kalshi key: not an RSA key")
	}
	return k, nil
}

// sign returns the base64 RSA-PSS signature over timestamp, method and the
// full request path without its query string.
func (c *Client) sign(ts, method, resource string) (string, error) {
	path, _, _ := strings.Cut(resource, "?")
	msg := ts + strings.ToUpper(method) + c.basePath + path
	digest := sha256.Sum256([]byte(msg))
	sig, err := rsa.SignPSS(rand.Reader, c.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// apiError is a non-2xx response.
type apiError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("kalshi %s %s: %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (c *Client) do(ctx context.Context, method, resource string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+resource, rdr)
	if err != nil {
		return err
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	sig, err := c.sign(ts, method, resource)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	req.Header.Set(HeaderKey, c.keyID)
	req.Header.Set(HeaderSignature, sig)
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kalshi %s %s: %w", method, resource, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{Method: method, Path: resource, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", resource, err)
	}
	return nil
}

// Balance returns the available cash.
func (c *Client) Balance(ctx context.Context) (broker.Balance, error) {
	var b broker.Balance
	err := c.do(ctx, http.MethodGet, "/portfolio/balance", nil, &b)
	return b, err
}

// Market returns the current state of one market.
func (c *Client) Market(ctx context.Context, ticker string) (broker.Market, error) {
	var resp struct {
		Market broker.Market `json:"market"`
	}
	err := c.do(ctx, http.MethodGet, "/markets/"+url.PathEscape(ticker), nil, &resp)
	var ae *apiError
	if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
		return broker.Market{}, fmt.Errorf("%w: %s", broker.ErrMarketNotFound, ticker)
	}
	if err != nil {
		return broker.Market{}, err
	}
	if resp.Market.Ticker == "" {
		resp.Market.Ticker = ticker
	}
	return resp.Market, nil
}

// PlaceOrder submits a limit order. Client errors are reported as
// broker.ErrRejected.
func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderFill, error) {
	if req.Type == "" {
		req.Type = "limit"
	}
	if req.Action == "" {
		req.Action = "buy"
	}
	var resp struct {
		Order broker.OrderFill `json:"order"`
	}
	err := c.do(ctx, http.MethodPost, "/portfolio/orders", req, &resp)
	var ae *apiError
	if errors.As(err, &ae) && ae.Status >= 400 && ae.Status < 500 {
		return broker.OrderFill{}, fmt.Errorf("%w: %s", broker.ErrRejected, ae.Error())
	}
	if err != nil {
		return broker.OrderFill{}, err
	}
	return resp.Order, nil
}
