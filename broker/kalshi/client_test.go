package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/wxtrader/broker"
	"github.com/rustyeddy/wxtrader/config"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func key(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

// verifySig checks the signed headers the way the exchange does.
func verifySig(t *testing.T, r *http.Request) {
	t.Helper()
	ts := r.Header.Get(HeaderTimestamp)
	require.NotEmpty(t, ts)
	assert.Equal(t, "key-1", r.Header.Get(HeaderKey))

	sig, err := base64.StdEncoding.DecodeString(r.Header.Get(HeaderSignature))
	require.NoError(t, err)
	digest := sha256.Sum256([]byte(ts + r.Method + r.URL.Path))
	err = rsa.VerifyPSS(&key(t).PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	assert.NoError(t, err, "signature over %s %s", r.Method, r.URL.Path)
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/trade-api/v2", "key-1", key(t), 0)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(ProdURL, "", key(t), 1)
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = New(config.BrokerConfig{}, &config.EnvConfig{KeyID: "k"})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestBalance(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /trade-api/v2/portfolio/balance", func(w http.ResponseWriter, r *http.Request) {
		verifySig(t, r)
		_, _ = w.Write([]byte(`{"balance": 12345}`))
	})
	c := newTestClient(t, mux)

	b, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12345), b.Cents)
	assert.Equal(t, 123.45, b.Dollars())
}

func TestMarket(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /trade-api/v2/markets/{ticker}", func(w http.ResponseWriter, r *http.Request) {
		verifySig(t, r)
		if r.PathValue("ticker") != "KXHIGHNY-26FEB10-T52" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"market":{"ticker":"KXHIGHNY-26FEB10-T52","status":"closed","yes_bid":40,"yes_ask":44,"volume":310}}`))
	})
	c := newTestClient(t, mux)

	m, err := c.Market(context.Background(), "KXHIGHNY-26FEB10-T52")
	require.NoError(t, err)
	assert.Equal(t, "closed", m.Status)
	assert.False(t, m.IsOpen())
	assert.Equal(t, 44, m.YesAsk)
	assert.Equal(t, 310, m.Volume)

	_, err = c.Market(context.Background(), "KXHIGHNY-26FEB10-T99")
	assert.ErrorIs(t, err, broker.ErrMarketNotFound)
}

func TestPlaceOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /trade-api/v2/portfolio/orders", func(w http.ResponseWriter, r *http.Request) {
		verifySig(t, r)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var got broker.OrderRequest
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "no", got.Side)
		assert.Equal(t, 37, got.NoPrice)
		assert.Zero(t, got.YesPrice)
		assert.Equal(t, "buy", got.Action)
		assert.Equal(t, "limit", got.Type)

		if got.Count > 10 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"insufficient_balance"}}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"order":{"order_id":"o-1","status":"resting","ticker":"` + got.Ticker + `","side":"no","count":3}}`))
	})
	c := newTestClient(t, mux)

	fill, err := c.PlaceOrder(context.Background(), broker.LimitBuy("KXHIGHNY-26FEB10-T52", "NO", 3, 0.37))
	require.NoError(t, err)
	assert.Equal(t, "o-1", fill.OrderID)
	assert.Equal(t, "resting", fill.Status)
	assert.Equal(t, 3, fill.Count)

	_, err = c.PlaceOrder(context.Background(), broker.LimitBuy("KXHIGHNY-26FEB10-T52", "no", 50, 0.37))
	require.ErrorIs(t, err, broker.ErrRejected)
	assert.Contains(t, err.Error(), "insufficient_balance")
}

func TestServerErrorIsNotRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c := newTestClient(t, mux)

	_, err := c.PlaceOrder(context.Background(), broker.LimitBuy("X-T1", "yes", 1, 0.5))
	require.Error(t, err)
	assert.NotErrorIs(t, err, broker.ErrRejected)
	assert.Contains(t, err.Error(), "500")
}

func TestRateLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"balance":1}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, "key-1", key(t), 20)
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Balance(context.Background())
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestRateLimitHonorsContext(t *testing.T) {
	c, err := NewClient(ProdURL, "key-1", key(t), 0.001)
	require.NoError(t, err)
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Balance(ctx)
	assert.Error(t, err)
}

func TestLoadPrivateKey(t *testing.T) {
	dir := t.TempDir()

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key(t))})
	p1 := filepath.Join(dir, "pkcs1.pem")
	require.NoError(t, os.WriteFile(p1, pkcs1, 0o600))

	der, err := x509.MarshalPKCS8PrivateKey(key(t))
	require.NoError(t, err)
	p8 := filepath.Join(dir, "pkcs8.pem")
	require.NoError(t, os.WriteFile(p8, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600))

	for _, p := range []string{p1, p8} {
		k, err := LoadPrivateKey(p)
		require.NoError(t, err, p)
		assert.True(t, k.Equal(key(t)))
	}

	_, err = ParsePrivateKey([]byte("not pem"))
	assert.Error(t, err)

	_, err = LoadPrivateKey(filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)
}

func TestNewFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "k.pem")
	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key(t))})
	require.NoError(t, os.WriteFile(path, pkcs1, 0o600))

	c, err := New(config.BrokerConfig{BaseURL: DemoURL, OrdersPerSecond: 2}, &config.EnvConfig{KeyID: "key-1", KeyPath: path})
	require.NoError(t, err)
	assert.Equal(t, "/trade-api/v2", c.basePath)
	assert.Equal(t, DemoURL, c.baseURL)
}
