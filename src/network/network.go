package network

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"trading-console/src/helpers"
	"trading-console/src/logger"
	"trading-console/src/models"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxResponseSize = 16 << 20

var retryBaseDelay = 500 * time.Millisecond

type AsyncNetworkManager struct {
	Config       *models.MConfig
	ProxyManager *helpers.ProxyManager
	Client       *http.Client
	Logger       *logger.Logger

	transport *http.Transport
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	nm := &AsyncNetworkManager{
		Config:       cfg,
		ProxyManager: helpers.NewProxyManager(cfg.Network.Proxies, log),
		Logger:       log,
	}
	nm.transport = &http.Transport{
		Proxy:                 nm.ProxyManager.Proxy,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	nm.Client = &http.Client{
		Transport: nm.transport,
		Timeout:   time.Duration(cfg.Network.RequestTimeout) * time.Second,
	}
	return nm
}

// -----------------------------------------------------------------------------

// StreamClient shares the transport but has no overall timeout, for long-lived responses
func (nm *AsyncNetworkManager) StreamClient() *http.Client {
	return &http.Client{Transport: nm.transport}
}

// -----------------------------------------------------------------------------

// Do performs a request with retries. body is JSON-encoded when non-nil.
// 2xx replies return their body; others yield *helpers.APIError.
func (nm *AsyncNetworkManager) Do(ctx context.Context, method, url string, body interface{}, headers map[string]string) ([]byte, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, helpers.NewValidationError("encoding request body", err)
		}
		payload = b
	}

	var result []byte
	err := helpers.RetryWithBackoff(ctx, nm.Logger, op(method, url), nm.Config.Network.MaxRetries, retryBaseDelay, func() error {
		out, err := nm.once(ctx, method, url, payload, headers)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) once(ctx context.Context, method, url string, payload []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, helpers.NewValidationError("building request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", nm.Config.Network.UserAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := nm.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, helpers.NewNetworkError(op(method, url), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, helpers.NewNetworkError("reading response of "+op(method, url), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden {
			nm.ProxyManager.RotateProxy()
		}
		return nil, helpers.NewAPIError(resp.StatusCode, truncate(string(data), 256))
	}
	return data, nil
}

func op(method, url string) string {
	return method + " " + url
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
