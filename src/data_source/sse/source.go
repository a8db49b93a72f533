// Package sse is the live stream source: one long-lived GET against the bot backend's
// event-stream endpoint, decoded into envelopes.
package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"trading-console/src/events"
	"trading-console/src/helpers"
	"trading-console/src/interfaces"
	"trading-console/src/logger"
	"trading-console/src/metrics"
	"trading-console/src/models"
)

// Source streams envelopes from <api_base>/stream
type Source struct {
	Config *models.MConfig
	Logger *logger.Logger
	Client *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
}

// -----------------------------------------------------------------------------

// NewSource builds a live source. client must not carry an overall timeout since the
// response body stays open for the whole connection; nil uses a plain client.
func NewSource(cfg *models.MConfig, log *logger.Logger, client *http.Client) *Source {
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport}
	}
	return &Source{Config: cfg, Logger: log, Client: client}
}

// -----------------------------------------------------------------------------

func (s *Source) Name() string {
	return "sse"
}

// -----------------------------------------------------------------------------

// StreamURL returns the endpoint including the token query parameter when configured
func StreamURL(apiBase, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiBase, "/") + "/stream")
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("api base %q is not an absolute http(s) url", apiBase)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// -----------------------------------------------------------------------------

// Start opens the stream from a background goroutine. Ready follows the 200 response.
func (s *Source) Start(ctx context.Context, sink interfaces.ISourceSink) error {
	streamURL, err := StreamURL(s.Config.Stream.APIBase, s.Config.Stream.Token)
	if err != nil {
		return helpers.NewConfigurationError("invalid stream url", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		cancel()
		return helpers.NewTransportError("building stream request", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if ua := s.Config.Network.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx, req, sink)
	return nil
}

// -----------------------------------------------------------------------------

// Stop aborts the request; the read loop exits without reporting a failure
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *Source) run(ctx context.Context, req *http.Request, sink interfaces.ISourceSink) {
	resp, err := s.Client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			sink.Fail(helpers.NewTransportError("stream request failed", err))
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		sink.Fail(helpers.NewTransportError(fmt.Sprintf("stream returned status %d", resp.StatusCode), nil))
		return
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		s.Logger.Warning("Stream content type is %q, decoding anyway", ct)
	}

	s.Logger.Info("Stream open at %s/stream", strings.TrimRight(s.Config.Stream.APIBase, "/"))
	sink.Ready()

	dec := NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()
		if errors.Is(err, ErrEventTooLong) {
			metrics.MalformedMessages.WithLabelValues(s.Name()).Inc()
			s.Logger.Warning("Dropping oversized %q event", ev.Name)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				sink.Fail(helpers.NewTransportError("stream closed by server", err))
			} else {
				sink.Fail(helpers.NewTransportError("stream read failed", err))
			}
			return
		}

		env, err := events.Decode(ev.Name, []byte(ev.Data))
		if err != nil {
			metrics.MalformedMessages.WithLabelValues(s.Name()).Inc()
			s.Logger.Warning("Dropping malformed %q event: %v", ev.Name, err)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		sink.Emit(env)
	}
}
