// Package apiclient talks to the bot backend's REST surface.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"trading-console/src/helpers"
	"trading-console/src/interfaces"
	"trading-console/src/logger"
	"trading-console/src/models"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Backend paths, relative to the API base
const (
	PathSignals     = "/signals"
	PathPositions   = "/state/positions"
	PathOrders      = "/state/orders"
	PathTrades      = "/state/trades"
	PathCandles     = "/candles"
	PathBotStatus   = "/bot/status"
	PathBotAction   = "/bot"
	PathSettings    = "/settings"
	PathDecisionLog = "/decision-log"
)

// Client wraps the REST endpoints. Every call carries the bearer token when one is configured.
type Client struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Network interfaces.INetworkManager

	base  string
	token string
}

func NewClient(cfg *models.MConfig, log *logger.Logger, nm interfaces.INetworkManager) *Client {
	return &Client{
		Config:  cfg,
		Logger:  log,
		Network: nm,
		base:    strings.TrimRight(cfg.Stream.APIBase, "/"),
		token:   cfg.Stream.Token,
	}
}

// -----------------------------------------------------------------------------
// Plumbing
// -----------------------------------------------------------------------------

func (c *Client) url(path string, query url.Values) string {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) headers() map[string]string {
	if c.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + c.token}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	return c.Network.Do(ctx, method, c.url(path, query), body, c.headers())
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	data, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return helpers.NewDecodeError("decoding "+path, err)
	}
	return nil
}

// decodeList accepts either a bare array or an {"items": [...]} envelope
func decodeList[T any](path string, data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []T{}, nil
	}

	if trimmed[0] == '[' {
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, helpers.NewDecodeError("decoding "+path, err)
		}
		return out, nil
	}

	var wrapped struct {
		Items []T `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, helpers.NewDecodeError("decoding "+path, err)
	}
	if wrapped.Items == nil {
		return []T{}, nil
	}
	return wrapped.Items, nil
}

func getList[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	data, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[T](path, data)
}

// -----------------------------------------------------------------------------
// Signals
// -----------------------------------------------------------------------------

// ListSignals returns signals, optionally filtered by status
func (c *Client) ListSignals(ctx context.Context, status string) ([]models.MSignal, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {status}}
	}
	return getList[models.MSignal](ctx, c, PathSignals, q)
}

func (c *Client) ApproveSignal(ctx context.Context, id, comment string) error {
	return c.signalAction(ctx, id, "approve", comment)
}

func (c *Client) RejectSignal(ctx context.Context, id, comment string) error {
	return c.signalAction(ctx, id, "reject", comment)
}

func (c *Client) signalAction(ctx context.Context, id, action, comment string) error {
	if id == "" {
		return helpers.NewValidationError("signal id is required", nil)
	}
	path := PathSignals + "/" + url.PathEscape(id) + "/" + action
	_, err := c.do(ctx, http.MethodPost, path, nil, map[string]string{"comment": comment})
	return err
}

// -----------------------------------------------------------------------------
// State
// -----------------------------------------------------------------------------

func (c *Client) ListPositions(ctx context.Context) ([]models.MPosition, error) {
	return getList[models.MPosition](ctx, c, PathPositions, nil)
}

func (c *Client) ListOrders(ctx context.Context) ([]models.MOrder, error) {
	return getList[models.MOrder](ctx, c, PathOrders, nil)
}

func (c *Client) ListTrades(ctx context.Context) ([]models.MTrade, error) {
	return getList[models.MTrade](ctx, c, PathTrades, nil)
}

// -----------------------------------------------------------------------------
// Candles
// -----------------------------------------------------------------------------

type wireCandle struct {
	Time   float64 `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// msThreshold separates second timestamps from millisecond ones (year 5138 in seconds)
const msThreshold = 1e11

// GetCandles returns the history of one series, ascending. Millisecond timestamps are
// converted to seconds.
func (c *Client) GetCandles(ctx context.Context, instrument, tf string) ([]models.MCandle, error) {
	if instrument == "" {
		return nil, helpers.NewValidationError("instrument is required", nil)
	}
	var q url.Values
	if tf != "" {
		q = url.Values{"tf": {tf}}
	}
	path := PathCandles + "/" + url.PathEscape(instrument)
	wire, err := getList[wireCandle](ctx, c, path, q)
	if err != nil {
		return nil, err
	}

	out := make([]models.MCandle, 0, len(wire))
	for _, w := range wire {
		t := w.Time
		if t > msThreshold {
			t /= 1000
		}
		out = append(out, models.MCandle{
			Time:   int64(math.Floor(t)),
			Open:   w.Open,
			High:   w.High,
			Low:    w.Low,
			Close:  w.Close,
			Volume: int64(math.Round(w.Volume)),
		})
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Bot
// -----------------------------------------------------------------------------

func (c *Client) GetBotStatus(ctx context.Context) (models.MBotStatus, error) {
	var st models.MBotStatus
	err := c.getJSON(ctx, PathBotStatus, nil, &st)
	return st, err
}

func (c *Client) StartBot(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, PathBotAction+"/start", nil, nil)
	return err
}

func (c *Client) StopBot(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, PathBotAction+"/stop", nil, nil)
	return err
}

// -----------------------------------------------------------------------------
// Settings & activity
// -----------------------------------------------------------------------------

func (c *Client) GetSettings(ctx context.Context) (models.MRiskSettings, error) {
	var s models.MRiskSettings
	err := c.getJSON(ctx, PathSettings, nil, &s)
	return s, err
}

func (c *Client) UpdateSettings(ctx context.Context, s models.MRiskSettings) error {
	_, err := c.do(ctx, http.MethodPut, PathSettings, nil, s)
	return err
}

func (c *Client) ListDecisionLog(ctx context.Context, limit int) ([]models.MDecisionLog, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	return getList[models.MDecisionLog](ctx, c, PathDecisionLog, q)
}

// -----------------------------------------------------------------------------

// DailyStats summarises today's activity from the trade and position lists
func (c *Client) DailyStats(ctx context.Context) (models.MDailyStats, error) {
	trades, err := c.ListTrades(ctx)
	if err != nil {
		return models.MDailyStats{}, err
	}
	positions, err := c.ListPositions(ctx)
	if err != nil {
		return models.MDailyStats{}, err
	}
	return models.SummariseDay(trades, positions), nil
}

// String is used in logs
func (c *Client) String() string {
	return fmt.Sprintf("apiclient(%s)", c.base)
}
