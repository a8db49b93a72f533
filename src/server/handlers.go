package server

import (
	"net/http"
	"time"

	"trading-console/src/analysis"
	"trading-console/src/models"
	"trading-console/src/timeseries"

	"github.com/gin-gonic/gin"
)

// maxCandlesPerRequest caps /api/candles responses
const maxCandlesPerRequest = 5000

// -----------------------------------------------------------------------------
// Health & status
// -----------------------------------------------------------------------------

func (s *ConsoleServer) getHealth(c *gin.Context) {
	s.connMu.RLock()
	connections := s.connections
	latest := s.lastUpdate
	s.connMu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"connections":   connections,
		"stream":        s.stream.Status().State,
		"latest_update": latest,
	})
}

// -----------------------------------------------------------------------------

func (s *ConsoleServer) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.stream.Status())
}

// -----------------------------------------------------------------------------

func (s *ConsoleServer) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"demo_mode":  s.Config.Stream.DemoMode,
		"api_base":   s.Config.Stream.APIBase,
		"instrument": s.Config.Stream.Instrument,
		"timeframe":  s.Config.Stream.Timeframe,
		"query_keys": models.AllQueryKeys,
	})
}

// -----------------------------------------------------------------------------

func (s *ConsoleServer) postStreamAction(c *gin.Context) {
	switch c.Param("action") {
	case "connect":
		s.stream.Connect()
	case "disconnect":
		s.stream.Disconnect()
	default:
		abortWithError(c, http.StatusBadRequest, "unknown stream action %q", c.Param("action"))
		return
	}
	c.JSON(http.StatusOK, s.stream.Status())
}

// -----------------------------------------------------------------------------
// Series
// -----------------------------------------------------------------------------

func (s *ConsoleServer) getSeries(c *gin.Context) {
	keys := s.store.Keys()
	out := make([]models.MSeriesRef, 0, len(keys))
	for _, k := range keys {
		ref := models.MSeriesRef{Instrument: k.Instrument, Timeframe: k.Timeframe, Count: s.store.Len(k)}
		if last, ok := s.store.Latest(k); ok {
			ref.LastTime = last.Time
		}
		out = append(out, ref)
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// -----------------------------------------------------------------------------

// getCandles returns the newest bars of one series. ?limit caps the count and ?resample
// folds the series into a coarser timeframe first.
func (s *ConsoleServer) getCandles(c *gin.Context) {
	key := timeseries.Key{Instrument: c.Param("instrument"), Timeframe: c.Param("tf")}
	limit, ok := queryInt(c, "limit", maxCandlesPerRequest)
	if !ok {
		return
	}

	candles := s.store.Series(key)
	tf := key.Timeframe
	if target := c.Query("resample"); target != "" {
		resampled, ok := analysis.ResampleTo(candles, key.Timeframe, target)
		if !ok {
			abortWithError(c, http.StatusBadRequest, "cannot resample %s into %s", key.Timeframe, target)
			return
		}
		candles, tf = resampled, target
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	c.JSON(http.StatusOK, gin.H{
		"instrument_id": key.Instrument,
		"tf":            tf,
		"candles":       candles,
	})
}

// -----------------------------------------------------------------------------

func (s *ConsoleServer) getStats(c *gin.Context) {
	key := timeseries.Key{Instrument: c.Param("instrument"), Timeframe: c.Param("tf")}
	if s.store.Len(key) == 0 {
		abortWithError(c, http.StatusNotFound, "no candles for %s", key)
		return
	}
	c.JSON(http.StatusOK, analysis.Summarise(key.Instrument, key.Timeframe, s.store.Series(key)))
}

// -----------------------------------------------------------------------------
// Query cache
// -----------------------------------------------------------------------------

// getQuery serves one query key through the cache. ?peek=1 returns the cached entry without fetching.
func (s *ConsoleServer) getQuery(c *gin.Context) {
	if s.cache == nil {
		abortWithError(c, http.StatusServiceUnavailable, "query cache is disabled in demo mode")
		return
	}
	key := c.Param("key")

	if c.Query("peek") != "" {
		entry, ok := s.cache.Peek(key)
		if !ok {
			abortWithError(c, http.StatusNotFound, "nothing cached for %q", key)
			return
		}
		c.JSON(http.StatusOK, entry)
		return
	}

	value, err := s.cache.Get(c.Request.Context(), key)
	if err != nil {
		abortWithUpstream(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value, "fetched_at": time.Now().Unix()})
}

// -----------------------------------------------------------------------------
// Backend actions
// -----------------------------------------------------------------------------

func (s *ConsoleServer) postBotAction(c *gin.Context) {
	if s.backend == nil {
		abortWithError(c, http.StatusServiceUnavailable, "backend actions are disabled in demo mode")
		return
	}

	var err error
	switch c.Param("action") {
	case "start":
		err = s.backend.StartBot(c.Request.Context())
	case "stop":
		err = s.backend.StopBot(c.Request.Context())
	default:
		abortWithError(c, http.StatusBadRequest, "unknown bot action %q", c.Param("action"))
		return
	}
	if err != nil {
		abortWithUpstream(c, err)
		return
	}
	s.invalidateLocal(models.QueryKeyBotStatus)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// -----------------------------------------------------------------------------

type signalActionRequest struct {
	Comment string `json:"comment"`
}

func (s *ConsoleServer) postSignalAction(c *gin.Context) {
	if s.backend == nil {
		abortWithError(c, http.StatusServiceUnavailable, "backend actions are disabled in demo mode")
		return
	}

	var req signalActionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid body: %v", err)
			return
		}
	}

	id := c.Param("id")
	var err error
	switch c.Param("action") {
	case "approve":
		err = s.backend.ApproveSignal(c.Request.Context(), id, req.Comment)
	case "reject":
		err = s.backend.RejectSignal(c.Request.Context(), id, req.Comment)
	default:
		abortWithError(c, http.StatusBadRequest, "unknown signal action %q", c.Param("action"))
		return
	}
	if err != nil {
		abortWithUpstream(c, err)
		return
	}
	s.invalidateLocal(models.QueryKeySignals)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// -----------------------------------------------------------------------------

func (s *ConsoleServer) putSettings(c *gin.Context) {
	if s.backend == nil {
		abortWithError(c, http.StatusServiceUnavailable, "backend actions are disabled in demo mode")
		return
	}

	var settings models.MRiskSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid settings: %v", err)
		return
	}
	if err := s.backend.UpdateSettings(c.Request.Context(), settings); err != nil {
		abortWithUpstream(c, err)
		return
	}
	s.invalidateLocal(models.QueryKeySettings)
	c.JSON(http.StatusOK, settings)
}

// invalidateLocal marks a key stale after a mutation made through this server.
// The cache notifies the hub through its update listener.
func (s *ConsoleServer) invalidateLocal(key string) {
	if s.cache != nil {
		s.cache.Invalidate(key)
	}
}
