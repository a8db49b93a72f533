package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trading-console/src/events"
	"trading-console/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------

func (b *mockBackend) routes(engine *gin.Engine, keepalive, dropAfter time.Duration) {
	api := engine.Group("/api", b.authorize)
	{
		api.GET("/stream", func(c *gin.Context) { b.getStream(c, keepalive, dropAfter) })

		api.GET("/signals", func(c *gin.Context) { c.JSON(http.StatusOK, b.Signals(c.Query("status"))) })
		api.POST("/signals/:id/:action", b.postSignalAction)

		api.GET("/state/positions", func(c *gin.Context) { c.JSON(http.StatusOK, b.Positions()) })
		api.GET("/state/orders", func(c *gin.Context) { c.JSON(http.StatusOK, b.Orders()) })
		api.GET("/state/trades", func(c *gin.Context) { c.JSON(http.StatusOK, b.Trades()) })

		api.GET("/candles/:instrument", func(c *gin.Context) {
			tf := c.DefaultQuery("tf", events.DefaultTimeframe)
			c.JSON(http.StatusOK, gin.H{"items": b.Candles(c.Param("instrument"), tf)})
		})

		api.GET("/bot/status", func(c *gin.Context) { c.JSON(http.StatusOK, b.Status()) })
		api.POST("/bot/:action", b.postBotAction)

		api.GET("/settings", func(c *gin.Context) { c.JSON(http.StatusOK, b.Settings()) })
		api.PUT("/settings", b.putSettings)

		api.GET("/decision-log", func(c *gin.Context) {
			limit, _ := strconv.Atoi(c.Query("limit"))
			c.JSON(http.StatusOK, b.Decisions(limit))
		})
	}
}

// -----------------------------------------------------------------------------

// authorize accepts the configured token as a bearer header or a token query parameter.
// Without a configured token everything is allowed.
func (b *mockBackend) authorize(c *gin.Context) {
	token := b.Config.Stream.Token
	if token == "" {
		return
	}
	if c.Query("token") == token || c.GetHeader("Authorization") == "Bearer "+token {
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid token"})
}

// -----------------------------------------------------------------------------

// getStream writes every published envelope as a named SSE event with ": ping" keepalives.
// With dropAfter set the server hangs up on purpose so clients exercise their reconnect path.
func (b *mockBackend) getStream(c *gin.Context, keepalive, dropAfter time.Duration) {
	ch, unsubscribe := b.subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Content-Type", "text/event-stream")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ping := time.NewTicker(keepalive)
	defer ping.Stop()

	var drop <-chan time.Time
	if dropAfter > 0 {
		t := time.NewTimer(dropAfter)
		defer t.Stop()
		drop = t.C
	}

	b.Logger.Info("Stream client connected from %s", c.ClientIP())
	c.Stream(func(w io.Writer) bool {
		select {
		case env := <-ch:
			data, err := events.Encode(env)
			if err != nil {
				b.Logger.Error("Encoding %s failed: %v", env.Kind, err)
				return true
			}
			c.SSEvent(string(env.Kind), string(data))
			return true
		case <-ping.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		case <-drop:
			b.Logger.Info("Dropping stream client %s", c.ClientIP())
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
	b.Logger.Info("Stream client %s gone", c.ClientIP())
}

// -----------------------------------------------------------------------------

func (b *mockBackend) postSignalAction(c *gin.Context) {
	var body struct {
		Comment string `json:"comment"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
	}

	var err error
	switch strings.ToLower(c.Param("action")) {
	case "approve":
		err = b.ApproveSignal(c.Param("id"), body.Comment)
	case "reject":
		err = b.RejectSignal(c.Param("id"), body.Comment)
	default:
		c.JSON(http.StatusNotFound, gin.H{"detail": "unknown action"})
		return
	}

	switch {
	case errors.Is(err, errUnknownSignal):
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
	case errors.Is(err, errNotPending):
		c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// -----------------------------------------------------------------------------

func (b *mockBackend) postBotAction(c *gin.Context) {
	switch c.Param("action") {
	case "start":
		b.SetRunning(true)
	case "stop":
		b.SetRunning(false)
	default:
		c.JSON(http.StatusNotFound, gin.H{"detail": "unknown action"})
		return
	}
	c.JSON(http.StatusOK, b.Status())
}

// -----------------------------------------------------------------------------

func (b *mockBackend) putSettings(c *gin.Context) {
	var s models.MRiskSettings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	b.UpdateSettings(s)
	c.JSON(http.StatusOK, s)
}
