package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"trading-console/src/helpers"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// -----------------------------------------------------------------------------

func abortWithError(c *gin.Context, status int, format string, args ...interface{}) {
	c.AbortWithStatusJSON(status, gin.H{"error": fmt.Sprintf(format, args...)})
}

// -----------------------------------------------------------------------------

// abortWithUpstream maps an error from the backend or the cache onto a reply.
// Backend 4xx answers are relayed as-is, everything else is a bad gateway.
func abortWithUpstream(c *gin.Context, err error) {
	var apiErr *helpers.APIError
	var valErr *helpers.ValidationError
	switch {
	case errors.As(err, &valErr):
		abortWithError(c, http.StatusBadRequest, "%v", err)
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		abortWithError(c, apiErr.StatusCode, "%v", err)
	default:
		abortWithError(c, http.StatusBadGateway, "%v", err)
	}
}

// -----------------------------------------------------------------------------

// queryInt reads a positive integer query parameter, falling back to def when absent.
// It aborts the request and returns false on a bad value.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		abortWithError(c, http.StatusBadRequest, "%s must be a positive integer", name)
		return 0, false
	}
	if n > def {
		n = def
	}
	return n, true
}

// -----------------------------------------------------------------------------

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
