// Package datasource builds the stream source for each connection attempt.
package datasource

import (
	"net/http"
	"sync"

	"trading-console/src/data_source/sse"
	"trading-console/src/data_source/synthetic"
	"trading-console/src/interfaces"
	"trading-console/src/logger"
	"trading-console/src/models"
	"trading-console/src/network"
)

// SourceManager hands out a fresh source per attempt: the synthetic generator in demo mode,
// the live SSE source otherwise. It remembers the latest one for status reporting.
type SourceManager struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Network *network.AsyncNetworkManager

	mu     sync.RWMutex
	active interfaces.IStreamSource
	built  map[string]int
}

// -----------------------------------------------------------------------------

// NewSourceManager creates the manager. nm may be nil, in which case live sources
// use a plain HTTP client without proxy rotation.
func NewSourceManager(cfg *models.MConfig, log *logger.Logger, nm *network.AsyncNetworkManager) *SourceManager {
	return &SourceManager{
		Config:  cfg,
		Logger:  log,
		Network: nm,
		built:   make(map[string]int),
	}
}

// -----------------------------------------------------------------------------

// Build is a stream.SourceFactory
func (m *SourceManager) Build(demo bool) interfaces.IStreamSource {
	var src interfaces.IStreamSource
	if demo {
		src = synthetic.NewGenerator(m.Config, m.Logger)
	} else {
		src = sse.NewSource(m.Config, m.Logger, m.streamClient())
	}

	m.mu.Lock()
	m.active = src
	m.built[src.Name()]++
	n := m.built[src.Name()]
	m.mu.Unlock()

	m.Logger.Debug("Built %s source (#%d)", src.Name(), n)
	return src
}

func (m *SourceManager) streamClient() *http.Client {
	if m.Network == nil {
		return nil
	}
	return m.Network.StreamClient()
}

// -----------------------------------------------------------------------------

// Active returns the most recently built source, or nil
func (m *SourceManager) Active() interfaces.IStreamSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// -----------------------------------------------------------------------------

// Stats returns how many sources of each kind were built
func (m *SourceManager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.built))
	for k, v := range m.built {
		out[k] = v
	}
	return out
}
