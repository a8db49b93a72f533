package models

// -----------------------------------------------------------------------------
// Hub messages pushed to websocket clients
// -----------------------------------------------------------------------------

const (
	HubMessageEvent      = "EVENT"
	HubMessageConnection = "CONNECTION"
	HubMessageInvalidate = "INVALIDATE"
	HubMessageSnapshot   = "SNAPSHOT"
)

type MHubMessage struct {
	Type       string      `json:"type"`
	Kind       string      `json:"kind,omitempty"`
	Timestamp  int64       `json:"timestamp"`
	Payload    interface{} `json:"payload,omitempty"`
	Connection string      `json:"connection,omitempty"`
	Keys       []string    `json:"keys,omitempty"`
	Instrument string      `json:"instrument_id,omitempty"`
	Timeframe  string      `json:"tf,omitempty"`
	Candles    []MCandle   `json:"candles,omitempty"`
}

// -----------------------------------------------------------------------------
// SubscribeCommand for client messages
// -----------------------------------------------------------------------------

type MSubscribeCommand struct {
	Command    string `json:"command"`
	Instrument string `json:"instrument"`
	Timeframe  string `json:"timeframe"`
}
