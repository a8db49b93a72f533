package server

import (
	"net/http"
	"time"

	"trading-console/src/events"
	"trading-console/src/metrics"
	"trading-console/src/models"
	"trading-console/src/stream"
	"trading-console/src/timeseries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// hubQueueSize bounds the broadcast queue; bursts beyond it are dropped
	hubQueueSize = 256
	// clientQueueSize bounds each client's outbound buffer
	clientQueueSize = 256
	// maxSnapshotCandles caps the series returned to a subscribe command
	maxSnapshotCandles = 1000
)

// directMessage is a reply addressed to one client
type directMessage struct {
	client  *Client
	message *models.MHubMessage
}

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

func (s *ConsoleServer) startHub() {
	s.hubOnce.Do(func() {
		go s.runHub()
	})
}

// runHub is the main Hub loop. It owns the clients map.
func (s *ConsoleServer) runHub() {
	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.setConnections(len(s.clients))
			// Current connection state on connect
			client.send <- s.connectionMessage(s.stream.Status().State)

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
				s.setConnections(len(s.clients))
			}

		case d := <-s.direct:
			if _, ok := s.clients[d.client]; ok {
				select {
				case d.client.send <- d.message:
				default:
					metrics.HubDropped.Inc()
				}
			}

		case message := <-s.broadcast:
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					// Client too slow, disconnect it so the hub never blocks
					delete(s.clients, client)
					close(client.send)
					metrics.HubDropped.Inc()
					s.Logger.Warning("Dropping slow websocket client %s", client.id)
				}
			}
			s.setConnections(len(s.clients))

		case <-s.done:
			for client := range s.clients {
				delete(s.clients, client)
				close(client.send)
			}
			s.setConnections(0)
			return
		}
	}
}

func (s *ConsoleServer) setConnections(n int) {
	s.connMu.Lock()
	s.connections = n
	s.connMu.Unlock()
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// Broadcast queues message for every client. It never blocks: a full queue drops the message.
func (s *ConsoleServer) Broadcast(message *models.MHubMessage) {
	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}
	s.connMu.Lock()
	s.lastUpdate = message.Timestamp
	s.connMu.Unlock()

	select {
	case s.broadcast <- message:
	default:
		metrics.HubDropped.Inc()
	}
}

// -----------------------------------------------------------------------------

// PublishEnvelope is a stream observer forwarding every envelope to the UIs
func (s *ConsoleServer) PublishEnvelope(env events.Envelope) {
	s.Broadcast(&models.MHubMessage{
		Type:      models.HubMessageEvent,
		Kind:      string(env.Kind),
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
	})
}

// -----------------------------------------------------------------------------

// Invalidate tells the UIs that a query key went stale. It makes the server an invalidation target.
func (s *ConsoleServer) Invalidate(key string) {
	s.Broadcast(&models.MHubMessage{
		Type: models.HubMessageInvalidate,
		Keys: []string{key},
	})
}

// -----------------------------------------------------------------------------

// ConnectionChanged is a supervisor watcher
func (s *ConsoleServer) ConnectionChanged(from, to stream.State) {
	s.Broadcast(s.connectionMessage(to))
}

func (s *ConsoleServer) connectionMessage(state stream.State) *models.MHubMessage {
	return &models.MHubMessage{
		Type:       models.HubMessageConnection,
		Timestamp:  time.Now().UnixMilli(),
		Connection: state.String(),
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *ConsoleServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Warning("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  s,
		conn: conn,
		send: make(chan *models.MHubMessage, clientQueueSize),
	}

	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	}
	s.Logger.Info("Client %s connected from %s", client.id, c.ClientIP())

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage answers a subscribe command with the series snapshot.
// Unparseable messages disconnect the client.
func (s *ConsoleServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Warning("Failed to parse command from %s: %v, disconnecting client", client.id, err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	instrument := firstNonEmpty(cmd.Instrument, s.Config.Stream.Instrument)
	tf := firstNonEmpty(cmd.Timeframe, s.Config.Stream.Timeframe)
	key := timeseries.Key{Instrument: instrument, Timeframe: tf}

	response := &models.MHubMessage{
		Type:       models.HubMessageSnapshot,
		Timestamp:  time.Now().UnixMilli(),
		Instrument: instrument,
		Timeframe:  tf,
		Candles:    s.store.Tail(key, maxSnapshotCandles),
		Connection: s.stream.Status().State.String(),
	}

	// Replies go through the hub, which knows whether the client is still registered
	select {
	case s.direct <- directMessage{client: client, message: response}:
	case <-s.done:
	}
}
