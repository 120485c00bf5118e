package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/parsey/docpreview/internal/model"
	"github.com/parsey/docpreview/internal/progress"
)

// Client represents a WebSocket subscriber of one analysis run
type Client struct {
	RunID string
	Send  chan []byte
	pong  chan struct{}
}

// NewClient creates an unregistered client for runID
func NewClient(runID string) *Client {
	return &Client{
		RunID: runID,
		Send:  make(chan []byte, 256),
		pong:  make(chan struct{}, 1),
	}
}

// Hub fans run events out to their subscribers
type Hub struct {
	// Clients grouped by run ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	direct     chan *directMessage
	done       chan struct{}
	stopOnce   sync.Once

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	RunID   string
	Message []byte
}

// directMessage is queued for one registered client only
type directMessage struct {
	client  *Client
	message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		direct:     make(chan *directMessage, 16),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for runID, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
				delete(h.clients, runID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.RunID] == nil {
				h.clients[client.RunID] = make(map[*Client]bool)
			}
			h.clients[client.RunID][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for run %s", client.RunID)

		case client := <-h.unregister:
			h.remove(client)
			log.Printf("Client unregistered from run %s", client.RunID)

		case msg := <-h.direct:
			h.mu.Lock()
			if clients, ok := h.clients[msg.client.RunID]; ok && clients[msg.client] {
				select {
				case msg.client.Send <- msg.message:
				default:
					close(msg.client.Send)
					delete(clients, msg.client)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			if clients, ok := h.clients[msg.RunID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						// Slow subscriber: drop it rather than stall the run.
						close(client.Send)
						delete(clients, client)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.RunID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends the main loop and closes every subscriber.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribers returns the number of clients watching runID
func (h *Hub) Subscribers(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[runID])
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[client.RunID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)
			if len(clients) == 0 {
				delete(h.clients, client.RunID)
			}
		}
	}
}

// BroadcastUpload sends upload progress to all run subscribers
func (h *Hub) BroadcastUpload(runID string, state progress.RunState, percent int) {
	h.send(runID, model.WSUploadMessage{
		Type:    model.WSMessageTypeUpload,
		RunID:   runID,
		State:   state,
		Percent: percent,
	})
}

// BroadcastProgress sends a processing estimate to all run subscribers
func (h *Hub) BroadcastProgress(runID string, st progress.State) {
	h.send(runID, model.WSProgressMessage{
		Type:     model.WSMessageTypeProgress,
		RunID:    runID,
		State:    progress.RunProcessing,
		Progress: st,
	})
}

// BroadcastComplete sends a completion message to all run subscribers
func (h *Hub) BroadcastComplete(runID string, result interface{}) {
	h.send(runID, model.WSCompleteMessage{
		Type:   model.WSMessageTypeComplete,
		RunID:  runID,
		Result: result,
	})
}

// BroadcastError sends an error message to all run subscribers
func (h *Hub) BroadcastError(runID string, code, message string) {
	h.send(runID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		RunID: runID,
		Error: model.RunError{
			Code:    code,
			Message: message,
		},
	})
}

func (h *Hub) send(runID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal websocket message: %v", err)
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{RunID: runID, Message: data}:
	case <-h.done:
	}
}

// SendTo queues message for client alone. It is dropped when the client is
// no longer registered.
func (h *Hub) SendTo(client *Client, message []byte) {
	select {
	case h.direct <- &directMessage{client: client, message: message}:
	case <-h.done:
	}
}

// Subscribe registers a client for runID and then queues the message built
// by snapshot, if any. Events broadcast after registration reach the client
// even while snapshot runs.
func (h *Hub) Subscribe(runID string, snapshot func() []byte) *Client {
	client := NewClient(runID)
	h.Register(client)
	if snapshot != nil {
		if msg := snapshot(); msg != nil {
			h.SendTo(client, msg)
		}
	}
	return client
}

// HandleConnection streams run events to c until either side closes.
// snapshot, when non-nil, is read after the client is registered.
func (h *Hub) HandleConnection(c *websocket.Conn, runID string, snapshot func() []byte) {
	client := h.Subscribe(runID, snapshot)
	defer h.Unregister(client)

	pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-client.pong:
				if err := c.WriteMessage(websocket.TextMessage, pong); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			select {
			case client.pong <- struct{}{}:
			default:
			}
		}
	}
}
