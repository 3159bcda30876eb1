package ws

import "sync"

const (
	// subscriberQueueSize bounds the events buffered for one stream. A stream
	// that falls further behind is dropped.
	subscriberQueueSize = 32
	broadcastBacklog    = 64
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans todo change events out to the streams of the todo owner. Each
// stream is written by its own goroutine, so a slow stream never holds up
// the hub or the publisher.
type Hub struct {
	clients   map[string]map[Subscriber]*outbox
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
	once      sync.Once
}

// message couples payload with the owning user.
type message struct {
	ownerID string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	ownerID string
	client  Subscriber
}

// outbox is the pending queue of a single stream.
type outbox struct {
	client Subscriber
	queue  chan []byte
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]*outbox),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, broadcastBacklog),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			clients, ok := h.clients[sub.ownerID]
			if !ok {
				clients = make(map[Subscriber]*outbox)
				h.clients[sub.ownerID] = clients
			}
			if _, dup := clients[sub.client]; dup {
				continue
			}
			box := &outbox{client: sub.client, queue: make(chan []byte, subscriberQueueSize)}
			clients[sub.client] = box
			go h.pump(sub.ownerID, box)
		case sub := <-h.unreg:
			h.drop(sub.ownerID, sub.client)
		case msg := <-h.broadcast:
			for c, box := range h.clients[msg.ownerID] {
				select {
				case box.queue <- msg.payload:
				default:
					h.drop(msg.ownerID, c)
					c.Close()
				}
			}
		case <-h.done:
			for _, clients := range h.clients {
				for c, box := range clients {
					close(box.queue)
					c.Close()
				}
			}
			h.clients = nil
			return
		}
	}
}

// pump writes queued payloads to one stream until its queue is closed. A
// failed write closes the stream and asks the hub to forget it.
func (h *Hub) pump(ownerID string, box *outbox) {
	for payload := range box.queue {
		if err := box.client.Send(payload); err != nil {
			box.client.Close()
			h.Unregister(ownerID, box.client)
			for range box.queue {
			}
			return
		}
	}
}

// drop forgets a stream and releases its writer goroutine. Runs on the hub
// goroutine only.
func (h *Hub) drop(ownerID string, c Subscriber) {
	clients, ok := h.clients[ownerID]
	if !ok {
		return
	}
	box, ok := clients[c]
	if !ok {
		return
	}
	delete(clients, c)
	close(box.queue)
	if len(clients) == 0 {
		delete(h.clients, ownerID)
	}
}

// Register adds a client to the owner's stream.
func (h *Hub) Register(ownerID string, client Subscriber) {
	select {
	case h.register <- subscription{ownerID: ownerID, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(ownerID string, client Subscriber) {
	select {
	case h.unreg <- subscription{ownerID: ownerID, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every stream of ownerID. It does not wait for
// the streams to be written.
func (h *Hub) Broadcast(ownerID string, payload []byte) {
	select {
	case h.broadcast <- message{ownerID: ownerID, payload: payload}:
	case <-h.done:
	}
}

// Close stops the hub and closes all registered clients.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.done)
	})
}
