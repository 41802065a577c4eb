package gateway

import (
	"sort"
	"sync"
	"time"
)

// ClientRegistry manages connected clients and their channel subscriptions
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewClientRegistry creates a new client registry
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
	}
}

// Add adds a client to the registry
func (r *ClientRegistry) Add(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client.channels == nil {
		client.channels = make(map[string]bool)
	}
	r.clients[client.ID] = client
}

// Remove removes a client from the registry
func (r *ClientRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, exists := r.clients[clientID]; exists {
		client.mu.Lock()
		client.state = StateDisconnected
		client.mu.Unlock()
	}
	delete(r.clients, clientID)
}

// Get retrieves a client by ID
func (r *ClientRegistry) Get(clientID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[clientID]
	return client, exists
}

// GetAll returns all clients
func (r *ClientRegistry) GetAll() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Subscribe marks channel as wanted by the client.
func (r *ClientRegistry) Subscribe(clientID, channel string) bool {
	r.mu.RLock()
	client, exists := r.clients[clientID]
	r.mu.RUnlock()
	if !exists {
		return false
	}

	client.mu.Lock()
	client.channels[channel] = true
	client.mu.Unlock()
	return true
}

// Unsubscribe drops channel from the client's subscriptions. Unknown channels are ignored.
func (r *ClientRegistry) Unsubscribe(clientID, channel string) {
	r.mu.RLock()
	client, exists := r.clients[clientID]
	r.mu.RUnlock()
	if !exists {
		return
	}

	client.mu.Lock()
	delete(client.channels, channel)
	client.mu.Unlock()
}

// Subscribers returns the authenticated clients subscribed to channel.
func (r *ClientRegistry) Subscribers(channel string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0)
	for _, client := range r.clients {
		client.mu.Lock()
		wanted := client.authenticated && client.channels[channel]
		client.mu.Unlock()
		if wanted {
			clients = append(clients, client)
		}
	}
	return clients
}

// Count returns the number of connected clients
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}

// GetConnectedClients returns client information for all connected clients
func (r *ClientRegistry) GetConnectedClients() []ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	infos := make([]ClientInfo, 0, len(r.clients))

	for _, client := range r.clients {
		client.mu.Lock()
		channels := make([]string, 0, len(client.channels))
		for channel := range client.channels {
			channels = append(channels, channel)
		}
		info := ClientInfo{
			ID:            client.ID,
			Authenticated: client.authenticated,
			ConnectedAt:   client.ConnectedAt,
			LastActivity:  client.LastActivity,
			IPAddress:     client.IPAddress,
			Idle:          now.Sub(client.LastActivity) > 5*time.Minute,
		}
		client.mu.Unlock()

		sort.Strings(channels)
		info.Channels = channels
		infos = append(infos, info)
	}

	return infos
}

// UpdateActivity updates the last activity time for a client
func (r *ClientRegistry) UpdateActivity(clientID string) {
	r.mu.RLock()
	client, exists := r.clients[clientID]
	r.mu.RUnlock()
	if !exists {
		return
	}

	client.mu.Lock()
	client.LastActivity = time.Now()
	client.mu.Unlock()
}
