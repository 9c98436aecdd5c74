package stream

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"reins/internal/api"
	"reins/pkg/logging"
)

// Key builds the stream key for one assistant message within a
// conversation.
func Key(conversationID, assistantMessageID string) string {
	return conversationID + ":" + assistantMessageID
}

// Conn is the subscriber connection surface the registry needs.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Registry tracks which connections subscribe to which stream keys, in
// both directions so a dropped connection can be cleaned out of every
// stream it watched.
type Registry struct {
	mu          sync.Mutex
	subscribers map[string]map[Conn]struct{}
	streams     map[Conn]map[string]struct{}
}

// NewRegistry creates an empty stream registry.
func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[string]map[Conn]struct{}),
		streams:     make(map[Conn]map[string]struct{}),
	}
}

// Subscribe adds a connection to a stream key.
func (r *Registry) Subscribe(streamKey string, conn Conn) error {
	if streamKey == "" {
		return api.NewValidationError("stream key cannot be empty")
	}
	if conn == nil {
		return api.NewValidationError("cannot subscribe nil connection")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subscribers[streamKey] == nil {
		r.subscribers[streamKey] = make(map[Conn]struct{})
	}
	r.subscribers[streamKey][conn] = struct{}{}
	if r.streams[conn] == nil {
		r.streams[conn] = make(map[string]struct{})
	}
	r.streams[conn][streamKey] = struct{}{}
	return nil
}

// Unsubscribe removes a connection from one stream key.
func (r *Registry) Unsubscribe(streamKey string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detach(streamKey, conn)
}

// Drop removes a connection from every stream it subscribed to. Called
// when the connection closes.
func (r *Registry) Drop(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for streamKey := range r.streams[conn] {
		r.detach(streamKey, conn)
	}
}

// detach removes one (key, conn) edge. Caller holds the lock.
func (r *Registry) detach(streamKey string, conn Conn) {
	if subs := r.subscribers[streamKey]; subs != nil {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(r.subscribers, streamKey)
		}
	}
	if keys := r.streams[conn]; keys != nil {
		delete(keys, streamKey)
		if len(keys) == 0 {
			delete(r.streams, conn)
		}
	}
}

// SubscriberCount returns the number of connections on a stream key.
func (r *Registry) SubscriberCount(streamKey string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers[streamKey])
}

// Publish serializes the payload once and fans it out to every
// subscriber of the stream key. Connections whose send fails are removed
// from the registry and closed; publish itself only errors on
// serialization failure.
func (r *Registry) Publish(streamKey string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return api.NewOperationError("failed to serialize stream payload", err)
	}

	r.mu.Lock()
	conns := make([]Conn, 0, len(r.subscribers[streamKey]))
	for conn := range r.subscribers[streamKey] {
		conns = append(conns, conn)
	}
	r.mu.Unlock()

	var failedMu sync.Mutex
	var failed []Conn

	var group errgroup.Group
	for _, conn := range conns {
		conn := conn
		group.Go(func() error {
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				failedMu.Lock()
				failed = append(failed, conn)
				failedMu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	if len(failed) > 0 {
		r.mu.Lock()
		for _, conn := range failed {
			for key := range r.streams[conn] {
				r.detach(key, conn)
			}
		}
		r.mu.Unlock()
		for _, conn := range failed {
			_ = conn.Close()
		}
		logging.Debug("Stream", "Removed %d stale subscribers from %s", len(failed), streamKey)
	}
	return nil
}
