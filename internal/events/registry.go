package events

import "sync"

// Registry tracks live realtime connections and the set of cameras each one
// wants events for. It is owned by the service context and shared between the
// gateway (which registers connections) and the hub (which fans out to them).
type Registry struct {
	mu     sync.RWMutex
	nextID uint64
	conns  map[uint64]*subscriber
}

type subscriber struct {
	send    chan []byte
	cameras map[string]struct{}
}

type delivery struct {
	id   uint64
	send chan []byte
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uint64]*subscriber),
	}
}

// Register adds a connection with an empty subscription set and returns the
// handle used for later calls. The registry never closes the send channel;
// the caller keeps ownership of it.
func (r *Registry) Register(send chan []byte) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.conns[id] = &subscriber{
		send:    send,
		cameras: make(map[string]struct{}),
	}
	return id
}

// Subscribe adds cameraID to the connection's subscription set. Subscribing
// twice is the same as once. An unknown handle is a benign race with a
// concurrent close and is ignored.
func (r *Registry) Subscribe(id uint64, cameraID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.conns[id]
	if !ok {
		return
	}
	sub.cameras[cameraID] = struct{}{}
}

// Unregister removes the connection and its subscriptions. Idempotent.
func (r *Registry) Unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Count reports the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// matching snapshots the connections eligible for an event at the moment of
// call: all of them when cameraID is empty (broadcast), otherwise only those
// subscribed to cameraID.
func (r *Registry) matching(cameraID string) []delivery {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targets := make([]delivery, 0, len(r.conns))
	for id, sub := range r.conns {
		if cameraID != "" {
			if _, ok := sub.cameras[cameraID]; !ok {
				continue
			}
		}
		targets = append(targets, delivery{id: id, send: sub.send})
	}
	return targets
}
