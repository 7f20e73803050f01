// Package broadcast is an in process message fanout. Channels with the
// same name form a group, a message posted to one channel is delivered
// to every other channel of the group but never echoed back to the
// poster. It plays the role a browser BroadcastChannel plays between
// tabs.
package broadcast

import (
	"sync"
)

// Ping is the payload posted on every store change.
var Ping = []byte(`{"t":"changed"}`)

// Name returns the change feed channel name for a store.
func Name(database, store string) string {
	return database + "::" + store + "::changes"
}

type Hub struct {
	mutex    sync.RWMutex
	channels map[string][]*Channel
}

func NewHub() *Hub {
	return &Hub{
		channels: map[string][]*Channel{},
	}
}

// Channel opens a new channel with the given name. Each caller should
// open its own, a channel never hears its own posts.
func (h *Hub) Channel(name string) *Channel {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	c := &Channel{
		hub:       h,
		name:      name,
		listeners: map[int]func(message []byte){},
	}
	h.channels[name] = append(h.channels[name], c)
	return c
}

func (h *Hub) members(name string) []*Channel {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return append([]*Channel{}, h.channels[name]...)
}

func (h *Hub) remove(c *Channel) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	members := h.channels[c.name]
	for i, member := range members {
		if member == c {
			h.channels[c.name] = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(h.channels[c.name]) == 0 {
		delete(h.channels, c.name)
	}
}

type Channel struct {
	hub       *Hub
	name      string
	mutex     sync.Mutex
	listeners map[int]func(message []byte)
	next      int
	closed    bool
}

func (c *Channel) Name() string {
	return c.name
}

// Post delivers message synchronously to every other channel with the
// same name.
func (c *Channel) Post(message []byte) {
	for _, member := range c.hub.members(c.name) {
		if member == c {
			continue
		}
		member.deliver(message)
	}
}

func (c *Channel) deliver(message []byte) {
	c.mutex.Lock()
	listeners := make([]func(message []byte), 0, len(c.listeners))
	for _, listener := range c.listeners {
		listeners = append(listeners, listener)
	}
	c.mutex.Unlock()

	for _, listener := range listeners {
		listener(message)
	}
}

// Listen registers f and returns a function that unregisters it.
func (c *Channel) Listen(f func(message []byte)) func() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	id := c.next
	c.next++
	c.listeners[id] = f

	return func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		delete(c.listeners, id)
	}
}

// Close drops all listeners and leaves the group. Closing twice is a
// noop.
func (c *Channel) Close() {
	c.mutex.Lock()
	if c.closed {
		c.mutex.Unlock()
		return
	}
	c.closed = true
	c.listeners = map[int]func(message []byte){}
	c.mutex.Unlock()

	c.hub.remove(c)
}
