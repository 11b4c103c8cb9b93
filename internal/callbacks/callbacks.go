package callbacks

import (
	"github.com/siohaza/slither/internal/world"
)

// Callbacks observe slither lifecycle events. They run on the simulation
// goroutine and must not block.
type Callbacks interface {
	// OnJoin may rewrite the nickname; returning it unchanged keeps it.
	OnJoin(id world.SlitherID, nickname string) string
	OnCrash(id world.SlitherID, nickname string, mass float32)
	OnDisconnect(id world.SlitherID, nickname string, mass float32)
}

type DefaultCallbacks struct{}

func (d *DefaultCallbacks) OnJoin(id world.SlitherID, nickname string) string {
	return nickname
}

func (d *DefaultCallbacks) OnCrash(id world.SlitherID, nickname string, mass float32) {}

func (d *DefaultCallbacks) OnDisconnect(id world.SlitherID, nickname string, mass float32) {}

type CallbackChain struct {
	callbacks []Callbacks
}

func NewCallbackChain() *CallbackChain {
	return &CallbackChain{
		callbacks: make([]Callbacks, 0),
	}
}

func (c *CallbackChain) Register(cb Callbacks) {
	c.callbacks = append(c.callbacks, cb)
}

func (c *CallbackChain) Len() int {
	return len(c.callbacks)
}

// OnJoin threads the nickname through every callback in registration order.
func (c *CallbackChain) OnJoin(id world.SlitherID, nickname string) string {
	for _, cb := range c.callbacks {
		nickname = cb.OnJoin(id, nickname)
	}
	return nickname
}

func (c *CallbackChain) OnCrash(id world.SlitherID, nickname string, mass float32) {
	for _, cb := range c.callbacks {
		cb.OnCrash(id, nickname, mass)
	}
}

func (c *CallbackChain) OnDisconnect(id world.SlitherID, nickname string, mass float32) {
	for _, cb := range c.callbacks {
		cb.OnDisconnect(id, nickname, mass)
	}
}
