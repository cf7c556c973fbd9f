// bus.go
package bus

import (
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic is a sequence of path elements, e.g. {"ui", "render"}.
type Topic []string

// Well-known topics. Producers and consumers share these so that the
// wiring lives in one place.
var (
	TopicEvent      = Topic{"event"}              // transition requests -> controller
	TopicRender     = Topic{"ui", "render"}       // render commands -> ui monitor
	TopicBLECommand = Topic{"ble", "command"}     // raw inbound tokens -> gateway
	TopicButton     = Topic{"button"}             // debounced button events
	TopicState      = Topic{"state"}              // retained current state
	TopicBattery    = Topic{"health", "battery"}  // retained battery level
	TopicWatchdog   = Topic{"health", "watchdog"} // supervisor notices
)

func (t Topic) Equal(o Topic) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

func (t Topic) String() string {
	s := ""
	for i, tok := range t {
		if i > 0 {
			s += "/"
		}
		s += tok
	}
	return s
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	bus   *Bus
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// Backlog returns the number of queued, undelivered messages. The
// watchdog samples this as a queue-headroom proxy.
func (s *Subscription) Backlog() int { return len(s.ch) }

// Cap returns the subscription queue capacity.
func (s *Subscription) Cap() int { return cap(s.ch) }

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu   sync.RWMutex
	root *node
	qLen int

	drops atomic.Uint32 // messages dropped on full subscriber queues
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{
		root: &node{},
		qLen: queueLen,
	}
}

// NewMessage builds a message for this bus.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Drops returns the cumulative count of messages dropped because a
// subscriber queue was full.
func (b *Bus) Drops() uint32 { return b.drops.Load() }

// addSubscription inserts a subscription into the trie.
func (b *Bus) addSubscription(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}

	n.subs = append(n.subs, sub)

	// Deliver retained message if present.
	if n.retained != nil {
		select {
		case sub.ch <- n.retained:
		default:
		}
	}
}

// Publish delivers a message to all subscribers of its topic. A full
// subscriber queue drops the message for that subscriber; the drop is
// counted, never blocking the producer.
func (b *Bus) Publish(msg *Message) {
	b.publish(msg, false)
}

// PublishPriority delivers like Publish, but a full subscriber queue is
// relieved by evicting its oldest message and retrying the send once.
func (b *Bus) PublishPriority(msg *Message) {
	b.publish(msg, true)
}

func (b *Bus) publish(msg *Message, prio bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range msg.Topic {
		if n.children == nil {
			if !msg.Retained {
				return
			}
			n.children = make(map[string]*node)
		}
		child, exists := n.children[tok]
		if !exists {
			if !msg.Retained {
				return
			}
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}

	// Deliver to all subscribers at the final node.
	for _, sub := range n.subs {
		select {
		case sub.ch <- msg:
			continue
		default:
		}
		if !prio {
			b.drops.Add(1)
			continue
		}
		// Evict oldest, then retry once.
		select {
		case <-sub.ch:
			b.drops.Add(1)
		default:
		}
		select {
		case sub.ch <- msg:
		default:
			b.drops.Add(1)
		}
	}

	// Store or clear retained message.
	if msg.Retained {
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}
}

// unsubscribe removes a subscription from the trie.
func (b *Bus) unsubscribe(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, t := range topic {
		if n.children == nil {
			return
		}
		child, ok := n.children[t]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}

	// Remove subscription.
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}

	// Prune empty nodes.
	for i := len(topic) - 1; i >= 0; i-- {
		parent := stack[i]
		key := topic[i]
		child := parent.children[key]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, key)
		} else {
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	subs []*Subscription
	mu   sync.Mutex
	id   string
}

// NewConnection creates a new connection bound to this bus. The id
// names the owning service in logs and diagnostics.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{
		bus: b,
		id:  id,
	}
}

func (c *Connection) ID() string { return c.id }

// NewMessage builds a message for this connection's bus.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

// PublishPriority sends a message with the evict-and-retry overflow policy.
func (c *Connection) PublishPriority(msg *Message) {
	c.bus.PublishPriority(msg)
}

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		bus:   c.bus,
		conn:  c,
	}
	c.bus.addSubscription(topic, sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription owned by this connection.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub.topic, sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes all subscriptions and clears them.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub.topic, sub)
		close(sub.ch)
	}
}
