package bus

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
)

// Bus routes messages between agents by id and by type. All methods are safe
// for concurrent use; handlers run outside the lock so they may publish.
type Bus struct {
	mu        sync.Mutex
	mailboxes map[string]*mailbox
	subs      map[MessageType][]string // type → subscriber ids, subscription order
	history   []*Message
	nextID    MessageID

	// Counters over the current history generation. Reset bumps gen so
	// messages still sitting in mailboxes from before a reset are not counted.
	gen       uint64
	processed int
	byType    map[MessageType]int

	clock  func() time.Time
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for dropped messages and handler failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the timestamp source (tests use a fixed clock).
func WithClock(clock func() time.Time) Option {
	return func(b *Bus) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		mailboxes: make(map[string]*mailbox),
		subs:      make(map[MessageType][]string),
		byType:    make(map[MessageType]int),
		clock:     time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register creates a mailbox for agentID if it does not have one yet.
func (b *Bus) Register(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registerLocked(agentID)
}

func (b *Bus) registerLocked(agentID string) *mailbox {
	mb, ok := b.mailboxes[agentID]
	if !ok {
		mb = newMailbox()
		b.mailboxes[agentID] = mb
	}
	return mb
}

// Registered reports whether agentID has a mailbox.
func (b *Bus) Registered(agentID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.mailboxes[agentID]
	return ok
}

// Subscribe adds agentID to the broadcast list for typ and binds handler,
// replacing any earlier handler for the same (agent, type). Unknown agents
// are registered.
func (b *Bus) Subscribe(agentID string, typ MessageType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mb := b.registerLocked(agentID)
	if !slices.Contains(b.subs[typ], agentID) {
		b.subs[typ] = append(b.subs[typ], agentID)
	}
	mb.handlers[typ] = handler
}

// Unsubscribe removes agentID from typ's broadcast list and drops its handler.
// Queued messages of that type stay in the mailbox.
func (b *Bus) Unsubscribe(agentID string, typ MessageType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.removeSubscriberLocked(agentID, typ)
	if mb, ok := b.mailboxes[agentID]; ok {
		delete(mb.handlers, typ)
	}
}

// Unregister tears down agentID's mailbox, its queued messages, and all of its
// subscriptions. Direct publishes to it are dropped afterwards.
func (b *Bus) Unregister(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mb, ok := b.mailboxes[agentID]
	if !ok {
		return
	}
	for typ := range mb.handlers {
		b.removeSubscriberLocked(agentID, typ)
	}
	// Index-only subscriptions can exist without a handler entry.
	for typ := range b.subs {
		b.removeSubscriberLocked(agentID, typ)
	}
	delete(b.mailboxes, agentID)
}

func (b *Bus) removeSubscriberLocked(agentID string, typ MessageType) {
	ids := b.subs[typ]
	i := slices.Index(ids, agentID)
	if i < 0 {
		return
	}
	ids = slices.Delete(ids, i, i+1)
	if len(ids) == 0 {
		delete(b.subs, typ)
	} else {
		b.subs[typ] = ids
	}
}

type publishOptions struct {
	to       string
	priority int
}

// PublishOption adjusts a single Publish call.
type PublishOption func(*publishOptions)

// To addresses the message to a single agent instead of broadcasting it.
func To(agentID string) PublishOption {
	return func(o *publishOptions) { o.to = agentID }
}

// WithPriority sets the message priority; it is clamped into [1,5].
func WithPriority(p int) PublishOption {
	return func(o *publishOptions) { o.priority = p }
}

// Publish records a message and enqueues it. A direct message to an agent
// without a mailbox is dropped silently; a broadcast lands in the mailbox of
// every current subscriber of typ. The payload is copied.
func (b *Bus) Publish(from string, typ MessageType, payload Payload, opts ...PublishOption) MessageID {
	po := publishOptions{priority: MinPriority}
	for _, opt := range opts {
		opt(&po)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	msg := &Message{
		ID:        b.nextID,
		From:      from,
		To:        Broadcast,
		Type:      typ,
		Payload:   maps.Clone(payload),
		Timestamp: b.clock(),
		Priority:  ClampPriority(po.priority),
		gen:       b.gen,
	}
	if po.to != "" {
		msg.To = po.to
	}

	b.history = append(b.history, msg)
	b.byType[typ]++

	if po.to != "" {
		mb, ok := b.mailboxes[po.to]
		if !ok {
			b.logger.Debug("direct message dropped", "message", msg.ID, "type", typ, "to", po.to)
			return msg.ID
		}
		mb.push(msg)
		return msg.ID
	}

	for _, id := range b.subs[typ] {
		if mb, ok := b.mailboxes[id]; ok {
			mb.push(msg)
		}
	}
	return msg.ID
}

// Drain removes and returns every queued message for agentID, highest
// priority first and in publish order within a priority.
func (b *Bus) Drain(agentID string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	mb, ok := b.mailboxes[agentID]
	if !ok {
		return nil
	}
	batch := mb.drain()
	out := make([]Message, len(batch))
	for i, m := range batch {
		out[i] = m.copy()
	}
	return out
}

// Dispatch drains agentID's mailbox and runs the bound handler for each
// message. A failing or panicking handler is logged and its message stays
// unprocessed; the rest of the batch still runs. Returns the number of
// messages processed.
func (b *Bus) Dispatch(agentID string) int {
	b.mu.Lock()
	mb, ok := b.mailboxes[agentID]
	if !ok {
		b.mu.Unlock()
		return 0
	}
	batch := mb.drain()
	handlers := maps.Clone(mb.handlers)
	b.mu.Unlock()

	processed := 0
	for _, m := range batch {
		h := handlers[m.Type]
		if h == nil {
			continue
		}
		if err := invoke(h, m.copy()); err != nil {
			b.logger.Warn("message handler failed",
				"agent", agentID,
				"message", m.ID.String(),
				"type", m.Type.String(),
				"error", err,
			)
			continue
		}
		b.markProcessed(m)
		processed++
	}
	return processed
}

// copy returns a delivery of m with its own payload map. One *Message is
// shared by every subscriber's mailbox and the history.
func (m *Message) copy() Message {
	out := *m
	out.Payload = maps.Clone(m.Payload)
	return out
}

func invoke(h Handler, m Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(m)
}

func (b *Bus) markProcessed(m *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m.Processed {
		return
	}
	m.Processed = true
	if m.gen == b.gen {
		b.processed++
	}
}

// QueueSize returns the number of undelivered messages for agentID.
func (b *Bus) QueueSize(agentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mb, ok := b.mailboxes[agentID]; ok {
		return mb.len()
	}
	return 0
}

// Stats is an aggregate view of bus activity since the last Reset.
type Stats struct {
	TotalMessages       int                 `json:"total_messages"`
	ProcessedMessages   int                 `json:"processed_messages"`
	PendingMessages     int                 `json:"pending_messages"`
	RegisteredAgents    int                 `json:"registered_agents"`
	MessageTypes        map[MessageType]int `json:"message_types_count"`
	ActiveSubscriptions int                 `json:"active_subscriptions"`
}

// Stats returns current counters. Pending is published minus processed.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := 0
	for _, ids := range b.subs {
		subs += len(ids)
	}
	total := len(b.history)
	return Stats{
		TotalMessages:       total,
		ProcessedMessages:   b.processed,
		PendingMessages:     total - b.processed,
		RegisteredAgents:    len(b.mailboxes),
		MessageTypes:        maps.Clone(b.byType),
		ActiveSubscriptions: subs,
	}
}

// History returns a copy of every message published since the last Reset.
func (b *Bus) History() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.history))
	for i, m := range b.history {
		out[i] = m.copy()
	}
	return out
}

// Reset clears the history and its counters. Mailboxes and subscriptions
// are untouched.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
	b.processed = 0
	b.byType = make(map[MessageType]int)
	b.gen++
}
