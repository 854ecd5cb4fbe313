package bus

import "container/heap"

// mailbox is one agent's undelivered messages plus its handler table.
// Messages come out highest priority first, publish order within a priority.
type mailbox struct {
	queue    messageHeap
	handlers map[MessageType]Handler
}

func newMailbox() *mailbox {
	return &mailbox{handlers: make(map[MessageType]Handler)}
}

func (mb *mailbox) push(m *Message) {
	heap.Push(&mb.queue, m)
}

// drain empties the queue in delivery order.
func (mb *mailbox) drain() []*Message {
	if len(mb.queue) == 0 {
		return nil
	}
	out := make([]*Message, 0, len(mb.queue))
	for len(mb.queue) > 0 {
		out = append(out, heap.Pop(&mb.queue).(*Message))
	}
	return out
}

func (mb *mailbox) len() int {
	return len(mb.queue)
}

// messageHeap orders by (priority desc, id asc). IDs are assigned in publish
// order, so the id tiebreak is the FIFO guarantee within a priority tier.
type messageHeap []*Message

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].ID < h[j].ID
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) {
	*h = append(*h, x.(*Message))
}

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	m := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return m
}
