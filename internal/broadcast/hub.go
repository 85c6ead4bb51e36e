package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultBufferSize       = 256
	DefaultSubscriberBuffer = 32
)

var ErrHubUnavailable = errors.New("hub_unavailable")

// Hub fans circle events out to subscribers. Each circle owns an
// independent stream with its own sequence counter; ordering is only
// guaranteed within a circle.
type Hub struct {
	mu               sync.RWMutex
	streams          map[snowflake.ID]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu      sync.Mutex
	lastSeq uint64
	buffer  []Event
	subs    map[uint64]chan Event
	nextID  uint64
}

// Subscription is one subscriber's handle on a circle stream.
type Subscription struct {
	hub      *Hub
	circleID snowflake.ID
	id       uint64
	ch       chan Event
	once     sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[snowflake.ID]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish appends an event to the circle stream, assigns its sequence
// number, and delivers it to live subscribers. Callers publish while
// holding the circle lock, immediately after the store commit, which is
// what makes sequence order equal commit order. The assigned event is
// returned with Seq and At populated.
func (h *Hub) Publish(circleID snowflake.ID, event Event) Event {
	if h == nil {
		return event
	}
	stream := h.ensureStream(circleID)

	stream.mu.Lock()
	stream.lastSeq++
	event.Seq = stream.lastSeq
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	event.CircleID = circleID.String()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Slow subscribers miss events instead of stalling the
			// circle; the seq gap tells them to re-subscribe.
		}
	}
	return event
}

// LastSeq returns the circle stream's current watermark.
func (h *Hub) LastSeq(circleID snowflake.ID) uint64 {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	stream := h.streams[circleID]
	h.mu.RUnlock()
	if stream == nil {
		return 0
	}
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return stream.lastSeq
}

// Subscribe attaches to a circle stream. It returns buffered events
// with Seq > afterSeq for replay, oldest first. Events older than the
// retained buffer are gone; the caller covers that gap with a snapshot.
func (h *Hub) Subscribe(circleID snowflake.ID, afterSeq uint64) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	stream := h.ensureStream(circleID)

	stream.mu.Lock()
	if stream.subs == nil {
		stream.subs = make(map[uint64]chan Event)
	}
	id := stream.nextID
	stream.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	stream.subs[id] = ch
	var backlog []Event
	for _, event := range stream.buffer {
		if event.Seq > afterSeq {
			backlog = append(backlog, event)
		}
	}
	stream.mu.Unlock()

	return &Subscription{
		hub:      h,
		circleID: circleID,
		id:       id,
		ch:       ch,
	}, backlog, nil
}

func (h *Hub) ensureStream(circleID snowflake.ID) *stream {
	h.mu.RLock()
	current := h.streams[circleID]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[circleID]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[circleID] = current
	}
	return current
}

// Drop discards a circle's stream once the circle is terminal and past
// retention. Attached subscribers keep their channels but receive
// nothing further.
func (h *Hub) Drop(circleID snowflake.ID) {
	if h == nil {
		return
	}
	h.mu.Lock()
	delete(h.streams, circleID)
	h.mu.Unlock()
}

func (h *Hub) unsubscribe(circleID snowflake.ID, id uint64) {
	h.mu.RLock()
	stream := h.streams[circleID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}
	stream.mu.Lock()
	delete(stream.subs, id)
	stream.mu.Unlock()
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.circleID, s.id)
	})
}
