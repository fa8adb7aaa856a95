package notify

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/types"
)

// Change is one document change as published by the server. Fields holds
// the document attributes subscriptions filter on.
type Change struct {
	Type       types.ChangeType       `json:"type"`
	DocumentID string                 `json:"document_id"`
	TicketID   string                 `json:"ticket_id,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

func (c Change) Event() types.ChangeEvent {
	return types.ChangeEvent{
		Type:       c.Type,
		DocumentID: c.DocumentID,
		TicketID:   c.TicketID,
		Status:     c.Status,
	}
}

func (c Change) Matches(query types.Query) bool {
	if query.Field == "" {
		return true
	}
	value, ok := c.Fields[query.Field]
	if !ok || value == nil {
		return false
	}
	return fmt.Sprint(value) == query.Value
}

// Message is the frame carried by the websocket and redis sources.
type Message struct {
	Collection string   `json:"collection"`
	Changes    []Change `json:"changes"`
}

type subscription struct {
	id      string
	query   types.Query
	handler types.SnapshotHandler
}

type registry struct {
	logger types.Logger
	mu     sync.RWMutex
	subs   map[string]*subscription
}

func newRegistry(logger types.Logger) *registry {
	return &registry{
		logger: logger,
		subs:   make(map[string]*subscription),
	}
}

func (r *registry) add(query types.Query, handler types.SnapshotHandler) *subscription {
	sub := &subscription{
		id:      uuid.NewString(),
		query:   query,
		handler: handler,
	}

	r.mu.Lock()
	r.subs[sub.id] = sub
	r.mu.Unlock()

	return sub
}

func (r *registry) remove(id string) (*subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
	}
	return sub, ok
}

func (r *registry) snapshot() []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// countCollection reports how many subscriptions watch collection.
func (r *registry) countCollection(collection string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, sub := range r.subs {
		if sub.query.Collection == collection {
			n++
		}
	}
	return n
}

// dispatch hands every subscription of the message's collection the
// changes that match its filter. Subscriptions with no match hear nothing.
func (r *registry) dispatch(msg Message) int {
	delivered := 0

	for _, sub := range r.snapshot() {
		if sub.query.Collection != msg.Collection {
			continue
		}

		var batch []types.ChangeEvent
		for _, change := range msg.Changes {
			if change.Matches(sub.query) {
				batch = append(batch, change.Event())
			}
		}

		if len(batch) == 0 {
			continue
		}

		r.call(sub, batch, nil)
		delivered++
	}

	return delivered
}

// fail reports err to the subscriptions of collection, or to all of them
// when collection is empty.
func (r *registry) fail(collection string, err error) {
	for _, sub := range r.snapshot() {
		if collection != "" && sub.query.Collection != collection {
			continue
		}
		r.call(sub, nil, err)
	}
}

func (r *registry) call(sub *subscription, batch []types.ChangeEvent, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Snapshot handler panicked",
				zap.String("subscription", sub.id),
				zap.String("collection", sub.query.Collection),
				zap.Any("panic", rec))
		}
	}()

	sub.handler(batch, err)
}

type registration struct {
	once   sync.Once
	remove func()
}

func (r *registration) Remove() {
	r.once.Do(r.remove)
}
