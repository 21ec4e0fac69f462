package store

import "sync"

// Notifier tracks live subscriptions and delivers full snapshots in store
// write order. Store implementations call Changed while they can still
// read a consistent state, then Flush once their own locks are released,
// so a callback may safely re-enter the store.
type Notifier struct {
	mu       sync.Mutex
	nextID   int
	docSubs  map[int]*docSub
	qrySubs  map[int]*querySub
	queue    []func()
	flushing bool
}

type docSub struct {
	path string
	fn   func(DocSnapshot)
}

type querySub struct {
	collection string
	query      Query
	fn         func([]Document)
}

type subscription struct {
	cancel func()
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		docSubs: map[int]*docSub{},
		qrySubs: map[int]*querySub{},
	}
}

// AddDocSub registers a document subscriber.
func (n *Notifier) AddDocSub(path string, fn func(DocSnapshot)) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.docSubs[id] = &docSub{path: path, fn: fn}
	return &subscription{cancel: func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.docSubs, id)
	}}
}

// AddQuerySub registers a collection query subscriber.
func (n *Notifier) AddQuerySub(collection string, q Query, fn func([]Document)) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.qrySubs[id] = &querySub{collection: collection, query: q, fn: fn}
	return &subscription{cancel: func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.qrySubs, id)
	}}
}

// Changed enqueues snapshot deliveries for every subscriber watching one
// of the touched paths. getDoc and runQuery must read the state as of this
// write; they are invoked immediately, before Changed returns.
func (n *Notifier) Changed(paths []string, getDoc func(path string) DocSnapshot, runQuery func(collection string, q Query) []Document) {
	n.mu.Lock()
	defer n.mu.Unlock()
	touched := make(map[string]bool, len(paths))
	collections := make(map[string]bool, len(paths))
	for _, p := range paths {
		touched[p] = true
		collections[Collection(p)] = true
	}
	for _, sub := range n.docSubs {
		if !touched[sub.path] {
			continue
		}
		snap := getDoc(sub.path)
		fn := sub.fn
		n.queue = append(n.queue, func() { fn(snap) })
	}
	for _, sub := range n.qrySubs {
		if !collections[sub.collection] {
			continue
		}
		docs := runQuery(sub.collection, sub.query)
		fn := sub.fn
		n.queue = append(n.queue, func() { fn(docs) })
	}
}

// Flush runs pending deliveries in enqueue order. Re-entrant calls (from
// inside a callback) return immediately; the outer flush drains the queue.
func (n *Notifier) Flush() {
	n.mu.Lock()
	if n.flushing {
		n.mu.Unlock()
		return
	}
	n.flushing = true
	for len(n.queue) > 0 {
		fn := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()
		fn()
		n.mu.Lock()
	}
	n.flushing = false
	n.mu.Unlock()
}
