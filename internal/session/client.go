package session

import (
	"sync"

	"github.com/screenlogapp/screenlog/internal/store"
	"github.com/screenlogapp/screenlog/pkg/model"
)

// recentNotifications is the size of the live "most recent" view.
const recentNotifications = 10

// Client is the per-identity context object: the cached media-state map,
// profile and unread-notification view for the signed-in principal. All
// live subscriptions it owns are established when the identity becomes
// non-nil and torn down when it becomes nil. Cached views are replaced
// wholesale on every snapshot delivery, never patched.
type Client struct {
	st store.Store

	mu        sync.RWMutex
	principal *model.Principal
	states    map[string]model.MediaStatusEntry
	profile   *model.Principal
	unread    int
	recent    []model.Notification
	subs      []store.Subscription

	identitySub store.Subscription
}

// Bind attaches a client to the manager's identity lifecycle. If a
// principal is already signed in, subscriptions start immediately.
func Bind(st store.Store, m *Manager) *Client {
	c := &Client{st: st}
	c.identitySub = m.OnChange(c.identityChanged)
	if p := m.Current(); p != nil {
		c.identityChanged(p)
	}
	return c
}

// Close tears down the identity listener and all live subscriptions.
func (c *Client) Close() {
	c.identitySub.Unsubscribe()
	c.identityChanged(nil)
}

// Principal returns the identity the client is bound to, or nil.
func (c *Client) Principal() *model.Principal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.principal == nil {
		return nil
	}
	cp := *c.principal
	return &cp
}

// MediaStates returns the cached status map as of the latest snapshot.
func (c *Client) MediaStates() map[string]model.MediaStatusEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]model.MediaStatusEntry, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out
}

// Profile returns the cached profile snapshot, or nil before the first
// delivery.
func (c *Client) Profile() *model.Principal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.profile == nil {
		return nil
	}
	cp := *c.profile
	return &cp
}

// UnreadCount returns the live unread-notification count.
func (c *Client) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread
}

// RecentNotifications returns the latest notifications, newest first.
func (c *Client) RecentNotifications() []model.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Notification, len(c.recent))
	copy(out, c.recent)
	return out
}

func (c *Client) identityChanged(p *model.Principal) {
	c.mu.Lock()
	old := c.subs
	c.subs = nil
	c.principal = p
	c.states = nil
	c.profile = nil
	c.unread = 0
	c.recent = nil
	c.mu.Unlock()
	for _, s := range old {
		s.Unsubscribe()
	}
	if p == nil {
		return
	}

	userSub := c.st.SubscribeDoc(store.Join("users", p.ID), func(snap store.DocSnapshot) {
		var doc model.UserDoc
		if snap.Exists {
			if err := snap.Decode(&doc); err != nil {
				return
			}
		}
		c.mu.Lock()
		c.states = doc.MediaStates
		if c.states == nil {
			c.states = map[string]model.MediaStatusEntry{}
		}
		c.profile = doc.Profile
		c.mu.Unlock()
	})

	unreadSub := c.st.SubscribeQuery("notifications", func(docs []store.Document) {
		c.mu.Lock()
		c.unread = len(docs)
		c.mu.Unlock()
	}, store.Where("recipientId", p.ID), store.Where("read", false))

	recentSub := c.st.SubscribeQuery("notifications", func(docs []store.Document) {
		recent := make([]model.Notification, 0, len(docs))
		for _, d := range docs {
			var n model.Notification
			if err := d.Decode(&n); err != nil {
				continue
			}
			n.ID = d.ID
			recent = append(recent, n)
		}
		c.mu.Lock()
		c.recent = recent
		c.mu.Unlock()
	}, store.Where("recipientId", p.ID), store.OrderBy("createdAt", true), store.Limit(recentNotifications))

	c.mu.Lock()
	if c.principal != nil && c.principal.ID == p.ID {
		c.subs = []store.Subscription{userSub, unreadSub, recentSub}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	// Identity changed while subscribing; these belong to a stale scope.
	userSub.Unsubscribe()
	unreadSub.Unsubscribe()
	recentSub.Unsubscribe()
}
