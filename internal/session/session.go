// Package session owns the current principal and its lifecycle. The rest
// of the core reacts to identity changes but never implements them.
package session

import (
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/screenlogapp/screenlog/internal/store"
	"github.com/screenlogapp/screenlog/pkg/model"
)

// SecretProvider supplies the signing secret for session tokens.
type SecretProvider func() []byte

// Manager tracks the signed-in principal and notifies listeners on every
// identity transition.
type Manager struct {
	mu        sync.Mutex
	current   *model.Principal
	nextID    int
	listeners map[int]func(*model.Principal)
}

// NewManager creates a signed-out manager.
func NewManager() *Manager {
	return &Manager{listeners: map[int]func(*model.Principal){}}
}

// SignIn installs p as the current principal and notifies listeners.
func (m *Manager) SignIn(p model.Principal) {
	m.mu.Lock()
	cp := p
	m.current = &cp
	fns := m.listenerList()
	m.mu.Unlock()
	for _, fn := range fns {
		fn(&cp)
	}
}

// SignOut clears the current principal and notifies listeners with nil.
func (m *Manager) SignOut() {
	m.mu.Lock()
	m.current = nil
	fns := m.listenerList()
	m.mu.Unlock()
	for _, fn := range fns {
		fn(nil)
	}
}

// Current returns the signed-in principal, or nil.
func (m *Manager) Current() *model.Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

// OnChange registers an identity-change listener.
func (m *Manager) OnChange(fn func(*model.Principal)) store.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return &listenerHandle{cancel: func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}}
}

func (m *Manager) listenerList() []func(*model.Principal) {
	fns := make([]func(*model.Principal), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	return fns
}

type listenerHandle struct {
	cancel func()
	once   sync.Once
}

func (h *listenerHandle) Unsubscribe() {
	h.once.Do(h.cancel)
}

// FromToken parses an HS256 session token into the principal it was
// issued for.
func FromToken(tokenString string, secretProvider SecretProvider) (model.Principal, error) {
	token, err := jwt.Parse(
		tokenString,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secretProvider(), nil
		},
	)
	if err != nil {
		return model.Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return model.Principal{}, fmt.Errorf("invalid token")
	}

	var p model.Principal
	if v, ok := claims["sub"].(string); ok {
		p.ID = v
	}
	if p.ID == "" {
		return model.Principal{}, fmt.Errorf("token missing subject")
	}
	if v, ok := claims["name"].(string); ok {
		p.DisplayName = v
	}
	if v, ok := claims["picture"].(string); ok {
		p.PhotoRef = v
	}
	return p, nil
}
