// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package websocket

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrSessionOwned is returned by Add when the session id is registered to a
// different user.
var ErrSessionOwned = errors.New("session id belongs to another user")

// sessionSeq orders sessions by creation so fan-out iterates deterministically.
var sessionSeq atomic.Uint64

// Session is one authenticated socket. A user may hold several.
type Session struct {
	ID            string
	UserID        string
	Authenticated bool

	seq  uint64
	send chan Frame

	mu       sync.Mutex
	channels map[string]struct{}

	closeOnce   sync.Once
	done        chan struct{}
	closeCode   int
	closeReason string
}

// NewSession creates a session with a send queue of queueSize frames.
func NewSession(id, userID string, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Session{
		ID:            id,
		UserID:        userID,
		Authenticated: true,
		seq:           sessionSeq.Add(1),
		send:          make(chan Frame, queueSize),
		channels:      make(map[string]struct{}),
		done:          make(chan struct{}),
	}
}

// Enqueue queues f without blocking. It returns false when the queue is full
// or the session is closed.
func (s *Session) Enqueue(f Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- f:
		return true
	default:
		return false
	}
}

// Queue exposes the send queue to the socket writer and to tests.
func (s *Session) Queue() <-chan Frame {
	return s.send
}

// Close marks the session closed. The socket writer sends a close frame with
// code and reason. Only the first call has an effect.
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.closeCode = code
		s.closeReason = reason
		close(s.done)
	})
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Subscribe records a channel subscription.
func (s *Session) Subscribe(channel string) {
	s.mu.Lock()
	s.channels[channel] = struct{}{}
	s.mu.Unlock()
}

// Channels returns the subscribed channels, sorted.
func (s *Session) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for c := range s.channels {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// GroupChannel returns the subscription channel name of a group.
func GroupChannel(groupID string) string {
	return "group:" + groupID
}

// ParseGroupChannel extracts the group id from a "group:<id>" channel.
func ParseGroupChannel(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, "group:")
	return id, ok && id != ""
}

// SessionManager is the registry of live sessions and group memberships. All
// mutations go through it under one lock.
type SessionManager struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	byUser     map[string]map[string]*Session
	groups     map[string]map[string]struct{}
	userGroups map[string]map[string]struct{}
}

// NewSessionManager creates an empty registry.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]*Session),
		byUser:     make(map[string]map[string]*Session),
		groups:     make(map[string]map[string]struct{}),
		userGroups: make(map[string]map[string]struct{}),
	}
}

// Add registers s. A session of the same user already registered under the
// same id is removed first and returned so the caller can close it. A session
// of another user is left alone and Add fails with ErrSessionOwned.
func (m *SessionManager) Add(s *Session) (stale *Session, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.sessions[s.ID]; ok {
		if old.UserID != s.UserID {
			return nil, ErrSessionOwned
		}
		m.removeLocked(old)
		stale = old
	}

	m.sessions[s.ID] = s
	userSessions, ok := m.byUser[s.UserID]
	if !ok {
		userSessions = make(map[string]*Session)
		m.byUser[s.UserID] = userSessions
	}
	userSessions[s.ID] = s
	return stale, nil
}

// Remove unregisters the session with id and returns it, or nil.
func (m *SessionManager) Remove(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	m.removeLocked(s)
	return s
}

// RemoveSession unregisters s only if it is still the session registered
// under its id. It returns false when s was already replaced or removed.
func (m *SessionManager) RemoveSession(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.sessions[s.ID]; !ok || cur != s {
		return false
	}
	m.removeLocked(s)
	return true
}

func (m *SessionManager) removeLocked(s *Session) {
	delete(m.sessions, s.ID)
	if userSessions, ok := m.byUser[s.UserID]; ok {
		delete(userSessions, s.ID)
		if len(userSessions) == 0 {
			delete(m.byUser, s.UserID)
		}
	}
}

// Get returns the session registered under id.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SessionsFor returns a snapshot of userID's sessions in creation order.
func (m *SessionManager) SessionsFor(userID string) []*Session {
	m.mu.RLock()
	userSessions := m.byUser[userID]
	out := make([]*Session, 0, len(userSessions))
	for _, s := range userSessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// SetGroupMembers records the membership of groupID, replacing any previous one.
func (m *SessionManager) SetGroupMembers(groupID string, members []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.groups[groupID]; ok {
		for u := range prev {
			if gs, ok := m.userGroups[u]; ok {
				delete(gs, groupID)
				if len(gs) == 0 {
					delete(m.userGroups, u)
				}
			}
		}
	}

	set := make(map[string]struct{}, len(members))
	for _, u := range members {
		set[u] = struct{}{}
		gs, ok := m.userGroups[u]
		if !ok {
			gs = make(map[string]struct{})
			m.userGroups[u] = gs
		}
		gs[groupID] = struct{}{}
	}
	m.groups[groupID] = set
}

// GroupMembers returns the members of groupID, sorted.
func (m *SessionManager) GroupMembers(groupID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.groups[groupID])
}

// GroupsOf returns the groups userID belongs to, sorted.
func (m *SessionManager) GroupsOf(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.userGroups[userID])
}

// IsMember reports whether userID belongs to groupID.
func (m *SessionManager) IsMember(groupID, userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.groups[groupID][userID]
	return ok
}

// Count returns the number of registered sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll closes and unregisters every session. It returns how many were closed.
func (m *SessionManager) CloseAll(code int, reason string) int {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.byUser = make(map[string]map[string]*Session)
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	for _, s := range all {
		s.Close(code, reason)
	}
	return len(all)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
