// Package session holds the identity of the signed-in user.
package session

import (
	"sync"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"
)

type Reason string

const (
	ReasonLogin   Reason = "login"
	ReasonLogout  Reason = "logout"
	ReasonExpired Reason = "expired"
)

type ChangeHandler func(reason Reason, ident domain.Identity, ok bool)

type Store struct {
	mu        sync.RWMutex
	ident     domain.Identity
	loggedIn  bool
	listeners []ChangeHandler
	log       logger.Logger
}

func NewStore(log logger.Logger) *Store {
	return &Store{log: log}
}

func (s *Store) Current() (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ident, s.loggedIn
}

// OnChange registers fn to run after every login, logout and expiry.
func (s *Store) OnChange(fn ChangeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) Login(userID, token string) {
	s.mu.Lock()
	s.ident = domain.Identity{UserID: userID, Token: token}
	s.loggedIn = userID != ""
	s.mu.Unlock()

	s.log.Info("Session started", "user_id", userID)
	s.emit(ReasonLogin)
}

func (s *Store) Logout() {
	if !s.clear() {
		return
	}
	s.log.Info("Session ended")
	s.emit(ReasonLogout)
}

// Expire ends the session after the backend rejected its token.
func (s *Store) Expire() {
	if !s.clear() {
		return
	}
	s.log.Warn("Session expired, logging out")
	s.emit(ReasonExpired)
}

func (s *Store) clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.loggedIn
	s.ident = domain.Identity{}
	s.loggedIn = false
	return was
}

func (s *Store) emit(reason Reason) {
	s.mu.RLock()
	ident, ok := s.ident, s.loggedIn
	listeners := make([]ChangeHandler, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(reason, ident, ok)
	}
}
