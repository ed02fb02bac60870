package connector

import (
	"sync"
	"time"

	"energylink/internal/apperrors"
	"energylink/models"
)

// Session tracks the connection status of one connector instance. Only the
// owning connector's lifecycle methods move it between states.
type Session struct {
	exchange    string
	mu          sync.RWMutex
	status      models.ConnectionStatus
	connectedAt time.Time
	lastError   string
}

func NewSession(exchange string) *Session {
	return &Session{exchange: exchange, status: models.StatusDisconnected}
}

func (s *Session) Status() models.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Begin moves the session to connecting. It returns false when the session
// is already connected, and an error when another Connect is in progress.
func (s *Session) Begin() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case models.StatusConnected:
		return false, nil
	case models.StatusConnecting:
		return false, &apperrors.ConnectionError{Exchange: s.exchange, Reason: "connection already in progress"}
	}
	s.status = models.StatusConnecting
	s.lastError = ""
	return true, nil
}

// Established marks the session connected.
func (s *Session) Established() {
	s.mu.Lock()
	s.status = models.StatusConnected
	s.connectedAt = time.Now().UTC()
	s.mu.Unlock()
}

// Fail moves the session to error and returns the matching ConnectionError.
func (s *Session) Fail(reason string) (models.ConnectionStatus, error) {
	s.mu.Lock()
	s.status = models.StatusError
	s.lastError = reason
	s.mu.Unlock()
	return models.StatusError, &apperrors.ConnectionError{Exchange: s.exchange, Reason: reason}
}

// Close returns the session to disconnected.
func (s *Session) Close() {
	s.mu.Lock()
	s.status = models.StatusDisconnected
	s.connectedAt = time.Time{}
	s.mu.Unlock()
}

// RequireConnected returns a ConnectionError unless the session is connected.
func (s *Session) RequireConnected() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != models.StatusConnected {
		return &apperrors.ConnectionError{Exchange: s.exchange, Reason: "not connected (status " + string(s.status) + ")"}
	}
	return nil
}

// LastError is the reason recorded by the most recent Fail.
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}
