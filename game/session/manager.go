package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wricardo/mcp-training/solarfarm/game/engine"
	"github.com/wricardo/mcp-training/solarfarm/game/service"
)

var (
	ErrSessionNotFound      = service.ErrSessionNotFound
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

// maxIDAttempts bounds the retries when a generated ID collides
const maxIDAttempts = 32

// Manager handles simulation session lifecycle
type Manager struct {
	sessions map[string]*service.Session
	mu       sync.RWMutex
}

// NewManager creates a new session manager
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*service.Session),
	}
}

// Create creates a session with its own engine, already reset into the
// scenario's first episode. An empty id gets a generated one.
func (m *Manager) Create(id string, config *engine.SimConfig) (*service.Session, error) {
	eng, err := engine.NewEngine(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	eng.ResetFromConfig()

	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id, err = m.uniqueSessionID()
		if err != nil {
			return nil, err
		}
	} else if strings.TrimSpace(id) != id || strings.ContainsAny(id, "/ ") {
		return nil, ErrInvalidSessionID
	}

	if m.sessionExists(id) {
		return nil, ErrSessionAlreadyExists
	}

	now := time.Now()
	session := &service.Session{
		ID:             id,
		Engine:         eng,
		Config:         config,
		CreatedAt:      now,
		LastAccessedAt: now,
		Episode:        1,
	}

	m.sessions[strings.ToLower(id)] = session
	return session, nil
}

// Get retrieves a session by ID (case-insensitive)
func (m *Manager) Get(id string) (*service.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[strings.ToLower(id)]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// GetOrCreate gets an existing session or creates a new one
func (m *Manager) GetOrCreate(id string, config *engine.SimConfig) (*service.Session, error) {
	session, err := m.Get(id)
	if err == nil {
		return session, nil
	}

	if errors.Is(err, ErrSessionNotFound) {
		return m.Create(id, config)
	}
	return nil, err
}

// List returns all active sessions
func (m *Manager) List() []*service.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

// Delete removes a session
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lowerID := strings.ToLower(id)
	if _, exists := m.sessions[lowerID]; !exists {
		return ErrSessionNotFound
	}
	delete(m.sessions, lowerID)
	return nil
}

// UpdateLastAccessed updates the last accessed time for a session
func (m *Manager) UpdateLastAccessed(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[strings.ToLower(id)]
	if !exists {
		return ErrSessionNotFound
	}
	session.LastAccessedAt = time.Now()
	return nil
}

// CleanupExpiredSessions removes sessions that haven't been accessed in the given duration
func (m *Manager) CleanupExpiredSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for id, session := range m.sessions {
		if session.LastAccessedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}

	return removed
}

// Count returns the number of active sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// uniqueSessionID draws 4-hex-character IDs until one is free. Callers hold m.mu.
func (m *Manager) uniqueSessionID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := generateSessionID()
		if !m.sessionExists(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no free ID after %d attempts", ErrSessionAlreadyExists, maxIDAttempts)
}

// generateSessionID generates a random 4-character session ID
func generateSessionID() string {
	bytes := make([]byte, 2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// sessionExists checks if a session exists (case-insensitive)
func (m *Manager) sessionExists(id string) bool {
	_, exists := m.sessions[strings.ToLower(id)]
	return exists
}
