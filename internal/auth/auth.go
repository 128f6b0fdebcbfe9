// Package auth issues and validates owner tokens and stores CLI credentials.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session is the token a CLI user authenticates with.
type Session struct {
	Token     string `json:"token"`
	Owner     string `json:"owner"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// Credentials stores the complete auth credentials.
type Credentials struct {
	Session   Session `json:"session"`
	CreatedAt int64   `json:"created_at"`
}

// Manager keeps the CLI session in <configDir>/credentials.json.
type Manager struct {
	configDir   string
	credentials *Credentials
	mu          sync.RWMutex
	now         func() time.Time
}

// NewManager creates a manager rooted at configDir, loading any saved session.
func NewManager(configDir string) (*Manager, error) {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{configDir: configDir, now: time.Now}

	// A missing or unreadable file means logged out.
	_ = m.loadCredentials()

	return m, nil
}

// IsAuthenticated checks if a session is stored and not expired.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.credentials == nil || m.credentials.Session.Token == "" {
		return false
	}
	if m.credentials.Session.ExpiresAt == 0 {
		return true
	}

	// Treat tokens about to expire as expired (5 minute buffer).
	expiresAt := time.Unix(m.credentials.Session.ExpiresAt, 0)
	return m.now().Before(expiresAt.Add(-5 * time.Minute))
}

// GetSession returns the stored session, or nil.
func (m *Manager) GetSession() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.credentials == nil {
		return nil
	}
	s := m.credentials.Session
	return &s
}

// Login stores session as the current credentials.
func (m *Manager) Login(session Session) error {
	if session.Token == "" {
		return fmt.Errorf("token is required")
	}

	m.mu.Lock()
	m.credentials = &Credentials{
		Session:   session,
		CreatedAt: m.now().Unix(),
	}
	m.mu.Unlock()

	if err := m.saveCredentials(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Logout clears the current session.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.credentials = nil
	m.mu.Unlock()

	if err := os.Remove(m.credentialsPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}

	return nil
}

// credentialsPath returns the path to the credentials file.
func (m *Manager) credentialsPath() string {
	return filepath.Join(m.configDir, "credentials.json")
}

// loadCredentials loads credentials from disk.
func (m *Manager) loadCredentials() error {
	data, err := os.ReadFile(m.credentialsPath())
	if err != nil {
		return err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return err
	}

	m.mu.Lock()
	m.credentials = &creds
	m.mu.Unlock()

	return nil
}

// saveCredentials saves credentials to disk.
func (m *Manager) saveCredentials() error {
	m.mu.RLock()
	creds := m.credentials
	m.mu.RUnlock()

	if creds == nil {
		return nil
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(m.credentialsPath(), data, 0600)
}
