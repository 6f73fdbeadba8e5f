package config

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
)

// Filters defines which incoming messages never get a drafted reply.
type Filters struct {
	IgnoreSenders           []string `json:"ignoreSenders"`
	IgnoreKeywordsInSubject []string `json:"ignoreKeywordsInSubject"`
}

// Manager handles loading, saving, and accessing filter configurations.
type Manager struct {
	filePath string
	filters  *Filters
	mu       sync.RWMutex
}

// NewManager creates a new filter manager.
func NewManager(filePath string) (*Manager, error) {
	m := &Manager{
		filePath: filePath,
		filters:  &Filters{}, // Initialize with empty filters
	}
	err := m.LoadFilters()
	if err != nil {
		// A missing file is fine, it is created with empty filters
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return m, nil
}

// LoadFilters loads filter rules from the JSON file, creating an empty one
// when it does not exist yet.
func (m *Manager) LoadFilters() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, initialize with empty filters
			m.filters = &Filters{
				IgnoreSenders:           []string{},
				IgnoreKeywordsInSubject: []string{},
			}
			return m.saveFilters() // Create the file with empty structure
		}
		return err
	}

	var filters Filters
	if err := json.Unmarshal(data, &filters); err != nil {
		return err
	}
	m.filters = &filters
	return nil
}

// saveFilters saves the current filter rules to the JSON file.
// Callers must hold mu.
func (m *Manager) saveFilters() error {
	data, err := json.MarshalIndent(m.filters, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.filePath, data, 0644)
}

// GetFilters returns a copy of the current filters.
func (m *Manager) GetFilters() Filters {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return a copy to prevent external modification of the internal state
	return Filters{
		IgnoreSenders:           append([]string(nil), m.filters.IgnoreSenders...),
		IgnoreKeywordsInSubject: append([]string(nil), m.filters.IgnoreKeywordsInSubject...),
	}
}

// AddIgnoreSender adds a sender to the ignore list and saves.
func (m *Manager) AddIgnoreSender(sender string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Avoid duplicates
	for _, s := range m.filters.IgnoreSenders {
		if s == sender {
			return nil // Already exists
		}
	}
	m.filters.IgnoreSenders = append(m.filters.IgnoreSenders, sender)
	return m.saveFilters()
}

// AddIgnoreKeywordInSubject adds a subject keyword to the ignore list and saves.
func (m *Manager) AddIgnoreKeywordInSubject(keyword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.filters.IgnoreKeywordsInSubject {
		if k == keyword {
			return nil // Already exists
		}
	}
	m.filters.IgnoreKeywordsInSubject = append(m.filters.IgnoreKeywordsInSubject, keyword)
	return m.saveFilters()
}

// ShouldSkip reports whether a message from sender with subject matches an
// ignore rule. Matching is a case-insensitive substring test.
func (m *Manager) ShouldSkip(sender, subject string) bool {
	filters := m.GetFilters()
	for _, s := range filters.IgnoreSenders {
		if s != "" && strings.Contains(strings.ToLower(sender), strings.ToLower(s)) {
			return true
		}
	}
	for _, k := range filters.IgnoreKeywordsInSubject {
		if k != "" && strings.Contains(strings.ToLower(subject), strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// TODO: Add functions to remove filters
