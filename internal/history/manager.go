package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"secondbrain/internal/logger"
)

// Manager handles persistence of the recently used conversations list
type Manager struct {
	filePath   string
	mu         sync.RWMutex
	history    *History
	maxEntries int
	now        func() time.Time
}

// NewManager creates a new history manager
func NewManager(filePath string, maxEntries int) *Manager {
	return &Manager{
		filePath:   filePath,
		history:    &History{Entries: []Entry{}},
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Load loads history from disk
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Create directory if it doesn't exist
	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := os.ReadFile(m.filePath)
	if errors.Is(err, os.ErrNotExist) {
		m.history = &History{Entries: []Entry{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history file: %w", err)
	}

	var loaded History
	if err := json.Unmarshal(data, &loaded); err != nil {
		// Corrupted file - backup and start fresh
		backupPath := m.filePath + ".backup"
		if renameErr := os.Rename(m.filePath, backupPath); renameErr != nil {
			logger.Warn("failed to back up corrupt history: %v", renameErr)
		}
		logger.Warn("history file was corrupt, moved to %s", backupPath)
		m.history = &History{Entries: []Entry{}}
		return nil
	}
	if loaded.Entries == nil {
		loaded.Entries = []Entry{}
	}
	m.history = &loaded
	return nil
}

// Touch records a turn in a conversation and persists the change. A
// non-empty title replaces the stored one.
func (m *Manager) Touch(conversationID, title string) error {
	if conversationID == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	found := false
	for i := range m.history.Entries {
		e := &m.history.Entries[i]
		if e.ConversationID != conversationID {
			continue
		}
		e.LastUsed = now
		e.Turns++
		if title != "" {
			e.Title = title
		}
		found = true
		break
	}
	if !found {
		m.history.Entries = append(m.history.Entries, Entry{
			ConversationID: conversationID,
			Title:          title,
			FirstUsed:      now,
			LastUsed:       now,
			Turns:          1,
		})
	}

	return m.saveUnlocked()
}

// Remove forgets a conversation
func (m *Manager) Remove(conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.history.Entries[:0]
	for _, e := range m.history.Entries {
		if e.ConversationID != conversationID {
			kept = append(kept, e)
		}
	}
	m.history.Entries = kept
	return m.saveUnlocked()
}

// Recent returns up to limit entries, most recently used first
func (m *Manager) Recent(limit int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, len(m.history.Entries))
	copy(entries, m.history.Entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastUsed.After(entries[j].LastUsed)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Last returns the most recently used conversation
func (m *Manager) Last() (Entry, bool) {
	recent := m.Recent(1)
	if len(recent) == 0 {
		return Entry{}, false
	}
	return recent[0], true
}

// Save persists the history to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnlocked()
}

// saveUnlocked saves without acquiring the lock (must be called with lock held)
func (m *Manager) saveUnlocked() error {
	// Prune the least recently used entries
	if len(m.history.Entries) > m.maxEntries {
		sort.SliceStable(m.history.Entries, func(i, j int) bool {
			return m.history.Entries[i].LastUsed.Before(m.history.Entries[j].LastUsed)
		})
		m.history.Entries = m.history.Entries[len(m.history.Entries)-m.maxEntries:]
	}

	data, err := json.MarshalIndent(m.history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	// Write to temp file
	tempPath := m.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, m.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
