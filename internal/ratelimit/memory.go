package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

type memoryEntry struct {
	events []time.Time
	window time.Duration
}

// MemoryCounter keeps events in process. Only suitable for a single instance.
type MemoryCounter struct {
	mu            sync.Mutex
	events        map[string]*memoryEntry
	sweepInterval time.Duration
	lastSweep     time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		events:        make(map[string]*memoryEntry),
		sweepInterval: defaultSweepInterval,
	}
}

func memoryKey(action string, scope Scope, id string) string {
	return strings.Join([]string{action, string(scope), id}, "|")
}

func (m *MemoryCounter) Count(_ context.Context, action string, scope Scope, id string, since time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.countLocked(memoryKey(action, scope, id), since)
	return w.Count, w.Oldest, nil
}

func (m *MemoryCounter) Take(_ context.Context, action, workspaceID, actorID string, at time.Time, window time.Duration, limits Limits) (Usage, error) {
	actorKey := memoryKey(action, ScopeActor, actorID)
	workspaceKey := memoryKey(action, ScopeWorkspace, workspaceID)
	since := at.Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()
	usage := Usage{
		Actor:     m.countLocked(actorKey, since),
		Workspace: m.countLocked(workspaceKey, since),
	}
	if exceeded(limits.Actor, usage.Actor) || exceeded(limits.Workspace, usage.Workspace) {
		return usage, nil
	}
	m.appendLocked(actorKey, at, window)
	m.appendLocked(workspaceKey, at, window)
	m.cleanupExpiredLocked(at)
	usage.Recorded = true
	return usage, nil
}

func exceeded(limit int, w Window) bool {
	return limit > 0 && w.Count >= limit
}

func (m *MemoryCounter) countLocked(key string, since time.Time) Window {
	entry, ok := m.events[key]
	if !ok {
		return Window{}
	}
	var w Window
	for _, at := range entry.events {
		if at.Before(since) {
			continue
		}
		if w.Count == 0 {
			w.Oldest = at
		}
		w.Count++
	}
	return w
}

func (m *MemoryCounter) appendLocked(key string, at time.Time, window time.Duration) {
	entry, ok := m.events[key]
	if !ok {
		entry = &memoryEntry{window: window}
		m.events[key] = entry
	}
	if window > entry.window {
		entry.window = window
	}
	entry.events = append(entry.events, at)
}

// cleanupExpiredLocked sweeps relative to the event clock, never the wall clock.
func (m *MemoryCounter) cleanupExpiredLocked(now time.Time) {
	if !m.lastSweep.IsZero() && now.Sub(m.lastSweep) < m.sweepInterval {
		return
	}
	m.lastSweep = now
	for key, entry := range m.events {
		cutoff := now.Add(-entry.window)
		idx := 0
		for idx < len(entry.events) && entry.events[idx].Before(cutoff) {
			idx++
		}
		if idx == len(entry.events) {
			delete(m.events, key)
			continue
		}
		entry.events = entry.events[idx:]
	}
}
