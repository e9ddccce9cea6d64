// Marquee - Streaming Catalog Overlay and Metadata Enrichment
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package storage

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity bounds the in-memory backend when no capacity is given.
const DefaultMemoryCapacity = 10000

// memoryEntry is a node in the recency list.
type memoryEntry struct {
	key  string
	rec  Record
	prev *memoryEntry
	next *memoryEntry
}

// MemoryBackend is a process-local Backend with least-recently-used eviction.
//
// Lookups are O(1) through the map; the doubly-linked list keeps recency
// order so eviction at capacity is also O(1). head.next is the most recently
// used entry, tail.prev the least.
type MemoryBackend struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*memoryEntry
	head     *memoryEntry
	tail     *memoryEntry
}

// NewMemoryBackend creates an in-memory backend holding at most capacity records.
func NewMemoryBackend(capacity int) *MemoryBackend {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	m := &MemoryBackend{
		capacity: capacity,
		items:    make(map[string]*memoryEntry),
		head:     &memoryEntry{},
		tail:     &memoryEntry{},
	}
	m.head.next = m.tail
	m.tail.prev = m.head
	return m
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return "memory" }

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	m.moveToFront(e)
	return e.rec, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(_ context.Context, key string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.items[key]; ok {
		e.rec = rec
		m.moveToFront(e)
		return nil
	}

	if len(m.items) >= m.capacity {
		m.evictOldest()
	}

	e := &memoryEntry{key: key, rec: rec}
	m.items[key] = e
	m.addToFront(e)
	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.items[key]; ok {
		m.remove(e)
	}
	return nil
}

// DeleteExpired implements Backend.
func (m *MemoryBackend) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, e := range m.items {
		if e.rec.Expired(now) {
			m.remove(e)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of records held, expired or not.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close implements Backend.
func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) addToFront(e *memoryEntry) {
	e.prev = m.head
	e.next = m.head.next
	m.head.next.prev = e
	m.head.next = e
}

func (m *MemoryBackend) unlink(e *memoryEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (m *MemoryBackend) moveToFront(e *memoryEntry) {
	m.unlink(e)
	m.addToFront(e)
}

func (m *MemoryBackend) remove(e *memoryEntry) {
	m.unlink(e)
	delete(m.items, e.key)
}

func (m *MemoryBackend) evictOldest() {
	if oldest := m.tail.prev; oldest != m.head {
		m.remove(oldest)
	}
}
