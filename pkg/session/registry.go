// Package session tracks per-device state for the lifetime of the
// server process. A session is created lazily on first contact from a
// device and owns that device's rolling frame buffer.
package session

import (
	"sync"
	"time"

	"github.com/sightline-ai/go-sightline/pkg/frame"
)

// Session is the state held for one device.
type Session struct {
	// DeviceID is the stable key for the device, either an explicit
	// identifier or a network-origin fallback.
	DeviceID string

	// Frames is the device's rolling frame buffer.
	Frames *frame.Store

	// CreatedAt is when the device was first seen.
	CreatedAt time.Time
}

// Registry maps device IDs to sessions. Sessions are never removed;
// bounding the number of distinct devices is out of scope.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newStore func(deviceID string) *frame.Store
}

// NewRegistry creates a registry. newStore builds the frame store for
// each newly seen device.
func NewRegistry(newStore func(deviceID string) *frame.Store) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		newStore: newStore,
	}
}

// GetOrCreate returns the session for deviceID, creating it atomically
// on first contact. Concurrent first contacts for the same device all
// receive the same session; device reads take only the shared read
// lock, so traffic for distinct devices proceeds in parallel.
func (r *Registry) GetOrCreate(deviceID string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[deviceID]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have won the race between the two locks.
	if s, ok := r.sessions[deviceID]; ok {
		return s
	}
	s = &Session{
		DeviceID:  deviceID,
		Frames:    r.newStore(deviceID),
		CreatedAt: time.Now(),
	}
	r.sessions[deviceID] = s
	return s
}

// Len returns the number of known devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns all sessions, in no particular order.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
