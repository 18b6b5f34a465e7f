// Package audit implements a hash-chained audit log (§4.9), structurally
// parallel to the provenance ledger but kept separate: the ledger records
// signed data-plane operations an agent performed, while the audit log
// records control-plane events about the trust layer itself (denied
// access, registry changes, integrity failures) that may need recording
// even when no agent signature is available.
package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Severity classifies an audit event.
type Severity int

const (
	Info Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Event is one audit log record.
type Event struct {
	Sequence  uint64
	Timestamp time.Time
	Severity  Severity
	AgentID   string
	Message   string
	PrevHash  [32]byte
}

func eventHash(e *Event) [32]byte {
	var buf []byte
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], e.Sequence)
	buf = append(buf, seqBuf[:]...)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(e.Timestamp.UnixNano()))
	buf = append(buf, tsBuf[:]...)
	buf = append(buf, byte(e.Severity))
	buf = append(buf, []byte(e.AgentID)...)
	buf = append(buf, []byte(e.Message)...)
	buf = append(buf, e.PrevHash[:]...)
	return sha256.Sum256(buf)
}

// Manager is a mutex-serialized, hash-chained audit log.
type Manager struct {
	mu       sync.Mutex
	events   []*Event
	lastHash [32]byte
	now      func() time.Time
}

// New creates an empty audit log.
func New() *Manager {
	return &Manager{now: time.Now}
}

// Record appends a new event, chaining it to the previous one.
func (m *Manager) Record(severity Severity, agentID, message string) *Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &Event{
		Sequence:  uint64(len(m.events)),
		Timestamp: m.now(),
		Severity:  severity,
		AgentID:   agentID,
		Message:   message,
		PrevHash:  m.lastHash,
	}
	m.events = append(m.events, e)
	m.lastHash = eventHash(e)
	return e
}

// Restore appends a previously-recorded event without recomputing its
// place in the chain, used when reloading the log from its backing
// system table on open. Callers must restore events in ascending
// sequence order.
func (m *Manager) Restore(e *Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	m.lastHash = eventHash(e)
}

// Events returns every recorded event in sequence order.
func (m *Manager) Events() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

// Len reports how many events the log holds.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// VerifyIntegrity walks the chain checking prev-hash linkage and the last
// event's hash against the recorded chain head, detecting any tampering
// or reordering of recorded events.
func (m *Manager) VerifyIntegrity() error {
	m.mu.Lock()
	events := make([]*Event, len(m.events))
	copy(events, m.events)
	lastHash := m.lastHash
	m.mu.Unlock()

	var prevHash [32]byte
	for _, e := range events {
		if e.PrevHash != prevHash {
			return fmt.Errorf("audit: event %d has broken prev-hash linkage", e.Sequence)
		}
		prevHash = eventHash(e)
	}
	if len(events) > 0 && prevHash != lastHash {
		return fmt.Errorf("audit: event %d does not match the recorded chain head", events[len(events)-1].Sequence)
	}
	return nil
}

// Since returns every event with Sequence >= fromSeq.
func (m *Manager) Since(fromSeq uint64) []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Event
	for _, e := range m.events {
		if e.Sequence >= fromSeq {
			out = append(out, e)
		}
	}
	return out
}
