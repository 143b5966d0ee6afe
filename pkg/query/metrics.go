package query

import (
	"sync"
	"time"
)

// Metrics is a snapshot of pipeline statistics.
type Metrics struct {
	// QueriesTotal counts all queries received.
	QueriesTotal int64 `json:"queries_total"`

	// QueriesFailed counts queries that ended in a failed stage.
	QueriesFailed int64 `json:"queries_failed"`

	// Last per-stage latencies for the most recent completed query.
	LastTranscribe time.Duration `json:"-"`
	LastReason     time.Duration `json:"-"`
	LastSynthesize time.Duration `json:"-"`
	LastTotal      time.Duration `json:"-"`

	// Millisecond views for JSON consumers.
	LastTranscribeMs int64 `json:"last_transcribe_ms"`
	LastReasonMs     int64 `json:"last_reason_ms"`
	LastSynthesizeMs int64 `json:"last_synthesize_ms"`
	LastTotalMs      int64 `json:"last_total_ms"`
}

// collector aggregates metrics across queries.
type collector struct {
	mu sync.Mutex
	m  Metrics
}

func (c *collector) markReceived() {
	c.mu.Lock()
	c.m.QueriesTotal++
	c.mu.Unlock()
}

func (c *collector) markFailed() {
	c.mu.Lock()
	c.m.QueriesFailed++
	c.mu.Unlock()
}

func (c *collector) markDone(t Timing) {
	c.mu.Lock()
	c.m.LastTranscribe = t.Transcribe
	c.m.LastReason = t.Reason
	c.m.LastSynthesize = t.Synthesize
	c.m.LastTotal = t.Total
	c.m.LastTranscribeMs = t.Transcribe.Milliseconds()
	c.m.LastReasonMs = t.Reason.Milliseconds()
	c.m.LastSynthesizeMs = t.Synthesize.Milliseconds()
	c.m.LastTotalMs = t.Total.Milliseconds()
	c.mu.Unlock()
}

func (c *collector) snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m
}

// Timing holds per-stage latencies for one query.
type Timing struct {
	Transcribe time.Duration
	Reason     time.Duration
	Synthesize time.Duration
	Total      time.Duration
}
