// internal/transport/stats.go
package transport

import (
	"sync"
	"time"
)

// statistics tracks link counters for one session. Counters only ever
// increase; they are reset as a whole on each successful connect.
type statistics struct {
	mu        sync.Mutex
	rxBytes   uint64
	txBytes   uint64
	rxPackets uint64
	txPackets uint64
	errors    uint64
	startTime time.Time
}

// StatsSnapshot is a point-in-time copy of the link statistics with
// derived fields computed on read.
type StatsSnapshot struct {
	RxBytes   uint64    `json:"rx_bytes"`
	TxBytes   uint64    `json:"tx_bytes"`
	RxPackets uint64    `json:"rx_packets"`
	TxPackets uint64    `json:"tx_packets"`
	Errors    uint64    `json:"errors"`
	StartTime time.Time `json:"start_time"`
	Duration  float64   `json:"duration_seconds"`
	RxRate    float64   `json:"rx_rate"`
	TxRate    float64   `json:"tx_rate"`
}

func (s *statistics) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rxBytes = 0
	s.txBytes = 0
	s.rxPackets = 0
	s.txPackets = 0
	s.errors = 0
	s.startTime = time.Now()
}

func (s *statistics) addRx(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rxBytes += uint64(n)
	s.rxPackets++
}

func (s *statistics) addTx(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txBytes += uint64(n)
	s.txPackets++
}

func (s *statistics) addError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

func (s *statistics) snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		RxBytes:   s.rxBytes,
		TxBytes:   s.txBytes,
		RxPackets: s.rxPackets,
		TxPackets: s.txPackets,
		Errors:    s.errors,
		StartTime: s.startTime,
	}

	if !s.startTime.IsZero() {
		duration := time.Since(s.startTime).Seconds()
		snap.Duration = duration
		if duration > 0 {
			snap.RxRate = float64(s.rxBytes) / duration
			snap.TxRate = float64(s.txBytes) / duration
		}
	}

	return snap
}
