package common

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics counts files processed by a batch run.
type Metrics struct {
	mu         sync.Mutex
	start      time.Time
	end        time.Time
	files      int64
	totalFiles int64
	bytes      int64
	states     map[string]int64
}

func NewMetrics() *Metrics {
	return &Metrics{states: make(map[string]int64)}
}

func (m *Metrics) Start() {
	m.mu.Lock()
	if m.start.IsZero() {
		m.start = time.Now()
		m.end = time.Time{}
	}
	m.mu.Unlock()
}

func (m *Metrics) Stop() {
	m.mu.Lock()
	if !m.start.IsZero() && m.end.IsZero() {
		m.end = time.Now()
	}
	m.mu.Unlock()
}

// AddFile records one finished file, its final state and size.
func (m *Metrics) AddFile(state string, size int64) {
	m.mu.Lock()
	m.files++
	if size > 0 {
		m.bytes += size
	}
	if m.states == nil {
		m.states = make(map[string]int64)
	}
	m.states[state]++
	m.mu.Unlock()
}

func (m *Metrics) SetTotalFiles(total int64) {
	if total < 0 {
		total = 0
	}
	m.mu.Lock()
	m.totalFiles = total
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := make(map[string]int64, len(m.states))
	for k, v := range m.states {
		states[k] = v
	}
	return MetricsSnapshot{
		Duration:   m.elapsedLocked(),
		Files:      m.files,
		TotalFiles: m.totalFiles,
		Bytes:      m.bytes,
		States:     states,
	}
}

func (m *Metrics) elapsedLocked() time.Duration {
	if m.start.IsZero() {
		return 0
	}
	if !m.end.IsZero() {
		return m.end.Sub(m.start)
	}
	return time.Since(m.start)
}

type MetricsSnapshot struct {
	Duration   time.Duration    `json:"duration"`
	Files      int64            `json:"files"`
	TotalFiles int64            `json:"totalFiles"`
	Bytes      int64            `json:"bytes"`
	States     map[string]int64 `json:"states"`
}

func (s MetricsSnapshot) FilesPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Files) / s.Duration.Seconds()
}

func (s MetricsSnapshot) Completion() float64 {
	if s.TotalFiles <= 0 {
		return 0
	}
	ratio := float64(s.Files) / float64(s.TotalFiles)
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

// StateSummary formats the per-state counts as "A=1 B=2", sorted by state.
func (s MetricsSnapshot) StateSummary() string {
	keys := make([]string, 0, len(s.States))
	for k := range s.States {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, s.States[k]))
	}
	return strings.Join(parts, " ")
}

func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div := float64(unit)
	exp := 0
	for n := float64(b) / div; n >= unit && exp < 6; n /= unit {
		div *= unit
		exp++
	}
	prefixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	return fmt.Sprintf("%.2f %s", float64(b)/div, prefixes[exp])
}

func formatProgressLine(s MetricsSnapshot) string {
	if s.TotalFiles > 0 {
		pct := s.Completion() * 100
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			pct = 0
		}
		return fmt.Sprintf("Progress: %6.2f%% (%d / %d files, %s) %.1f files/s", pct, s.Files, s.TotalFiles, FormatBytes(s.Bytes), s.FilesPerSecond())
	}
	return fmt.Sprintf("Processed: %d files (%s) %.1f files/s", s.Files, FormatBytes(s.Bytes), s.FilesPerSecond())
}

// StartProgressPrinter redraws a progress line on w until the returned stop
// function is called.
func StartProgressPrinter(w io.Writer, m *Metrics, interval time.Duration) func() {
	if m == nil || w == nil {
		return func() {}
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastLen := 0
		for {
			select {
			case <-ticker.C:
				line := formatProgressLine(m.Snapshot())
				if pad := lastLen - len(line); pad > 0 {
					line += strings.Repeat(" ", pad)
				}
				fmt.Fprintf(w, "\r%s", line)
				lastLen = len(line)
			case <-done:
				if lastLen > 0 {
					fmt.Fprintf(w, "\r%s\r\n", strings.Repeat(" ", lastLen))
				}
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
