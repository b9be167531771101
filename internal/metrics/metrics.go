package metrics

// Metrics collection for device command exchanges

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// OperationType separates state-changing commands from queries.
type OperationType string

const (
	OperationWrite  OperationType = "WRITE"
	OperationReport OperationType = "REPORT"
)

// Metric represents a single command exchange
type Metric struct {
	Timestamp time.Time     `json:"timestamp"`
	Device    string        `json:"device"`
	Dialect   string        `json:"dialect"`
	Command   string        `json:"command"`
	Operation OperationType `json:"operation"`
	Target    uint16        `json:"target"`
	Success   bool          `json:"success"`
	RTTMs     float64       `json:"rtt_ms"`
	JitterMs  float64       `json:"jitter_ms,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"` // frame sentinel text or "transport"
	TxBytes   int           `json:"tx_bytes"`
	RxBytes   int           `json:"rx_bytes"`
}

// Recorder accepts metrics. Sink, Collectors and Writer all implement it.
type Recorder interface {
	Record(m Metric)
}

// Multi fans one metric out to several recorders, skipping nils.
func Multi(rs ...Recorder) Recorder {
	out := make(multi, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multi []Recorder

func (m multi) Record(metric Metric) {
	for _, r := range m {
		r.Record(metric)
	}
}

// Sink collects and aggregates metrics
type Sink struct {
	mu      sync.RWMutex
	metrics []Metric
	summary *Summary
	lastRTT map[string]float64
}

func newSummary() *Summary {
	return &Summary{
		RTTBuckets:     make(map[string]int),
		RTTByOperation: make(map[OperationType]*OperationStats),
		RTTByCommand:   make(map[string]*OperationStats),
		ErrorsByKind:   make(map[string]int),
	}
}

// Summary contains aggregated statistics
type Summary struct {
	TotalOperations    int
	SuccessfulOps      int
	FailedOps          int
	TimeoutCount       int
	ConnectionFailures int
	ChecksumFailures   int
	MinRTT             float64
	MaxRTT             float64
	AvgRTT             float64
	P50RTT             float64
	P90RTT             float64
	P95RTT             float64
	P99RTT             float64
	AvgJitter          float64
	jitterCount        int
	RTTBuckets         map[string]int
	RTTByOperation     map[OperationType]*OperationStats
	RTTByCommand       map[string]*OperationStats
	ErrorsByKind       map[string]int
}

// OperationStats contains statistics for one operation type or command
type OperationStats struct {
	Count   int
	Success int
	Failed  int
	MinRTT  float64
	MaxRTT  float64
	AvgRTT  float64
	SumRTT  float64
}

// NewSink creates a new metrics sink
func NewSink() *Sink {
	return &Sink{
		metrics: make([]Metric, 0),
		summary: newSummary(),
		lastRTT: make(map[string]float64),
	}
}

// Record records a new metric. Jitter is derived from the previous
// successful RTT of the same command when the caller left it unset.
func (s *Sink) Record(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Success && m.RTTMs > 0 {
		if prev, ok := s.lastRTT[m.Command]; ok && m.JitterMs == 0 {
			m.JitterMs = math.Abs(m.RTTMs - prev)
		}
		s.lastRTT[m.Command] = m.RTTMs
	}
	s.metrics = append(s.metrics, m)
	s.updateSummary(m)
}

// GetMetrics returns a copy of all recorded metrics
func (s *Sink) GetMetrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := make([]Metric, len(s.metrics))
	copy(metrics, s.metrics)
	return metrics
}

// GetSummary returns a deep copy of the aggregated summary
func (s *Sink) GetSummary() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := *s.summary
	summary.RTTBuckets = make(map[string]int)
	summary.RTTByOperation = make(map[OperationType]*OperationStats, len(s.summary.RTTByOperation))
	summary.RTTByCommand = make(map[string]*OperationStats, len(s.summary.RTTByCommand))
	summary.ErrorsByKind = make(map[string]int, len(s.summary.ErrorsByKind))

	for op, stats := range s.summary.RTTByOperation {
		cp := *stats
		summary.RTTByOperation[op] = &cp
	}
	for name, stats := range s.summary.RTTByCommand {
		cp := *stats
		summary.RTTByCommand[name] = &cp
	}
	for k, v := range s.summary.ErrorsByKind {
		summary.ErrorsByKind[k] = v
	}

	rtts := make([]float64, 0, len(s.metrics))
	for _, m := range s.metrics {
		if m.Success && m.RTTMs > 0 {
			rtts = append(rtts, m.RTTMs)
			incrementBucket(summary.RTTBuckets, m.RTTMs)
		}
	}
	p := computePercentiles(rtts)
	summary.P50RTT, summary.P90RTT, summary.P95RTT, summary.P99RTT = p[0], p[1], p[2], p[3]

	return &summary
}

// updateSummary updates the summary statistics with a new metric
func (s *Sink) updateSummary(m Metric) {
	s.summary.TotalOperations++

	if m.Success {
		s.summary.SuccessfulOps++
	} else {
		s.summary.FailedOps++
		if m.ErrorKind != "" {
			s.summary.ErrorsByKind[m.ErrorKind]++
		}
		switch {
		case strings.Contains(m.Error, "timeout") || strings.Contains(m.Error, "deadline exceeded"):
			s.summary.TimeoutCount++
		case strings.Contains(m.Error, "connection") || strings.Contains(m.Error, "connect"):
			s.summary.ConnectionFailures++
		case strings.Contains(m.Error, "checksum"):
			s.summary.ChecksumFailures++
		}
	}

	if m.JitterMs > 0 {
		s.summary.jitterCount++
		total := s.summary.AvgJitter * float64(s.summary.jitterCount-1)
		s.summary.AvgJitter = (total + m.JitterMs) / float64(s.summary.jitterCount)
	}

	if m.Success && m.RTTMs > 0 {
		if s.summary.MinRTT == 0 || m.RTTMs < s.summary.MinRTT {
			s.summary.MinRTT = m.RTTMs
		}
		if m.RTTMs > s.summary.MaxRTT {
			s.summary.MaxRTT = m.RTTMs
		}
		totalRTT := s.summary.AvgRTT * float64(s.summary.SuccessfulOps-1)
		s.summary.AvgRTT = (totalRTT + m.RTTMs) / float64(s.summary.SuccessfulOps)
	}

	opStats, ok := s.summary.RTTByOperation[m.Operation]
	if !ok {
		opStats = &OperationStats{}
		s.summary.RTTByOperation[m.Operation] = opStats
	}
	opStats.add(m)

	cmdStats, ok := s.summary.RTTByCommand[m.Command]
	if !ok {
		cmdStats = &OperationStats{}
		s.summary.RTTByCommand[m.Command] = cmdStats
	}
	cmdStats.add(m)
}

func (st *OperationStats) add(m Metric) {
	st.Count++
	if !m.Success {
		st.Failed++
		return
	}
	st.Success++
	if m.RTTMs <= 0 {
		return
	}
	if st.MinRTT == 0 || m.RTTMs < st.MinRTT {
		st.MinRTT = m.RTTMs
	}
	if m.RTTMs > st.MaxRTT {
		st.MaxRTT = m.RTTMs
	}
	st.SumRTT += m.RTTMs
	st.AvgRTT = st.SumRTT / float64(st.Success)
}

func incrementBucket(buckets map[string]int, value float64) {
	switch {
	case value < 1:
		buckets["lt_1ms"]++
	case value < 5:
		buckets["1_5ms"]++
	case value < 10:
		buckets["5_10ms"]++
	case value < 50:
		buckets["10_50ms"]++
	case value < 100:
		buckets["50_100ms"]++
	case value < 500:
		buckets["100_500ms"]++
	default:
		buckets["gt_500ms"]++
	}
}

func computePercentiles(values []float64) [4]float64 {
	var result [4]float64
	if len(values) == 0 {
		return result
	}
	sort.Float64s(values)
	result[0] = percentile(values, 0.50)
	result[1] = percentile(values, 0.90)
	result[2] = percentile(values, 0.95)
	result[3] = percentile(values, 0.99)
	return result
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
