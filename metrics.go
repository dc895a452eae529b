package ipcring

import (
	"time"

	"code.hybscloud.com/atomix"

	"github.com/adiknoth/ffado-sub007/internal/interfaces"
)

// LatencyBuckets defines the commit-latency histogram buckets in
// nanoseconds, covering 1us to 10s log-spaced, same shape as the
// teacher pack's I/O latency histogram.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks ring buffer operational statistics: blocks written and
// read through CommitWrite/CommitRead, overruns, and out-of-band
// notification warnings (spec §8 properties on sequence drift).
type Metrics struct {
	BlocksWritten atomix.Uint64
	BlocksRead    atomix.Uint64
	WriteErrors   atomix.Uint64
	ReadErrors    atomix.Uint64
	Overruns      atomix.Uint64
	Warnings      atomix.Uint64

	TotalLatencyNs atomix.Uint64
	OpCount        atomix.Uint64
	LatencyBuckets [numLatencyBuckets]atomix.Uint64

	StartTime atomix.Int64
	StopTime  atomix.Int64
}

// NewMetrics creates a fresh metrics instance stamped with the current time.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.StoreRelease(time.Now().UnixNano())
	return m
}

// RecordWrite records one CommitWrite outcome.
func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	if success {
		m.BlocksWritten.AddAcqRel(1)
	} else {
		m.WriteErrors.AddAcqRel(1)
	}
	m.recordLatency(latencyNs)
}

// RecordRead records one CommitRead outcome.
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	if success {
		m.BlocksRead.AddAcqRel(1)
	} else {
		m.ReadErrors.AddAcqRel(1)
	}
	m.recordLatency(latencyNs)
}

// RecordOverrun records a slot being overwritten before its prior
// value was consumed (spec §3, overrun policy).
func (m *Metrics) RecordOverrun() {
	m.Overruns.AddAcqRel(1)
}

// RecordWarning records a non-fatal anomaly, e.g. a sequence number
// that skipped ahead of what the notification handler expected.
func (m *Metrics) RecordWarning() {
	m.Warnings.AddAcqRel(1)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.AddAcqRel(latencyNs)
	m.OpCount.AddAcqRel(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].AddAcqRel(1)
		}
	}
}

// Stop marks the ring as stopped for uptime accounting.
func (m *Metrics) Stop() {
	m.StopTime.StoreRelease(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics suitable for
// logging, e.g. the serve subcommand's final metrics line.
type MetricsSnapshot struct {
	BlocksWritten uint64
	BlocksRead    uint64
	WriteErrors   uint64
	ReadErrors    uint64
	Overruns      uint64
	Warnings      uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns uint64
	LatencyP99Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot computes a MetricsSnapshot from the live counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		BlocksWritten: m.BlocksWritten.LoadAcquire(),
		BlocksRead:    m.BlocksRead.LoadAcquire(),
		WriteErrors:   m.WriteErrors.LoadAcquire(),
		ReadErrors:    m.ReadErrors.LoadAcquire(),
		Overruns:      m.Overruns.LoadAcquire(),
		Warnings:      m.Warnings.LoadAcquire(),
	}

	totalLatencyNs := m.TotalLatencyNs.LoadAcquire()
	opCount := m.OpCount.LoadAcquire()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.LoadAcquire()
	stopTime := m.StopTime.LoadAcquire()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].LoadAcquire()
	}
	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
	}

	return snap
}

func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.LoadAcquire()
	if totalOps == 0 {
		return 0
	}
	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].LoadAcquire()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].LoadAcquire()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, useful between test scenarios.
func (m *Metrics) Reset() {
	m.BlocksWritten.StoreRelease(0)
	m.BlocksRead.StoreRelease(0)
	m.WriteErrors.StoreRelease(0)
	m.ReadErrors.StoreRelease(0)
	m.Overruns.StoreRelease(0)
	m.Warnings.StoreRelease(0)
	m.TotalLatencyNs.StoreRelease(0)
	m.OpCount.StoreRelease(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].StoreRelease(0)
	}
	m.StartTime.StoreRelease(time.Now().UnixNano())
	m.StopTime.StoreRelease(0)
}

// MetricsObserver adapts Metrics to interfaces.Observer so the core
// ring buffer can report into it without an import cycle.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver wraps m as an interfaces.Observer.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveOverrun() {
	o.metrics.RecordOverrun()
}

func (o *MetricsObserver) ObserveWarning() {
	o.metrics.RecordWarning()
}

// NoOpObserver discards every observation. A Ring built without an
// Observer uses a MetricsObserver over its own Metrics instead; pass
// NoOpObserver explicitly to record nothing.
type NoOpObserver struct{}

func (NoOpObserver) ObserveWrite(uint64, uint64, bool) {}
func (NoOpObserver) ObserveRead(uint64, uint64, bool)  {}
func (NoOpObserver) ObserveOverrun()                   {}
func (NoOpObserver) ObserveWarning()                   {}

var (
	_ interfaces.Observer = (*MetricsObserver)(nil)
	_ interfaces.Observer = (*NoOpObserver)(nil)
)
