package ipcring

import (
	"testing"
	"time"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.BlocksWritten != 0 || snap.BlocksRead != 0 {
		t.Fatalf("expected zero initial counts, got %+v", snap)
	}

	m.RecordRead(4096, 1_000_000, true)
	m.RecordWrite(4096, 2_000_000, true)
	m.RecordRead(4096, 500_000, false)

	snap = m.Snapshot()
	if snap.BlocksRead != 1 {
		t.Errorf("BlocksRead = %d, want 1", snap.BlocksRead)
	}
	if snap.BlocksWritten != 1 {
		t.Errorf("BlocksWritten = %d, want 1", snap.BlocksWritten)
	}
	if snap.ReadErrors != 1 {
		t.Errorf("ReadErrors = %d, want 1", snap.ReadErrors)
	}
	if snap.WriteErrors != 0 {
		t.Errorf("WriteErrors = %d, want 0", snap.WriteErrors)
	}
}

func TestMetricsOverrunAndWarning(t *testing.T) {
	m := NewMetrics()

	m.RecordOverrun()
	m.RecordOverrun()
	m.RecordWarning()

	snap := m.Snapshot()
	if snap.Overruns != 2 {
		t.Errorf("Overruns = %d, want 2", snap.Overruns)
	}
	if snap.Warnings != 1 {
		t.Errorf("Warnings = %d, want 1", snap.Warnings)
	}
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordRead(1024, 1_000_000, true)
	m.RecordWrite(1024, 2_000_000, true)

	snap := m.Snapshot()
	want := uint64(1_500_000)
	if snap.AvgLatencyNs != want {
		t.Errorf("AvgLatencyNs = %d, want %d", snap.AvgLatencyNs, want)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()

	time.Sleep(10 * time.Millisecond)
	snap := m.Snapshot()
	if snap.UptimeNs < 10*1_000_000 {
		t.Errorf("UptimeNs = %d, want >= 10ms", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)
	snap2 := m.Snapshot()
	if snap2.UptimeNs > snap.UptimeNs+2*1_000_000 {
		t.Errorf("uptime kept increasing after Stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordRead(1024, 1_000_000, true)
	m.RecordOverrun()

	if snap := m.Snapshot(); snap.BlocksRead == 0 {
		t.Fatal("expected a recorded read before reset")
	}

	m.Reset()
	snap := m.Snapshot()
	if snap.BlocksRead != 0 || snap.Overruns != 0 {
		t.Errorf("expected zeroed counters after Reset, got %+v", snap)
	}
}

func TestMetricsObserverForwardsToMetrics(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveRead(1024, 1_000_000, true)
	obs.ObserveWrite(2048, 2_000_000, true)
	obs.ObserveOverrun()
	obs.ObserveWarning()

	snap := m.Snapshot()
	if snap.BlocksRead != 1 || snap.BlocksWritten != 1 {
		t.Errorf("snap = %+v, want 1 read and 1 write", snap)
	}
	if snap.Overruns != 1 || snap.Warnings != 1 {
		t.Errorf("snap = %+v, want 1 overrun and 1 warning", snap)
	}
}

func TestNoOpObserverDoesNotPanic(t *testing.T) {
	var obs NoOpObserver
	obs.ObserveRead(1024, 1000, true)
	obs.ObserveWrite(1024, 1000, true)
	obs.ObserveOverrun()
	obs.ObserveWarning()
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordRead(1024, 500_000, true)
	}
	for i := 0; i < 49; i++ {
		m.RecordWrite(1024, 5_000_000, true)
	}
	m.RecordWrite(1024, 50_000_000, true)

	snap := m.Snapshot()
	if snap.LatencyP50Ns < 100_000 || snap.LatencyP50Ns > 1_000_000 {
		t.Errorf("LatencyP50Ns = %d, want in [100us, 1ms]", snap.LatencyP50Ns)
	}
	if snap.LatencyP99Ns < 5_000_000 || snap.LatencyP99Ns > 100_000_000 {
		t.Errorf("LatencyP99Ns = %d, want in [5ms, 100ms]", snap.LatencyP99Ns)
	}

	var total uint64
	for _, v := range snap.LatencyHistogram {
		total += v
	}
	if total == 0 {
		t.Error("expected histogram buckets to be populated")
	}
}
