package refdb

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/refdb/internal/engine"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordSave is called after each save. inserted is false for updates.
	RecordSave(duration time.Duration, inserted bool, err error)

	// RecordDelete is called after each delete.
	RecordDelete(duration time.Duration, err error)

	// RecordScan is called after each query scan with the number of
	// returned references.
	RecordScan(results int, duration time.Duration, err error)

	// RecordNotify is called after each write with the number of cached
	// queries whose listeners were notified.
	RecordNotify(notified int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSave(time.Duration, bool, error) {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)     {}
func (NoopMetricsCollector) RecordScan(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordNotify(int)                      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SaveCount      atomic.Int64
	InsertCount    atomic.Int64
	SaveErrors     atomic.Int64
	SaveTotalNanos atomic.Int64
	DeleteCount    atomic.Int64
	DeleteErrors   atomic.Int64
	ScanCount      atomic.Int64
	ScanErrors     atomic.Int64
	ScanResults    atomic.Int64
	ScanTotalNanos atomic.Int64
	Notifications  atomic.Int64
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(duration time.Duration, inserted bool, err error) {
	b.SaveCount.Add(1)
	b.SaveTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SaveErrors.Add(1)
	} else if inserted {
		b.InsertCount.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScan(results int, duration time.Duration, err error) {
	b.ScanCount.Add(1)
	b.ScanTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ScanErrors.Add(1)
		return
	}
	b.ScanResults.Add(int64(results))
}

// RecordNotify implements MetricsCollector.
func (b *BasicMetricsCollector) RecordNotify(notified int) {
	b.Notifications.Add(int64(notified))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SaveCount:     b.SaveCount.Load(),
		InsertCount:   b.InsertCount.Load(),
		SaveErrors:    b.SaveErrors.Load(),
		SaveAvgNanos:  avg(b.SaveTotalNanos.Load(), b.SaveCount.Load()),
		DeleteCount:   b.DeleteCount.Load(),
		DeleteErrors:  b.DeleteErrors.Load(),
		ScanCount:     b.ScanCount.Load(),
		ScanErrors:    b.ScanErrors.Load(),
		ScanResults:   b.ScanResults.Load(),
		ScanAvgNanos:  avg(b.ScanTotalNanos.Load(), b.ScanCount.Load()),
		Notifications: b.Notifications.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SaveCount     int64
	InsertCount   int64
	SaveErrors    int64
	SaveAvgNanos  int64
	DeleteCount   int64
	DeleteErrors  int64
	ScanCount     int64
	ScanErrors    int64
	ScanResults   int64
	ScanAvgNanos  int64
	Notifications int64
}

// observer forwards engine events to a MetricsCollector.
type observer struct {
	mc MetricsCollector
}

var _ engine.MetricsObserver = observer{}

func (o observer) OnSave(_ string, d time.Duration, inserted bool, err error) {
	o.mc.RecordSave(d, inserted, err)
}

func (o observer) OnDelete(_ string, d time.Duration, err error) {
	o.mc.RecordDelete(d, err)
}

func (o observer) OnScan(_ string, d time.Duration, results int, err error) {
	o.mc.RecordScan(results, d, err)
}

func (o observer) OnNotify(_ string, notified int) {
	o.mc.RecordNotify(notified)
}
