package engine

import "time"

// MetricsObserver defines the interface for observing engine events.
type MetricsObserver interface {
	// OnSave is called when a save completes. inserted is false for updates.
	OnSave(entityType string, duration time.Duration, inserted bool, err error)

	// OnDelete is called when a delete completes.
	OnDelete(entityType string, duration time.Duration, err error)

	// OnScan is called when a query scan completes.
	OnScan(entityType string, duration time.Duration, results int, err error)

	// OnNotify reports how many cached queries a write notified.
	OnNotify(entityType string, notified int)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (o *NoopMetricsObserver) OnSave(string, time.Duration, bool, error) {}
func (o *NoopMetricsObserver) OnDelete(string, time.Duration, error)     {}
func (o *NoopMetricsObserver) OnScan(string, time.Duration, int, error)  {}
func (o *NoopMetricsObserver) OnNotify(string, int)                      {}
