package engine

import (
	"time"

	"github.com/weld-ui/weld/pkg/diag"
	"github.com/weld-ui/weld/pkg/receiver"
)

// HealthStatus classifies the engine.
type HealthStatus string

const (
	HealthOK        HealthStatus = "ok"
	HealthDegraded  HealthStatus = "degraded"
	HealthDestroyed HealthStatus = "destroyed"
)

// Health is the engine's liveness summary.
type Health struct {
	Status     HealthStatus `json:"status"`
	ErrorCount int64        `json:"errorCount"`
	UptimeMs   int64        `json:"uptimeMs"`
	Loaded     bool         `json:"loaded"`
}

// ResourceStats counts host resources the guest currently holds.
type ResourceStats struct {
	Timers    int   `json:"timers"`
	Intervals int   `json:"intervals"`
	Callbacks int   `json:"callbacks"`
	Nodes     int   `json:"nodes"`
	UptimeMs  int64 `json:"uptimeMs"`
}

// HostInfo describes recent Host→Guest traffic.
type HostInfo struct {
	LastEvent *diag.EventRecord `json:"lastEvent,omitempty"`
}

// GuestInfo describes recent Guest→Host traffic.
type GuestInfo struct {
	LastEvent  *diag.EventRecord `json:"lastEvent,omitempty"`
	Errors     int64             `json:"errors"`
	Sleeping   bool              `json:"sleeping"`
	SleepingAt int64             `json:"sleepingAt,omitempty"`
}

// Diagnostics is the stable snapshot shape consumers poll.
type Diagnostics struct {
	ID          string           `json:"id"`
	Provider    string           `json:"provider,omitempty"`
	Health      Health           `json:"health"`
	Resources   ResourceStats    `json:"resources"`
	Activity    diag.Activity    `json:"activity"`
	Attribution diag.Attribution `json:"attribution"`
	Receiver    *receiver.Stats  `json:"receiver,omitempty"`
	Host        HostInfo         `json:"host"`
	Guest       GuestInfo        `json:"guest"`
}

// GetDiagnostics assembles the full snapshot.
func (e *Engine) GetDiagnostics() Diagnostics {
	now := time.Now()
	activity, attribution := e.tracker.Snapshot(now)

	e.mu.Lock()
	recv := e.recv
	var provider string
	if e.selection != nil {
		provider = e.selection.Effective
	}
	e.mu.Unlock()

	d := Diagnostics{
		ID:          e.id,
		Provider:    provider,
		Health:      e.GetHealth(),
		Resources:   e.ResourceStats(),
		Activity:    activity,
		Attribution: attribution,
		Host:        HostInfo{LastEvent: e.tracker.LastHostEvent()},
	}
	if recv != nil {
		stats := recv.GetStats()
		d.Receiver = &stats
	}

	guest := GuestInfo{
		LastEvent: e.tracker.LastGuestEvent(),
		Errors:    e.guestErrors.Load(),
	}
	// A loaded guest with no timers armed and no batch in the window
	// has gone quiet.
	timers, intervals := e.timers.counts()
	if e.loadState.Load() == stateReady && timers == 0 && intervals == 0 &&
		activity.LastBatch != nil && now.UnixMilli()-activity.LastBatch.At > activity.WindowMs {
		guest.Sleeping = true
		guest.SleepingAt = activity.LastBatch.At
	}
	d.Guest = guest
	return d
}

// GetHealth summarizes liveness: destroyed is terminal, guest errors
// degrade.
func (e *Engine) GetHealth() Health {
	status := HealthOK
	switch {
	case e.destroyed.Load():
		status = HealthDestroyed
	case e.guestErrors.Load() > 0:
		status = HealthDegraded
	}
	return Health{
		Status:     status,
		ErrorCount: e.guestErrors.Load(),
		UptimeMs:   time.Since(e.createdAt).Milliseconds(),
		Loaded:     e.loadState.Load() == stateReady,
	}
}

// ResourceStats counts what the guest currently holds on the host.
func (e *Engine) ResourceStats() ResourceStats {
	timers, intervals := e.timers.counts()
	stats := ResourceStats{
		Timers:    timers,
		Intervals: intervals,
		Callbacks: e.callbacks.Size(),
		UptimeMs:  time.Since(e.createdAt).Milliseconds(),
	}
	e.mu.Lock()
	recv := e.recv
	e.mu.Unlock()
	if recv != nil {
		stats.Nodes = recv.NodeCount()
	}
	return stats
}
