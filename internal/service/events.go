package service

import (
	"sync"

	"github.com/noah-isme/sma-collect-sync/internal/models"
)

// Events holds the hooks a subscriber cares about. Nil hooks are skipped.
type Events struct {
	RecordChanged func(models.RecordChanged)
	AutoSynced    func(models.AutoSynced)
}

// Dispatcher fans typed sync notifications out to subscribers. It replaces
// implicit global event buses with an explicit port owned by the engine.
type Dispatcher struct {
	mu   sync.RWMutex
	subs []*Events
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers a subscriber for all future notifications.
func (d *Dispatcher) Subscribe(e *Events) {
	if e == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, e)
}

// RecordChanged notifies subscribers that the local queue or a record view
// changed.
func (d *Dispatcher) RecordChanged(event models.RecordChanged) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subs {
		if sub.RecordChanged != nil {
			sub.RecordChanged(event)
		}
	}
}

// AutoSynced notifies subscribers that a record finished a reconciliation
// pass.
func (d *Dispatcher) AutoSynced(event models.AutoSynced) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subs {
		if sub.AutoSynced != nil {
			sub.AutoSynced(event)
		}
	}
}
