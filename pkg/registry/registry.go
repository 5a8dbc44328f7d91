/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package registry keeps the authoritative in-memory state of every machine
// reported by the telemetry stream.
package registry

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/carverauto/fleetwatch/pkg/logger"
	"github.com/carverauto/fleetwatch/pkg/models"
)

// ChangeKind identifies the mutation that produced a Change.
type ChangeKind string

const (
	ChangeBatch   ChangeKind = "batch"
	ChangeDismiss ChangeKind = "dismiss"
)

// Change is delivered to subscribers after a mutation has been published.
type Change struct {
	Kind        ChangeKind
	Transitions []models.MachineTransition
}

// Subscriber runs on the writer's goroutine. It must not block and must not
// mutate the registry.
type Subscriber func(Change)

// view is an immutable snapshot of the registry. Entries are never mutated
// after the view that owns them is published.
type view struct {
	order   []string
	entries map[string]*models.RegistryEntry
}

func (v *view) clone() *view {
	entries := make(map[string]*models.RegistryEntry, len(v.entries))
	for k, e := range v.entries {
		entries[k] = e
	}

	return &view{
		order:   v.order,
		entries: entries,
	}
}

// MachineRegistry maps hostnames to their latest snapshot and hidden flag.
// Writers are serialized; readers load an immutable view without locking, so
// a batch is either fully visible or not at all.
type MachineRegistry struct {
	mu       sync.Mutex
	notifyMu sync.Mutex
	current  atomic.Pointer[view]

	subMu       sync.RWMutex
	subscribers []Subscriber

	logger logger.Logger
}

func NewMachineRegistry(log logger.Logger) *MachineRegistry {
	r := &MachineRegistry{logger: log}
	r.current.Store(&view{entries: map[string]*models.RegistryEntry{}})

	initRegistryMetrics()

	return r
}

// Subscribe registers fn for every subsequent Change.
func (r *MachineRegistry) Subscribe(fn Subscriber) {
	r.subMu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.subMu.Unlock()
}

// ApplySnapshotBatch replaces the snapshot of every machine in batch, creating
// entries on first sight, then clears the hidden flag of any hidden entry that
// is now online. Snapshots without a hostname are skipped.
func (r *MachineRegistry) ApplySnapshotBatch(batch []models.MachineSnapshot) {
	r.mu.Lock()

	next := r.current.Load().clone()
	appended := false

	var transitions []models.MachineTransition

	touched := make([]string, 0, len(batch))

	for i := range batch {
		snap := batch[i].Clone()

		if strings.TrimSpace(snap.Hostname) == "" {
			r.logger.Warn().Msg("Skipping machine snapshot without hostname")
			continue
		}

		prev, exists := next.entries[snap.Hostname]

		entry := &models.RegistryEntry{Snapshot: snap}

		if exists {
			entry.Hidden = prev.Hidden

			if prev.Snapshot.Status != snap.Status {
				transitions = append(transitions, models.MachineTransition{
					Hostname: snap.Hostname,
					From:     prev.Snapshot.Status,
					To:       snap.Status,
					LastSeen: snap.LastSeen,
				})
			}
		} else {
			if !appended {
				next.order = append([]string(nil), next.order...)
				appended = true
			}

			next.order = append(next.order, snap.Hostname)

			transitions = append(transitions, models.MachineTransition{
				Hostname: snap.Hostname,
				To:       snap.Status,
				LastSeen: snap.LastSeen,
			})
		}

		next.entries[snap.Hostname] = entry
		touched = append(touched, snap.Hostname)
	}

	restored := restoreOnline(next, touched)

	r.publish(next)

	r.logger.Debug().
		Int("batch_size", len(batch)).
		Int("transitions", len(transitions)).
		Int("restored", restored).
		Msg("Applied snapshot batch")

	registryMetricsData.batchesApplied.Add(1)

	r.notify(Change{Kind: ChangeBatch, Transitions: transitions})
}

// restoreOnline is the single reconciliation pass: a hidden entry whose new
// report is online becomes visible again. Entries in v must be owned by v.
func restoreOnline(v *view, ids []string) int {
	restored := 0

	for _, id := range ids {
		e := v.entries[id]
		if e.Hidden && e.Snapshot.IsOnline() {
			v.entries[id] = &models.RegistryEntry{Snapshot: e.Snapshot, Hidden: false}
			restored++
		}
	}

	return restored
}

// Dismiss hides id. It reports false, and changes nothing, when id is unknown.
// A dismissed machine stays visible while it is online.
func (r *MachineRegistry) Dismiss(id string) bool {
	r.mu.Lock()

	cur := r.current.Load()

	e, ok := cur.entries[id]
	if !ok {
		r.mu.Unlock()

		r.logger.Debug().Str("hostname", id).Msg("Ignoring dismiss for unknown machine")

		return false
	}

	if e.Hidden {
		r.mu.Unlock()

		return true
	}

	next := cur.clone()
	next.entries[id] = &models.RegistryEntry{Snapshot: e.Snapshot, Hidden: true}

	r.publish(next)

	r.logger.Info().
		Str("hostname", id).
		Str("status", string(e.Snapshot.Status)).
		Msg("Machine dismissed")

	r.notify(Change{Kind: ChangeDismiss})

	return true
}

// publish stores next and hands the caller over to the notification lock so
// subscribers observe changes in publication order. Must be called with mu
// held; returns with mu released and notifyMu held.
func (r *MachineRegistry) publish(next *view) {
	r.current.Store(next)
	registryMetricsData.observe(next)

	r.notifyMu.Lock()
	r.mu.Unlock()
}

// notify must be called after publish.
func (r *MachineRegistry) notify(change Change) {
	defer r.notifyMu.Unlock()

	r.subMu.RLock()
	subs := r.subscribers
	r.subMu.RUnlock()

	for _, fn := range subs {
		fn(change)
	}
}

// ListVisible returns every entry except hidden machines that are not online,
// in first-seen order.
func (r *MachineRegistry) ListVisible() []models.RegistryEntry {
	v := r.current.Load()

	out := make([]models.RegistryEntry, 0, len(v.order))

	for _, id := range v.order {
		e := v.entries[id]
		if e.Hidden && !e.Snapshot.IsOnline() {
			continue
		}

		out = append(out, copyEntry(e))
	}

	return out
}

// VisibleSnapshots is ListVisible without the hidden flags.
func (r *MachineRegistry) VisibleSnapshots() []models.MachineSnapshot {
	visible := r.ListVisible()

	out := make([]models.MachineSnapshot, len(visible))
	for i := range visible {
		out[i] = visible[i].Snapshot
	}

	return out
}

// Entries returns every entry, hidden or not, in first-seen order.
func (r *MachineRegistry) Entries() []models.RegistryEntry {
	v := r.current.Load()

	out := make([]models.RegistryEntry, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, copyEntry(v.entries[id]))
	}

	return out
}

// Get returns a copy of the entry for id.
func (r *MachineRegistry) Get(id string) (models.RegistryEntry, bool) {
	e, ok := r.current.Load().entries[id]
	if !ok {
		return models.RegistryEntry{}, false
	}

	return copyEntry(e), true
}

func (r *MachineRegistry) Len() int {
	return len(r.current.Load().order)
}

func copyEntry(e *models.RegistryEntry) models.RegistryEntry {
	return models.RegistryEntry{
		Snapshot: e.Snapshot.Clone(),
		Hidden:   e.Hidden,
	}
}
