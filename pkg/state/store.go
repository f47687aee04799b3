// Package state is the controller's authoritative in-memory record of discovered
// containers, per-target health and recent events. It is shared by the poll loop and
// the worker; every accessor is safe for concurrent use.
package state

import (
	"reflect"
	"sync"
	"time"

	"github.com/yurykabanov/baqup/pkg/domain"
)

const DefaultEventsCapacity = 100

type targetEntry struct {
	mu      sync.Mutex
	state   domain.TargetState
	evicted bool
}

// Store guards its maps with one lock and each target state with its own, so the worker
// writing a result never contends with discovery beyond the map lookup. Writes to a
// target evicted in the meantime are dropped.
type Store struct {
	mu         sync.RWMutex
	containers map[string]domain.ContainerBackupConfig
	order      []string
	targets    map[domain.TargetKey]*targetEntry

	events *ring
}

func New(eventsCapacity int) *Store {
	if eventsCapacity < 1 {
		eventsCapacity = DefaultEventsCapacity
	}

	return &Store{
		containers: make(map[string]domain.ContainerBackupConfig),
		targets:    make(map[domain.TargetKey]*targetEntry),
		events:     newRing(eventsCapacity),
	}
}

// Reconcile replaces the known container set with configs (in discovery order), creating
// target states for new targets and evicting those of vanished containers and targets.
// It returns and records the add/update/remove events.
func (s *Store) Reconcile(now time.Time, configs []domain.ContainerBackupConfig) []domain.Event {
	s.mu.Lock()

	var events []domain.Event

	seen := make(map[string]struct{}, len(configs))
	order := make([]string, 0, len(configs))

	for _, cfg := range configs {
		seen[cfg.ContainerID] = struct{}{}
		order = append(order, cfg.ContainerID)

		prev, known := s.containers[cfg.ContainerID]
		switch {
		case !known:
			events = append(events, containerEvent(now, domain.EventDiscovered, cfg))
		case !reflect.DeepEqual(prev, cfg):
			events = append(events, containerEvent(now, domain.EventUpdated, cfg))
		}

		s.containers[cfg.ContainerID] = cfg
		s.syncTargetsLocked(cfg, prev, known)
	}

	for _, id := range s.order {
		if _, ok := seen[id]; ok {
			continue
		}

		prev := s.containers[id]
		events = append(events, containerEvent(now, domain.EventRemoved, prev))
		s.evictLocked(prev.Targets, prev)
		delete(s.containers, id)
	}

	s.order = order
	s.mu.Unlock()

	for _, e := range events {
		s.events.push(e)
	}

	return events
}

func (s *Store) syncTargetsLocked(cfg, prev domain.ContainerBackupConfig, known bool) {
	current := make(map[domain.TargetKey]struct{}, len(cfg.Targets))

	for _, t := range cfg.Targets {
		key := domain.KeyOf(cfg, t)
		current[key] = struct{}{}

		if _, ok := s.targets[key]; !ok {
			s.targets[key] = &targetEntry{state: domain.TargetState{Status: domain.StatusHealthy}}
		}
	}

	if !known {
		return
	}

	var gone []domain.TargetConfig
	for _, t := range prev.Targets {
		if _, ok := current[domain.KeyOf(prev, t)]; !ok {
			gone = append(gone, t)
		}
	}
	s.evictLocked(gone, prev)
}

func (s *Store) evictLocked(targets []domain.TargetConfig, cfg domain.ContainerBackupConfig) {
	for _, t := range targets {
		key := domain.KeyOf(cfg, t)

		entry, ok := s.targets[key]
		if !ok {
			continue
		}

		entry.mu.Lock()
		entry.evicted = true
		entry.mu.Unlock()

		delete(s.targets, key)
	}
}

// Containers returns the known configs in discovery order.
func (s *Store) Containers() []domain.ContainerBackupConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ContainerBackupConfig, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.containers[id])
	}
	return out
}

func (s *Store) Container(id string) (domain.ContainerBackupConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.containers[id]
	return c, ok
}

func (s *Store) entry(key domain.TargetKey) *targetEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.targets[key]
}

// TargetState returns a copy of the target's state.
func (s *Store) TargetState(key domain.TargetKey) (domain.TargetState, bool) {
	e := s.entry(key)
	if e == nil {
		return domain.TargetState{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.evicted {
		return domain.TargetState{}, false
	}
	return e.state, true
}

// Update applies fn to the target's state. It reports false, without calling fn, when
// the target is unknown or has been evicted.
func (s *Store) Update(key domain.TargetKey, fn func(*domain.TargetState)) bool {
	e := s.entry(key)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.evicted {
		return false
	}

	fn(&e.state)
	return true
}

func (s *Store) SetNextRun(key domain.TargetKey, next time.Time, cron string) bool {
	return s.Update(key, func(st *domain.TargetState) {
		st.NextRun = next
		st.Cron = cron
	})
}

// RecordResult applies a pipeline outcome to the target's state.
func (s *Store) RecordResult(now time.Time, r domain.BackupResult) bool {
	return s.Update(r.Job.Key(), func(st *domain.TargetState) {
		st.LastRun = &now

		if r.Success {
			st.LastSuccess = &now
			st.LastError = ""
			st.Status = domain.StatusHealthy
			return
		}

		st.LastError = r.Error
		st.Status = domain.StatusError
	})
}

// MarkError flags the target as failed without touching its run times.
func (s *Store) MarkError(key domain.TargetKey, msg string) bool {
	return s.Update(key, func(st *domain.TargetState) {
		st.LastError = msg
		st.Status = domain.StatusError
	})
}

// MarkWarning downgrades a healthy target; targets already in error stay in error.
func (s *Store) MarkWarning(key domain.TargetKey, msg string) bool {
	return s.Update(key, func(st *domain.TargetState) {
		st.LastError = msg
		if st.Status != domain.StatusError {
			st.Status = domain.StatusWarning
		}
	})
}

func (s *Store) AppendEvent(e domain.Event) {
	s.events.push(e)
}

// Events returns the buffered events, oldest first.
func (s *Store) Events() []domain.Event {
	return s.events.list()
}

type TargetSnapshot struct {
	Key           domain.TargetKey
	ContainerName string
	State         domain.TargetState
}

// Targets returns the states of all known targets in discovery order.
func (s *Store) Targets() []TargetSnapshot {
	var out []TargetSnapshot

	for _, c := range s.Containers() {
		for _, t := range c.Targets {
			key := domain.KeyOf(c, t)
			if st, ok := s.TargetState(key); ok {
				out = append(out, TargetSnapshot{Key: key, ContainerName: c.ContainerName, State: st})
			}
		}
	}

	return out
}

func containerEvent(now time.Time, typ domain.EventType, cfg domain.ContainerBackupConfig) domain.Event {
	return domain.Event{
		Timestamp:     now,
		Type:          typ,
		ContainerName: cfg.ContainerName,
	}
}
