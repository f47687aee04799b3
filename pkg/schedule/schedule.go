package schedule

import (
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/yurykabanov/baqup/pkg/domain"
)

// Parse accepts standard 5-field expressions and descriptors such as "@daily".
func Parse(expr string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cron expression %q", expr)
	}
	return s, nil
}

// Name returns the schedule name a target refers to, applying the defaults when the
// target does not name one.
func Name(t domain.TargetConfig, d domain.Defaults) string {
	if t.Schedule != "" {
		return t.Schedule
	}
	if d.TargetSchedule != "" {
		return d.TargetSchedule
	}
	return domain.DefaultScheduleName
}

// Resolve looks the target's schedule up in the container overrides first and then in
// the controller defaults.
func Resolve(c domain.ContainerBackupConfig, t domain.TargetConfig, d domain.Defaults) (domain.ScheduleDefinition, bool) {
	name := Name(t, d)

	if s, ok := c.Schedules[name]; ok {
		s.Name = name
		return s, true
	}

	if s, ok := d.Schedules[name]; ok {
		s.Name = name
		return s, true
	}

	return domain.ScheduleDefinition{}, false
}

// Decision is the outcome of evaluating one target on one tick.
type Decision struct {
	Key      domain.TargetKey
	Schedule domain.ScheduleDefinition
	NextRun  time.Time

	// Job is set when the target is due on this tick.
	Job *domain.BackupJob
}

// StateLookup returns the current state of a target, if any.
type StateLookup func(domain.TargetKey) (domain.TargetState, bool)

// Evaluator decides which targets are due. It is used from the poll loop only and
// is not safe for concurrent use.
type Evaluator struct {
	defaults  domain.Defaults
	startedAt time.Time
	parsed    map[string]cron.Schedule

	// latest trigger time fired per lineage; a container recreated under the same name
	// gets a new target key but keeps its lineage and must not refire a served boundary
	fired map[string]time.Time
}

func NewEvaluator(defaults domain.Defaults, startedAt time.Time) *Evaluator {
	return &Evaluator{
		defaults:  defaults,
		startedAt: startedAt,
		parsed:    make(map[string]cron.Schedule),
		fired:     make(map[string]time.Time),
	}
}

func lineage(c domain.ContainerBackupConfig, t domain.TargetConfig) string {
	return c.ContainerName + "/" + t.Dir()
}

func (e *Evaluator) schedule(expr string) (cron.Schedule, error) {
	if s, ok := e.parsed[expr]; ok {
		return s, nil
	}

	s, err := Parse(expr)
	if err != nil {
		return nil, err
	}

	e.parsed[expr] = s
	return s, nil
}

// Evaluate returns one decision per target of c, in target order. Targets whose schedule
// cannot be resolved or parsed are reported as errors and skipped.
func (e *Evaluator) Evaluate(now time.Time, c domain.ContainerBackupConfig, lookup StateLookup) ([]Decision, []error) {
	var decisions []Decision
	var errs []error

	for _, t := range c.Targets {
		key := domain.KeyOf(c, t)

		def, ok := Resolve(c, t, e.defaults)
		if !ok {
			errs = append(errs, &domain.ConfigurationError{
				Container: c.ContainerName,
				Type:      string(t.Type),
				Instance:  t.Instance,
				Reason:    "unresolved schedule " + Name(t, e.defaults),
			})
			continue
		}

		s, err := e.schedule(def.Cron)
		if err != nil {
			errs = append(errs, &domain.ConfigurationError{
				Container: c.ContainerName,
				Type:      string(t.Type),
				Instance:  t.Instance,
				Reason:    err.Error(),
			})
			continue
		}

		st, known := lookup(key)
		ln := lineage(c, t)

		fire, due, next := e.advance(now, s, def.Cron, st, known, e.fired[ln])

		d := Decision{Key: key, Schedule: def, NextRun: next}
		if due {
			e.fired[ln] = fire

			d.Job = &domain.BackupJob{
				Container:   c,
				Target:      t,
				Schedule:    def,
				TriggeredAt: fire,
			}
		}

		decisions = append(decisions, d)
	}

	return decisions, errs
}

// advance implements the catch-up policy: every elapsed boundary up to now collapses into
// a single firing at the latest one, and the next run moves strictly past it. A target
// without a next run counts from the latest of controller start, its last run and the
// last boundary fired for its lineage.
func (e *Evaluator) advance(now time.Time, s cron.Schedule, expr string, st domain.TargetState, known bool, lineageFired time.Time) (time.Time, bool, time.Time) {
	next := st.NextRun

	if !known || next.IsZero() || st.Cron != expr {
		after := e.startedAt
		if st.LastRun != nil && st.LastRun.After(after) {
			after = *st.LastRun
		}
		if lineageFired.After(after) {
			after = lineageFired
		}
		next = s.Next(after)
	}

	// cron.Schedule returns the zero time when nothing matches within five years
	if next.IsZero() || now.Before(next) {
		return time.Time{}, false, next
	}

	fire := next
	for {
		n := s.Next(fire)
		if n.IsZero() || n.After(now) {
			return fire, true, n
		}
		fire = n
	}
}
