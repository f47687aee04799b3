package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/baqup/pkg/domain"
)

func mustTime(t *testing.T, s string) time.Time {
	tm, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return tm
}

func hourlyContainer() domain.ContainerBackupConfig {
	return domain.ContainerBackupConfig{
		ContainerID:   "c1",
		ContainerName: "app",
		Enabled:       true,
		Targets: []domain.TargetConfig{
			{Type: domain.TargetPostgres, Instance: "main", Schedule: "hourly"},
		},
	}
}

func stateOf(st domain.TargetState) StateLookup {
	return func(domain.TargetKey) (domain.TargetState, bool) { return st, true }
}

func noState(domain.TargetKey) (domain.TargetState, bool) {
	return domain.TargetState{}, false
}

// region Test: Resolve
func TestResolve_ContainerOverrideWins(t *testing.T) {
	c := hourlyContainer()
	c.Schedules = map[string]domain.ScheduleDefinition{
		"hourly": {Cron: "30 * * * *", Retention: 3},
	}

	s, ok := Resolve(c, c.Targets[0], domain.DefaultDefaults())

	require.True(t, ok)
	assert.Equal(t, "hourly", s.Name)
	assert.Equal(t, "30 * * * *", s.Cron)
	assert.Equal(t, 3, s.Retention)
}

func TestResolve_FallsBackToControllerDefaults(t *testing.T) {
	c := hourlyContainer()

	s, ok := Resolve(c, c.Targets[0], domain.DefaultDefaults())

	require.True(t, ok)
	assert.Equal(t, "0 * * * *", s.Cron)
	assert.Equal(t, 24, s.Retention)
}

func TestResolve_AbsentNameUsesDaily(t *testing.T) {
	c := hourlyContainer()
	c.Targets[0].Schedule = ""

	d := domain.DefaultDefaults()
	d.TargetSchedule = ""

	s, ok := Resolve(c, c.Targets[0], d)

	require.True(t, ok)
	assert.Equal(t, "daily", s.Name)
	assert.Equal(t, "0 3 * * *", s.Cron)
}

func TestResolve_UnknownName(t *testing.T) {
	c := hourlyContainer()
	c.Targets[0].Schedule = "monthly"

	_, ok := Resolve(c, c.Targets[0], domain.DefaultDefaults())

	assert.False(t, ok)
}

// endregion

// region Test: Evaluate
func TestEvaluate_NotYetDue(t *testing.T) {
	start := mustTime(t, "2024-01-15T00:30:00Z")
	e := NewEvaluator(domain.DefaultDefaults(), start)

	decisions, errs := e.Evaluate(mustTime(t, "2024-01-15T00:59:59Z"), hourlyContainer(), noState)

	require.Empty(t, errs)
	require.Len(t, decisions, 1)
	assert.Nil(t, decisions[0].Job)
	assert.Equal(t, mustTime(t, "2024-01-15T01:00:00Z"), decisions[0].NextRun)
}

func TestEvaluate_DueExactlyAtNextRun(t *testing.T) {
	start := mustTime(t, "2024-01-15T00:30:00Z")
	e := NewEvaluator(domain.DefaultDefaults(), start)

	state := domain.TargetState{NextRun: mustTime(t, "2024-01-15T01:00:00Z"), Cron: "0 * * * *"}

	decisions, _ := e.Evaluate(mustTime(t, "2024-01-15T01:00:00Z"), hourlyContainer(), stateOf(state))

	require.Len(t, decisions, 1)
	require.NotNil(t, decisions[0].Job)
	assert.Equal(t, "20240115T010000Z", decisions[0].Job.Timestamp())
	assert.Equal(t, mustTime(t, "2024-01-15T02:00:00Z"), decisions[0].NextRun)
}

func TestEvaluate_CatchUpCollapsesMissedBoundaries(t *testing.T) {
	start := mustTime(t, "2024-01-15T00:30:00Z")
	e := NewEvaluator(domain.DefaultDefaults(), start)

	state := domain.TargetState{NextRun: mustTime(t, "2024-01-15T01:00:00Z"), Cron: "0 * * * *"}

	// 01:00, 02:00 and 03:00 have all elapsed
	decisions, _ := e.Evaluate(mustTime(t, "2024-01-15T03:10:00Z"), hourlyContainer(), stateOf(state))

	require.Len(t, decisions, 1)
	require.NotNil(t, decisions[0].Job)
	assert.Equal(t, mustTime(t, "2024-01-15T03:00:00Z"), decisions[0].Job.TriggeredAt)
	assert.Equal(t, mustTime(t, "2024-01-15T04:00:00Z"), decisions[0].NextRun)
	assert.Equal(t, "hourly", decisions[0].Job.Schedule.Name)
}

func TestEvaluate_CronChangeRecomputesNextRun(t *testing.T) {
	start := mustTime(t, "2024-01-15T00:30:00Z")
	e := NewEvaluator(domain.DefaultDefaults(), start)

	lastRun := mustTime(t, "2024-01-15T05:00:00Z")
	state := domain.TargetState{
		LastRun: &lastRun,
		NextRun: mustTime(t, "2024-01-16T03:00:00Z"),
		Cron:    "0 3 * * *",
	}

	decisions, _ := e.Evaluate(mustTime(t, "2024-01-15T05:10:00Z"), hourlyContainer(), stateOf(state))

	require.Len(t, decisions, 1)
	assert.Nil(t, decisions[0].Job)
	assert.Equal(t, mustTime(t, "2024-01-15T06:00:00Z"), decisions[0].NextRun)
}

func TestEvaluate_UnresolvedScheduleIsReported(t *testing.T) {
	e := NewEvaluator(domain.DefaultDefaults(), time.Now())

	c := hourlyContainer()
	c.Targets = append(c.Targets, domain.TargetConfig{Type: domain.TargetFS, Instance: "data", Schedule: "nope"})

	decisions, errs := e.Evaluate(time.Now(), c, noState)

	assert.Len(t, decisions, 1)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "unresolved schedule nope")
}

func TestEvaluate_KeepsTargetOrder(t *testing.T) {
	start := mustTime(t, "2024-01-15T00:30:00Z")
	e := NewEvaluator(domain.DefaultDefaults(), start)

	c := hourlyContainer()
	c.Targets = append(c.Targets,
		domain.TargetConfig{Type: domain.TargetFS, Instance: "data", Schedule: "hourly"},
		domain.TargetConfig{Type: domain.TargetRedis, Instance: "cache", Schedule: "hourly"},
	)

	decisions, _ := e.Evaluate(mustTime(t, "2024-01-15T01:30:00Z"), c, noState)

	require.Len(t, decisions, 3)
	assert.Equal(t, "main", decisions[0].Job.Target.Instance)
	assert.Equal(t, "data", decisions[1].Job.Target.Instance)
	assert.Equal(t, "cache", decisions[2].Job.Target.Instance)
}

func TestEvaluate_RecreatedContainerDoesNotRefireServedBoundary(t *testing.T) {
	start := mustTime(t, "2024-01-15T00:30:00Z")
	e := NewEvaluator(domain.DefaultDefaults(), start)

	decisions, _ := e.Evaluate(mustTime(t, "2024-01-15T01:00:30Z"), hourlyContainer(), noState)
	require.NotNil(t, decisions[0].Job)
	assert.Equal(t, "20240115T010000Z", decisions[0].Job.Timestamp())

	// same name, new id, no state yet
	recreated := hourlyContainer()
	recreated.ContainerID = "c1-new"

	decisions, _ = e.Evaluate(mustTime(t, "2024-01-15T01:40:00Z"), recreated, noState)

	require.Len(t, decisions, 1)
	assert.Nil(t, decisions[0].Job)
	assert.Equal(t, mustTime(t, "2024-01-15T02:00:00Z"), decisions[0].NextRun)

	// another container name is a separate lineage
	other := hourlyContainer()
	other.ContainerID = "c2"
	other.ContainerName = "worker"

	decisions, _ = e.Evaluate(mustTime(t, "2024-01-15T01:40:00Z"), other, noState)
	require.NotNil(t, decisions[0].Job)
	assert.Equal(t, "20240115T010000Z", decisions[0].Job.Timestamp())
}

// endregion
