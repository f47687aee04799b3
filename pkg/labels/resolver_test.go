package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/yurykabanov/baqup/pkg/domain"
)

func container(labels map[string]string) domain.Container {
	return domain.Container{
		ID:     "abc123",
		Name:   "/app",
		Labels: labels,
		Env:    map[string]string{"PGPASS": "secret"},
		Mounts: []string{"/run/secrets", "/data"},
	}
}

func configErrors(t *testing.T, err error) []*domain.ConfigurationError {
	var out []*domain.ConfigurationError
	for _, e := range multierr.Errors(err) {
		ce, ok := e.(*domain.ConfigurationError)
		require.True(t, ok, "unexpected error type %T", e)
		out = append(out, ce)
	}
	return out
}

func TestResolve_NotEnabledIsExcludedWithoutError(t *testing.T) {
	r := NewResolver(domain.DefaultDefaults())

	cfg, err := r.Resolve(container(map[string]string{"backup.postgres.main.password": "x"}))

	assert.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.Targets)

	cfg, err = r.Resolve(container(map[string]string{"backup.enabled": "false"}))

	assert.NoError(t, err)
	assert.False(t, cfg.Enabled)
}

func TestResolve_PostgresWithEnvPasswordUsesDaily(t *testing.T) {
	r := NewResolver(domain.DefaultDefaults())

	cfg, err := r.Resolve(container(map[string]string{
		"backup.enabled":                    "true",
		"backup.postgres.main.password_env": "PGPASS",
	}))

	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "app", cfg.ContainerName)
	require.Len(t, cfg.Targets, 1)

	target := cfg.Targets[0]
	assert.Equal(t, domain.TargetPostgres, target.Type)
	assert.Equal(t, "main", target.Instance)
	assert.Equal(t, "", target.Schedule)
	assert.True(t, target.Compress)
	assert.Equal(t, domain.Credential{Source: domain.CredentialEnv, Name: "PGPASS", Value: "secret"}, target.Credential)
	assert.Equal(t, domain.DatabaseProperties{}, target.Properties)
}

func TestResolve_IsIdempotent(t *testing.T) {
	r := NewResolver(domain.DefaultDefaults())

	labels := map[string]string{
		"backup.enabled":                    "true",
		"backup.stop":                       "yes",
		"backup.schedule.nightly.cron":      "15 2 * * *",
		"backup.schedule.nightly.retention": "14",
		"backup.postgres.main.password":     "pw",
		"backup.postgres.main.databases":    "app, audit",
		"backup.postgres.main.schedule":     "nightly",
		"backup.fs.uploads.path":            "/data/uploads",
		"backup.fs.uploads.exclude":         "*.tmp,cache",
		"backup.fs.uploads.pre_exec":        "sync",
		"backup.redis.cache.compress":       "false",
	}

	first, err1 := r.Resolve(container(labels))
	second, err2 := r.Resolve(container(labels))

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, first, second)
	assert.True(t, first.Stop)
	assert.Len(t, first.Targets, 3)
	assert.Equal(t, domain.ScheduleDefinition{Name: "nightly", Cron: "15 2 * * *", Retention: 14}, first.Schedules["nightly"])
}

func TestResolve_AmbiguousCredentialsRejectTarget(t *testing.T) {
	r := NewResolver(domain.DefaultDefaults())

	combos := []map[string]string{
		{"password": "x", "password_env": "PGPASS"},
		{"password": "x", "password_file": "/run/secrets/pg"},
		{"password_env": "PGPASS", "password_file": "/run/secrets/pg"},
		{"password": "x", "password_env": "PGPASS", "password_file": "/run/secrets/pg"},
	}

	for _, combo := range combos {
		labels := map[string]string{
			"backup.enabled":      "true",
			"backup.fs.data.path": "/data",
		}
		for k, v := range combo {
			labels["backup.postgres.main."+k] = v
		}

		cfg, err := r.Resolve(container(labels))

		errs := configErrors(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, "postgres", errs[0].Type)
		assert.Contains(t, errs[0].Reason, "ambiguous credentials")

		require.Len(t, cfg.Targets, 1)
		assert.Equal(t, domain.TargetFS, cfg.Targets[0].Type)
	}
}

func TestResolve_UnknownTypeIsPerTarget(t *testing.T) {
	r := NewResolver(domain.DefaultDefaults())

	cfg, err := r.Resolve(container(map[string]string{
		"backup.enabled":              "true",
		"backup.oracle.main.password": "x",
		"backup.sqlite.app.path":      "/data/app.db",
	}))

	errs := configErrors(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "oracle", errs[0].Type)
	assert.Contains(t, errs[0].Reason, "unknown target type")

	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, domain.SQLiteProperties{Path: "/data/app.db"}, cfg.Targets[0].Properties)
}

func TestResolve_TargetErrors(t *testing.T) {
	cases := map[string]struct {
		labels map[string]string
		reason string
	}{
		"missing credentials": {
			labels: map[string]string{"backup.mysql.db.username": "root"},
			reason: "missing credentials",
		},
		"unset env": {
			labels: map[string]string{"backup.mysql.db.password_env": "NOPE"},
			reason: "not set in the container",
		},
		"secret not mounted": {
			labels: map[string]string{"backup.mysql.db.password_file": "/etc/pw"},
			reason: "not on a mounted path",
		},
		"unknown property": {
			labels: map[string]string{"backup.fs.data.path": "/data", "backup.fs.data.colour": "red"},
			reason: "unknown property colour",
		},
		"pre_exec only for fs": {
			labels: map[string]string{"backup.redis.cache.pre_exec": "sync"},
			reason: "unknown property pre_exec",
		},
		"relative path": {
			labels: map[string]string{"backup.fs.data.path": "data"},
			reason: "path must be absolute",
		},
		"missing path": {
			labels: map[string]string{"backup.fs.data.exclude": "*.log"},
			reason: "missing path",
		},
		"bad port": {
			labels: map[string]string{"backup.postgres.db.password": "x", "backup.postgres.db.port": "99999"},
			reason: "invalid port",
		},
		"unresolved schedule": {
			labels: map[string]string{"backup.fs.data.path": "/data", "backup.fs.data.schedule": "monthly"},
			reason: "unresolved schedule monthly",
		},
		"invalid schedule": {
			labels: map[string]string{
				"backup.fs.data.path":      "/data",
				"backup.fs.data.schedule":  "odd",
				"backup.schedule.odd.cron": "not a cron",
			},
			reason: "schedule odd is invalid",
		},
	}

	r := NewResolver(domain.DefaultDefaults())

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			labels := map[string]string{"backup.enabled": "true"}
			for k, v := range tc.labels {
				labels[k] = v
			}

			cfg, err := r.Resolve(container(labels))

			assert.True(t, cfg.Enabled)
			assert.Empty(t, cfg.Targets)

			var reasons []string
			for _, e := range configErrors(t, err) {
				reasons = append(reasons, e.Reason)
			}
			require.NotEmpty(t, reasons)
			assert.Contains(t, reasons[len(reasons)-1], tc.reason)
		})
	}
}

func TestResolve_ScheduleOverlaysDefault(t *testing.T) {
	r := NewResolver(domain.DefaultDefaults())

	cfg, err := r.Resolve(container(map[string]string{
		"backup.enabled":                  "true",
		"backup.schedule.daily.retention": "30",
		"backup.fs.data.path":             "/data",
	}))

	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleDefinition{Name: "daily", Cron: "0 3 * * *", Retention: 30}, cfg.Schedules["daily"])
	assert.Len(t, cfg.Targets, 1)
}

func TestResolve_PasswordFileOnMount(t *testing.T) {
	r := NewResolver(domain.DefaultDefaults())

	cfg, err := r.Resolve(container(map[string]string{
		"backup.enabled":                  "true",
		"backup.mariadb.db.password_file": "/run/secrets/db_pw",
		"backup.mariadb.db.databases":     "shop",
	}))

	require.NoError(t, err)
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, domain.Credential{Source: domain.CredentialFile, Name: "/run/secrets/db_pw"}, cfg.Targets[0].Credential)
	assert.Equal(t, domain.DatabaseProperties{Databases: []string{"shop"}}, cfg.Targets[0].Properties)
}

func TestResolve_InvalidEnabledFlag(t *testing.T) {
	r := NewResolver(domain.DefaultDefaults())

	cfg, err := r.Resolve(container(map[string]string{"backup.enabled": "maybe"}))

	assert.False(t, cfg.Enabled)
	assert.Len(t, configErrors(t, err), 1)
}
