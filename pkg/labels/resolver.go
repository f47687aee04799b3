// Package labels turns a container's "backup." labels into a validated backup configuration.
//
// Label layout:
//
//	backup.enabled=true
//	backup.stop=true
//	backup.schedule.{name}.cron=0 3 * * *
//	backup.schedule.{name}.retention=7
//	backup.{type}.{instance}.{property}=value
//
// Invalid targets are dropped from the configuration and reported as
// *domain.ConfigurationError values combined with multierr; the rest of the
// container is kept.
package labels

import (
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/yurykabanov/baqup/pkg/domain"
	"github.com/yurykabanov/baqup/pkg/schedule"
)

const (
	Prefix       = "backup."
	EnabledLabel = Prefix + "enabled"
	StopLabel    = Prefix + "stop"

	segEnabled  = "enabled"
	segStop     = "stop"
	segSchedule = "schedule"
)

var instanceRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Resolver struct {
	defaults domain.Defaults
}

func NewResolver(defaults domain.Defaults) *Resolver {
	return &Resolver{defaults: defaults}
}

type rawTarget struct {
	typ      string
	instance string
	props    map[string]string
	errs     []string
}

type rawSchedule struct {
	cron      *string
	retention *string
	errs      []string
}

// Resolve never fails as a whole: the returned configuration holds every valid target,
// and the error (if any) combines one ConfigurationError per rejected target or label.
// A container without backup.enabled=true yields Enabled=false and no error.
func (r *Resolver) Resolve(c domain.Container) (domain.ContainerBackupConfig, error) {
	cfg := domain.ContainerBackupConfig{
		ContainerID:   c.ID,
		ContainerName: strings.TrimPrefix(c.Name, "/"),
		Schedules:     map[string]domain.ScheduleDefinition{},
	}

	var errs error
	labelErr := func(reason string) {
		errs = multierr.Append(errs, &domain.ConfigurationError{Container: cfg.ContainerName, Reason: reason})
	}

	enabled, ok := c.Labels[EnabledLabel]
	if !ok {
		return cfg, nil
	}

	b, err := parseBool(enabled)
	if err != nil {
		labelErr(EnabledLabel + ": " + err.Error())
		return cfg, errs
	}
	if !b {
		return cfg, nil
	}
	cfg.Enabled = true

	keys := make([]string, 0, len(c.Labels))
	for k := range c.Labels {
		if strings.HasPrefix(k, Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	schedules := map[string]*rawSchedule{}
	var scheduleOrder []string

	targets := map[string]*rawTarget{}
	var targetOrder []string

	for _, key := range keys {
		value := c.Labels[key]
		segs := strings.Split(strings.TrimPrefix(key, Prefix), ".")

		switch segs[0] {
		case segEnabled:
			if len(segs) != 1 {
				labelErr("malformed label " + key)
			}

		case segStop:
			if len(segs) != 1 {
				labelErr("malformed label " + key)
				continue
			}
			stop, err := parseBool(value)
			if err != nil {
				labelErr(key + ": " + err.Error())
				continue
			}
			cfg.Stop = stop

		case segSchedule:
			if len(segs) != 3 || segs[1] == "" {
				labelErr("malformed label " + key)
				continue
			}

			name, prop := segs[1], segs[2]
			s, ok := schedules[name]
			if !ok {
				s = &rawSchedule{}
				schedules[name] = s
				scheduleOrder = append(scheduleOrder, name)
			}

			v := value
			switch prop {
			case "cron":
				s.cron = &v
			case "retention":
				s.retention = &v
			default:
				s.errs = append(s.errs, "unknown schedule property "+prop)
			}

		default:
			if len(segs) < 3 {
				labelErr("malformed label " + key)
				continue
			}

			id := segs[0] + "." + segs[1]
			t, ok := targets[id]
			if !ok {
				t = &rawTarget{typ: segs[0], instance: segs[1], props: map[string]string{}}
				targets[id] = t
				targetOrder = append(targetOrder, id)
			}

			t.props[strings.Join(segs[2:], ".")] = value
		}
	}

	invalidSchedules := map[string]string{}
	for _, name := range scheduleOrder {
		def, reason := r.buildSchedule(name, schedules[name])
		if reason != "" {
			invalidSchedules[name] = reason
			labelErr("schedule " + name + ": " + reason)
			continue
		}
		cfg.Schedules[name] = def
	}

	for _, id := range targetOrder {
		raw := targets[id]

		target, reason := r.buildTarget(c, raw)
		if reason == "" {
			name := schedule.Name(target, r.defaults)
			if why, bad := invalidSchedules[name]; bad {
				reason = "schedule " + name + " is invalid: " + why
			} else if _, ok := schedule.Resolve(cfg, target, r.defaults); !ok {
				reason = "unresolved schedule " + name
			}
		}

		if reason != "" {
			errs = multierr.Append(errs, &domain.ConfigurationError{
				Container: cfg.ContainerName,
				Type:      raw.typ,
				Instance:  raw.instance,
				Reason:    reason,
			})
			continue
		}

		cfg.Targets = append(cfg.Targets, target)
	}

	return cfg, errs
}

// buildSchedule overlays the container's schedule labels on the controller default of
// the same name, if there is one.
func (r *Resolver) buildSchedule(name string, raw *rawSchedule) (domain.ScheduleDefinition, string) {
	if len(raw.errs) > 0 {
		return domain.ScheduleDefinition{}, strings.Join(raw.errs, "; ")
	}

	def, ok := r.defaults.Schedules[name]
	if !ok {
		def = domain.ScheduleDefinition{Retention: 7}
	}
	def.Name = name

	if raw.cron != nil {
		def.Cron = strings.TrimSpace(*raw.cron)
	}
	if def.Cron == "" {
		return def, "missing cron expression"
	}
	if _, err := schedule.Parse(def.Cron); err != nil {
		return def, err.Error()
	}

	if raw.retention != nil {
		n, err := strconv.Atoi(strings.TrimSpace(*raw.retention))
		if err != nil {
			return def, "invalid retention " + strconv.Quote(*raw.retention)
		}
		def.Retention = n
	}
	if def.Retention < 1 {
		return def, "retention must be at least 1"
	}

	return def, ""
}

var (
	commonProps     = []string{"schedule", "compress"}
	credentialProps = []string{"password", "password_env", "password_file"}

	allowedProps = map[domain.TargetType][]string{
		domain.TargetPostgres: {"port", "username", "databases"},
		domain.TargetMariaDB:  {"port", "username", "databases"},
		domain.TargetMySQL:    {"port", "username", "databases"},
		domain.TargetMongo:    {"port", "username", "databases"},
		domain.TargetRedis:    {"port", "username"},
		domain.TargetSQLite:   {"path"},
		domain.TargetFS:       {"path", "exclude", "pre_exec"},
	}
)

// RequiresCredential reports whether a target type must carry exactly one credential.
func RequiresCredential(t domain.TargetType) bool {
	switch t {
	case domain.TargetPostgres, domain.TargetMariaDB, domain.TargetMySQL:
		return true
	}
	return false
}

func acceptsCredential(t domain.TargetType) bool {
	return t.IsDatabase() && t != domain.TargetSQLite
}

func allowed(t domain.TargetType, prop string) bool {
	for _, p := range commonProps {
		if p == prop {
			return true
		}
	}
	if acceptsCredential(t) {
		for _, p := range credentialProps {
			if p == prop {
				return true
			}
		}
	}
	for _, p := range allowedProps[t] {
		if p == prop {
			return true
		}
	}
	return false
}

func (r *Resolver) buildTarget(c domain.Container, raw *rawTarget) (domain.TargetConfig, string) {
	typ := domain.TargetType(raw.typ)
	if !typ.Valid() {
		return domain.TargetConfig{}, "unknown target type " + raw.typ
	}
	if !instanceRegex.MatchString(raw.instance) {
		return domain.TargetConfig{}, "invalid instance name " + strconv.Quote(raw.instance)
	}

	t := domain.TargetConfig{
		Type:     typ,
		Instance: raw.instance,
		Compress: r.defaults.TargetCompress,
	}

	var db domain.DatabaseProperties
	var sq domain.SQLiteProperties
	var fs domain.FilesystemProperties
	var creds []domain.Credential

	props := make([]string, 0, len(raw.props))
	for p := range raw.props {
		props = append(props, p)
	}
	sort.Strings(props)

	for _, p := range props {
		v := strings.TrimSpace(raw.props[p])

		if !allowed(typ, p) {
			return t, "unknown property " + p
		}

		switch p {
		case "schedule":
			if v == "" {
				return t, "empty schedule"
			}
			t.Schedule = v

		case "compress":
			b, err := parseBool(v)
			if err != nil {
				return t, "compress: " + err.Error()
			}
			t.Compress = b

		case "password":
			creds = append(creds, domain.Credential{Source: domain.CredentialLiteral, Value: raw.props[p]})

		case "password_env":
			val, ok := c.Env[v]
			if !ok {
				return t, "password_env: variable " + v + " is not set in the container"
			}
			creds = append(creds, domain.Credential{Source: domain.CredentialEnv, Name: v, Value: val})

		case "password_file":
			if !path.IsAbs(v) {
				return t, "password_file: path must be absolute"
			}
			if !visible(path.Clean(v), c.Mounts) {
				return t, "password_file: " + v + " is not on a mounted path"
			}
			creds = append(creds, domain.Credential{Source: domain.CredentialFile, Name: path.Clean(v)})

		case "port":
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 65535 {
				return t, "invalid port " + strconv.Quote(v)
			}
			db.Port = n

		case "username":
			db.Username = v

		case "databases":
			db.Databases = splitList(v)

		case "path":
			if !path.IsAbs(v) {
				return t, "path must be absolute"
			}
			sq.Path = path.Clean(v)
			fs.Path = path.Clean(v)

		case "exclude":
			fs.Exclude = splitList(v)

		case "pre_exec":
			fs.PreExec = v
		}
	}

	if len(creds) > 1 {
		names := make([]string, len(creds))
		for i, cr := range creds {
			names[i] = cr.Source.String()
		}
		return t, "ambiguous credentials: " + strings.Join(names, ", ")
	}
	if len(creds) == 1 {
		t.Credential = creds[0]
	} else if RequiresCredential(typ) {
		return t, "missing credentials: one of password, password_env, password_file is required"
	}

	switch typ {
	case domain.TargetSQLite:
		if sq.Path == "" {
			return t, "missing path"
		}
		t.Properties = sq
	case domain.TargetFS:
		if fs.Path == "" {
			return t, "missing path"
		}
		t.Properties = fs
	default:
		t.Properties = db
	}

	return t, ""
}

func visible(p string, mounts []string) bool {
	for _, m := range mounts {
		m = path.Clean(m)
		if p == m || m == "/" || strings.HasPrefix(p, m+"/") {
			return true
		}
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
