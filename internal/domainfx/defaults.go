package domainfx

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/yurykabanov/baqup/pkg/domain"
	"github.com/yurykabanov/baqup/pkg/schedule"
)

const (
	ConfigDefaultSchedules      = "defaults.schedules"
	ConfigDefaultTargetSchedule = "defaults.target.schedule"
	ConfigDefaultTargetCompress = "defaults.target.compress"
)

// LoadDefaults overlays the configured schedules on the builtin ones. A configured schedule
// may set only cron or only retention of a builtin.
func LoadDefaults(v *viper.Viper) (domain.Defaults, error) {
	d := domain.DefaultDefaults()

	var configured map[string]domain.ScheduleDefinition

	err := v.UnmarshalKey(ConfigDefaultSchedules, &configured)
	if err != nil {
		return d, errors.Wrap(err, "Unable to unmarshal default schedules")
	}

	for name, s := range configured {
		def, ok := d.Schedules[name]
		if !ok {
			def = domain.ScheduleDefinition{Retention: 7}
		}
		def.Name = name

		if s.Cron != "" {
			def.Cron = s.Cron
		}
		if s.Retention != 0 {
			def.Retention = s.Retention
		}

		if _, err := schedule.Parse(def.Cron); err != nil {
			return d, errors.Wrapf(err, "default schedule %s", name)
		}
		if def.Retention < 1 {
			return d, errors.Errorf("default schedule %s: retention must be at least 1", name)
		}

		d.Schedules[name] = def
	}

	if name := v.GetString(ConfigDefaultTargetSchedule); name != "" {
		d.TargetSchedule = name
	}
	d.TargetCompress = v.GetBool(ConfigDefaultTargetCompress)

	if _, ok := d.Schedules[d.TargetSchedule]; !ok {
		return d, errors.Errorf("default target schedule %s is not defined", d.TargetSchedule)
	}

	return d, nil
}
