package domain

const DefaultScheduleName = "daily"

type ScheduleDefinition struct {
	Name      string `mapstructure:"-"`
	Cron      string `mapstructure:"cron"`
	Retention int    `mapstructure:"retention"`
}

// Defaults are the controller-level settings applied to every discovered container.
type Defaults struct {
	Schedules      map[string]ScheduleDefinition
	TargetSchedule string
	TargetCompress bool
}

func BuiltinSchedules() map[string]ScheduleDefinition {
	return map[string]ScheduleDefinition{
		"daily":  {Name: "daily", Cron: "0 3 * * *", Retention: 7},
		"hourly": {Name: "hourly", Cron: "0 * * * *", Retention: 24},
		"weekly": {Name: "weekly", Cron: "0 4 * * 0", Retention: 4},
	}
}

func DefaultDefaults() Defaults {
	return Defaults{
		Schedules:      BuiltinSchedules(),
		TargetSchedule: DefaultScheduleName,
		TargetCompress: true,
	}
}
