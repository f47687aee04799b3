package domain

import "time"

// Backup is one recorded pipeline outcome in the backup history. History is keyed by
// container name: ids change whenever a container is recreated.
type Backup struct {
	Id int64 // identifier for DB

	ContainerId    string
	ContainerName  string
	TargetType     string
	TargetInstance string
	Schedule       string

	TriggeredAt time.Time
	FinishedAt  time.Time

	Success bool
	Stage   string
	Error   string

	StagingPath string
	RemotePath  string
	Size        int64
	DurationMs  int64
}

func BackupFromResult(r BackupResult, finishedAt time.Time) Backup {
	return Backup{
		ContainerId:    r.Job.Container.ContainerID,
		ContainerName:  r.Job.Container.ContainerName,
		TargetType:     string(r.Job.Target.Type),
		TargetInstance: r.Job.Target.Instance,
		Schedule:       r.Job.Schedule.Name,
		TriggeredAt:    r.Job.TriggeredAt.UTC(),
		FinishedAt:     finishedAt.UTC(),
		Success:        r.Success,
		Stage:          string(r.Stage),
		Error:          r.Error,
		StagingPath:    r.StagingPath,
		RemotePath:     r.RemotePath,
		Size:           r.Size,
		DurationMs:     r.Duration.Milliseconds(),
	}
}
