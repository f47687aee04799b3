package domain

import (
	"fmt"
	"time"
)

// TimestampFormat is the compact, colon-free UTC layout embedded in artifact names.
// It sorts lexicographically in chronological order.
const TimestampFormat = "20060102T150405Z"

type TargetType string

const (
	TargetPostgres TargetType = "postgres"
	TargetMariaDB  TargetType = "mariadb"
	TargetMySQL    TargetType = "mysql"
	TargetMongo    TargetType = "mongo"
	TargetRedis    TargetType = "redis"
	TargetSQLite   TargetType = "sqlite"
	TargetFS       TargetType = "fs"
)

var TargetTypes = []TargetType{
	TargetPostgres, TargetMariaDB, TargetMySQL, TargetMongo, TargetRedis, TargetSQLite, TargetFS,
}

func (t TargetType) Valid() bool {
	for _, tt := range TargetTypes {
		if t == tt {
			return true
		}
	}
	return false
}

// IsDatabase reports whether the type is captured by a dump tool rather than an archive.
func (t TargetType) IsDatabase() bool {
	return t.Valid() && t != TargetFS
}

type CredentialSource int

const (
	CredentialNone CredentialSource = iota
	CredentialLiteral
	CredentialEnv
	CredentialFile
)

func (s CredentialSource) String() string {
	switch s {
	case CredentialLiteral:
		return "password"
	case CredentialEnv:
		return "password_env"
	case CredentialFile:
		return "password_file"
	default:
		return "none"
	}
}

// Credential is a resolved secret reference. For CredentialEnv the Value holds the
// variable's value read from the container environment; for CredentialFile Name holds the
// path inside the container and Value is empty.
type Credential struct {
	Source CredentialSource
	Name   string
	Value  string
}

// TargetProperties is implemented by the per-type property sets.
type TargetProperties interface {
	targetProperties()
}

type DatabaseProperties struct {
	Port      int
	Username  string
	Databases []string
}

type SQLiteProperties struct {
	Path string
}

type FilesystemProperties struct {
	Path    string
	Exclude []string
	PreExec string
}

func (DatabaseProperties) targetProperties()   {}
func (SQLiteProperties) targetProperties()     {}
func (FilesystemProperties) targetProperties() {}

type TargetConfig struct {
	Type       TargetType
	Instance   string
	Schedule   string
	Compress   bool
	Credential Credential
	Properties TargetProperties
}

// Dir is the lineage directory name used in the staging and remote layouts.
func (t TargetConfig) Dir() string {
	return fmt.Sprintf("%s-%s", t.Type, t.Instance)
}

type ContainerBackupConfig struct {
	ContainerID   string
	ContainerName string
	Enabled       bool
	Stop          bool
	Schedules     map[string]ScheduleDefinition
	Targets       []TargetConfig
}

// TargetKey identifies a target across discovery ticks.
type TargetKey struct {
	ContainerID string
	Type        TargetType
	Instance    string
}

func (k TargetKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ContainerID, k.Type, k.Instance)
}

func KeyOf(c ContainerBackupConfig, t TargetConfig) TargetKey {
	return TargetKey{ContainerID: c.ContainerID, Type: t.Type, Instance: t.Instance}
}

type BackupJob struct {
	Container   ContainerBackupConfig
	Target      TargetConfig
	Schedule    ScheduleDefinition
	TriggeredAt time.Time
}

func (j BackupJob) Key() TargetKey {
	return KeyOf(j.Container, j.Target)
}

func (j BackupJob) Timestamp() string {
	return j.TriggeredAt.UTC().Format(TimestampFormat)
}

func (j BackupJob) String() string {
	return fmt.Sprintf("%s@%s", j.Key(), j.Timestamp())
}

type BackupResult struct {
	Job         BackupJob
	Success     bool
	StagingPath string
	RemotePath  string
	Size        int64
	Error       string
	Stage       Stage
	Duration    time.Duration
}

type TargetStatus string

const (
	StatusHealthy TargetStatus = "healthy"
	StatusWarning TargetStatus = "warning"
	StatusError   TargetStatus = "error"
)

type TargetState struct {
	LastRun     *time.Time
	LastSuccess *time.Time
	LastError   string
	NextRun     time.Time
	Status      TargetStatus

	// Cron is the expression NextRun was computed from.
	Cron string
}
