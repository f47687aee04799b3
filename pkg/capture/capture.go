// Package capture produces the raw artifact stream of a backup target: a dump tool run
// inside the container for databases, a filtered tar of a path for filesystems.
package capture

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/yurykabanov/baqup/pkg/domain"
)

// passwordVar carries literal and environment-sourced secrets into the exec, so they never
// appear on a command line.
const passwordVar = "BAQUP_PASSWORD"

type Runtime interface {
	Exec(ctx context.Context, containerID string, cmd []string, env []string, stdout io.Writer) (domain.ExecResult, error)
	CopyFrom(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error)
}

// Capturer writes the artifact of job's target into w. Errors returned by w are passed
// through unchanged so the caller can tell staging failures from capture failures.
type Capturer interface {
	Capture(ctx context.Context, job domain.BackupJob, w io.Writer) error
}

type Set struct {
	capturers map[domain.TargetType]Capturer
}

func NewSet(runtime Runtime) *Set {
	return &Set{
		capturers: map[domain.TargetType]Capturer{
			domain.TargetPostgres: &dumpCapturer{runtime: runtime, tool: "pg_dump", script: postgresScript},
			domain.TargetMySQL:    &dumpCapturer{runtime: runtime, tool: "mysqldump", script: mysqlScript("mysqldump")},
			domain.TargetMariaDB:  &dumpCapturer{runtime: runtime, tool: "mariadb-dump", script: mysqlScript("mariadb-dump")},
			domain.TargetMongo:    &dumpCapturer{runtime: runtime, tool: "mongodump", script: mongoScript},
			domain.TargetRedis:    &dumpCapturer{runtime: runtime, tool: "redis-cli", script: redisScript},
			domain.TargetSQLite:   &dumpCapturer{runtime: runtime, tool: "sqlite3", script: sqliteScript},
			domain.TargetFS:       &filesystemCapturer{runtime: runtime},
		},
	}
}

func (s *Set) For(t domain.TargetType) (Capturer, error) {
	c, ok := s.capturers[t]
	if !ok {
		return nil, errors.Errorf("no capturer for target type %q", t)
	}
	return c, nil
}

// Extension returns the artifact file extension, without the leading dot.
func Extension(t domain.TargetType, compress bool) string {
	var ext string

	switch t {
	case domain.TargetMongo:
		ext = "archive"
	case domain.TargetRedis:
		ext = "rdb"
	case domain.TargetFS:
		ext = "tar"
	default:
		ext = "sql"
	}

	if compress {
		ext += ".gz"
	}
	return ext
}

// credential returns the exec environment and the shell expression expanding to the
// password, or an empty expression when the target has no credential.
func credential(c domain.Credential) ([]string, string) {
	switch c.Source {
	case domain.CredentialLiteral, domain.CredentialEnv:
		return []string{passwordVar + "=" + c.Value}, `"$` + passwordVar + `"`
	case domain.CredentialFile:
		return nil, `"$(cat ` + quote(c.Name) + `)"`
	default:
		return nil, ""
	}
}

// quote wraps s in single quotes for sh.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

type scriptFunc func(t domain.TargetConfig, password string) string

type dumpCapturer struct {
	runtime Runtime
	tool    string
	script  scriptFunc
}

func (c *dumpCapturer) Capture(ctx context.Context, job domain.BackupJob, w io.Writer) error {
	env, password := credential(job.Target.Credential)

	cmd := []string{"sh", "-c", c.script(job.Target, password)}

	res, err := c.runtime.Exec(ctx, job.Container.ContainerID, cmd, env, w)
	if err != nil {
		return err
	}

	if res.ExitCode != 0 {
		return errors.Errorf("%s exited with code %d: %s", c.tool, res.ExitCode, res.Stderr)
	}
	return nil
}

func databaseProperties(t domain.TargetConfig) domain.DatabaseProperties {
	p, _ := t.Properties.(domain.DatabaseProperties)
	return p
}

func postgresScript(t domain.TargetConfig, password string) string {
	p := databaseProperties(t)

	user := p.Username
	if user == "" {
		user = "postgres"
	}

	opts := "--username=" + quote(user)
	if p.Port > 0 {
		opts += fmt.Sprintf(" --port=%d", p.Port)
	}

	prefix := ""
	if password != "" {
		prefix = "PGPASSWORD=" + password + " "
	}

	if len(p.Databases) == 0 {
		return prefix + "pg_dumpall " + opts
	}

	// --create makes the concatenated dumps restorable in one pass
	parts := make([]string, 0, len(p.Databases))
	for _, db := range p.Databases {
		parts = append(parts, prefix+"pg_dump --create "+opts+" --dbname="+quote(db))
	}
	return strings.Join(parts, " && ")
}

func mysqlScript(tool string) scriptFunc {
	return func(t domain.TargetConfig, password string) string {
		p := databaseProperties(t)

		user := p.Username
		if user == "" {
			user = "root"
		}

		var b strings.Builder
		if password != "" {
			b.WriteString("MYSQL_PWD=" + password + " ")
		}
		b.WriteString(tool + " --single-transaction --routines --events --user=" + quote(user))

		if p.Port > 0 {
			fmt.Fprintf(&b, " --protocol=tcp --host=127.0.0.1 --port=%d", p.Port)
		}

		if len(p.Databases) == 0 {
			b.WriteString(" --all-databases")
		} else {
			b.WriteString(" --databases")
			for _, db := range p.Databases {
				b.WriteString(" " + quote(db))
			}
		}

		return b.String()
	}
}

func mongoScript(t domain.TargetConfig, password string) string {
	p := databaseProperties(t)

	var b strings.Builder
	b.WriteString("mongodump --archive --quiet")

	if p.Port > 0 {
		fmt.Fprintf(&b, " --port=%d", p.Port)
	}

	user := p.Username
	if user == "" && password != "" {
		user = "root"
	}
	if user != "" {
		b.WriteString(" --username=" + quote(user))
	}
	if password != "" {
		b.WriteString(" --password=" + password + " --authenticationDatabase=admin")
	}

	for _, db := range p.Databases {
		b.WriteString(" --nsInclude=" + quote(db+".*"))
	}

	return b.String()
}

func redisScript(t domain.TargetConfig, password string) string {
	p := databaseProperties(t)

	var b strings.Builder
	if password != "" {
		b.WriteString("REDISCLI_AUTH=" + password + " ")
	}
	b.WriteString("redis-cli")

	if p.Port > 0 {
		fmt.Fprintf(&b, " -p %d", p.Port)
	}
	if p.Username != "" {
		b.WriteString(" --user " + quote(p.Username))
	}

	// "-" streams the snapshot to stdout
	b.WriteString(" --rdb -")
	return b.String()
}

func sqliteScript(t domain.TargetConfig, _ string) string {
	p, _ := t.Properties.(domain.SQLiteProperties)
	return "sqlite3 " + quote(p.Path) + " .dump"
}
