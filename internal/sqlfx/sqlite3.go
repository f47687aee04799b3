package sqlfx

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/baqup/pkg/storage"
)

const (
	ConfigDbDsn = "db.dsn"
)

type SqliteConfig struct {
	DSN string
}

func SqliteConfigProvider(v *viper.Viper) (*SqliteConfig, error) {
	config := &SqliteConfig{
		DSN: v.GetString(ConfigDbDsn),
	}

	if config.DSN == "" {
		return nil, errors.Errorf("%s is required", ConfigDbDsn)
	}

	return config, nil
}

func OpenSqliteDatabase(config *SqliteConfig, logger *logrus.Logger) (*sqlx.DB, error) {
	logger.WithField("dsn", config.DSN).Debug("Connecting to DB with DSN")

	// the database file lives next to the staging area, which may not exist on first start
	if file := strings.TrimPrefix(strings.SplitN(config.DSN, "?", 2)[0], "file:"); file != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
			return nil, errors.Wrap(err, "Unable to create DB directory")
		}
	}

	return storage.Open(config.DSN)
}

func CloseSqliteDatabase(lc fx.Lifecycle, db *sqlx.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
}
