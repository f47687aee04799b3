package sqlfx

import (
	"github.com/jmoiron/sqlx"

	"github.com/yurykabanov/baqup/pkg/controller"
	"github.com/yurykabanov/baqup/pkg/http/handler"
	"github.com/yurykabanov/baqup/pkg/storage"
)

func BackupsRepository(db *sqlx.DB) (
	*storage.BackupRepository,
	controller.BackupRepository,
	handler.BackupRepository,
) {
	repo := storage.NewBackupRepository(db)

	return repo, repo, repo
}
