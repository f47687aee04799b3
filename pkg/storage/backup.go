package storage

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/yurykabanov/baqup/pkg/domain"
)

const (
	backupInsertQuery = `
		INSERT INTO backups (
			container_id, container_name, target_type, target_instance, schedule,
			triggered_at, finished_at,
			success, stage, error,
			staging_path, remote_path, size, duration_ms
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	backupSelectLastSuccessful = `
		SELECT *
		FROM backups
		WHERE id IN (
			SELECT MAX(id)
			FROM backups
			WHERE success = 1
			GROUP BY container_name, target_type, target_instance
		)
		ORDER BY container_name, target_type, target_instance
	`

	backupSelectRecent = `
		SELECT *
		FROM backups
		ORDER BY id DESC
		LIMIT ?
	`
)

type BackupRepository struct {
	db *sqlx.DB
}

func NewBackupRepository(db *sqlx.DB) *BackupRepository {
	return &BackupRepository{
		db: db,
	}
}

func (r *BackupRepository) Create(ctx context.Context, backup domain.Backup) (domain.Backup, error) {
	stmt, err := r.db.PrepareContext(ctx, backupInsertQuery)
	if err != nil {
		return backup, err
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(
		ctx,
		backup.ContainerId, backup.ContainerName, backup.TargetType, backup.TargetInstance, backup.Schedule,
		backup.TriggeredAt, backup.FinishedAt,
		backup.Success, backup.Stage, backup.Error,
		backup.StagingPath, backup.RemotePath, backup.Size, backup.DurationMs,
	)
	if err != nil {
		return backup, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return backup, err
	}

	backup.Id = id

	return backup, nil
}

// FindLastSuccessful returns the latest successful backup of every target ever recorded.
func (r *BackupRepository) FindLastSuccessful(ctx context.Context) ([]domain.Backup, error) {
	var backups []domain.Backup

	err := r.db.SelectContext(ctx, &backups, backupSelectLastSuccessful)
	if err != nil {
		return nil, err
	}

	return backups, nil
}

// FindRecent returns up to limit backups, newest first.
func (r *BackupRepository) FindRecent(ctx context.Context, limit int) ([]domain.Backup, error) {
	var backups []domain.Backup

	err := r.db.SelectContext(ctx, &backups, backupSelectRecent, limit)
	if err != nil {
		return nil, err
	}

	return backups, nil
}
