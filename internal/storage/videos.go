package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/allofdaniel/shopping-helper/internal/common"
	"github.com/allofdaniel/shopping-helper/internal/model"
)

const videoColumns = `id, title, description, transcript, channel_name,
	duration_seconds, view_count, status, collected_at`

// SaveVideo inserts or refreshes a video record. A nil transcript never
// clears one stored earlier.
func (s *SQLiteStorage) SaveVideo(ctx context.Context, video model.VideoRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateVideo(&video); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO videos (`+videoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			transcript = COALESCE(excluded.transcript, videos.transcript),
			channel_name = excluded.channel_name,
			duration_seconds = excluded.duration_seconds,
			view_count = excluded.view_count,
			status = excluded.status`,
		video.ID, video.Title, video.Description, video.Transcript, video.ChannelName,
		video.DurationSeconds, video.ViewCount, string(video.Status), video.CollectedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save video %s: %w", video.ID, err)
	}
	return nil
}

// GetVideo loads a single video; it returns common.ErrNotFound for unknown IDs.
func (s *SQLiteStorage) GetVideo(ctx context.Context, videoID string) (*model.VideoRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(videoID, "videoID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, videoID)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %s: %w", videoID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video %s: %w", videoID, err)
	}
	return video, nil
}

// ListVideos returns every stored video ordered by ID.
func (s *SQLiteStorage) ListVideos(ctx context.Context) ([]model.VideoRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var videos []model.VideoRecord
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

func scanVideo(row rowScanner) (*model.VideoRecord, error) {
	var (
		v          model.VideoRecord
		transcript sql.NullString
		status     string
	)
	if err := row.Scan(&v.ID, &v.Title, &v.Description, &transcript, &v.ChannelName,
		&v.DurationSeconds, &v.ViewCount, &status, &v.CollectedAt); err != nil {
		return nil, err
	}
	if transcript.Valid {
		v.Transcript = &transcript.String
	}
	v.Status = model.VideoStatus(status)
	return &v, nil
}
