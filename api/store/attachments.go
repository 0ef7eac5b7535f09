package store

import (
	"context"
	"fmt"

	"github.com/pulsechat/pulse/api/domain"
)

// CreateAttachment records an uploaded blob before any message references it.
func (s *Store) CreateAttachment(ctx context.Context, a *domain.Attachment) error {
	query := `
		INSERT INTO attachments (id, message_id, uploader_id, url, mime_type, size_bytes,
			thumbnail_url, width, height, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.conn(ctx).Exec(ctx, query,
		a.ID, a.MessageID, a.UploaderID, a.URL, a.MimeType, a.SizeBytes,
		a.ThumbnailURL, a.Width, a.Height, a.DurationMs, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// LinkAttachments binds uploaded attachments to a message inside the send
// transaction. Every id must exist, belong to the uploader, and be unlinked;
// otherwise the whole send aborts.
func (s *Store) LinkAttachments(ctx context.Context, messageID, uploaderID string, attachmentIDs []string) error {
	if len(attachmentIDs) == 0 {
		return nil
	}

	query := `
		UPDATE attachments
		SET message_id = $1
		WHERE id = ANY($3) AND uploader_id = $2 AND message_id IS NULL`

	result, err := s.conn(ctx).Exec(ctx, query, messageID, uploaderID, attachmentIDs)
	if err != nil {
		return fmt.Errorf("link attachments: %w", err)
	}
	if int(result.RowsAffected()) != len(attachmentIDs) {
		return fmt.Errorf("link attachments: %d of %d linkable: %w",
			result.RowsAffected(), len(attachmentIDs), domain.ErrNotFound)
	}
	return nil
}

// ListMessageAttachments returns the attachments linked to a message.
func (s *Store) ListMessageAttachments(ctx context.Context, messageID string) ([]domain.Attachment, error) {
	query := `
		SELECT id, message_id, uploader_id, url, mime_type, size_bytes,
			thumbnail_url, width, height, duration_ms, created_at
		FROM attachments
		WHERE message_id = $1
		ORDER BY created_at ASC`

	rows, err := s.conn(ctx).Query(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(
			&a.ID, &a.MessageID, &a.UploaderID, &a.URL, &a.MimeType, &a.SizeBytes,
			&a.ThumbnailURL, &a.Width, &a.Height, &a.DurationMs, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}
