package documents

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
)

const DefaultCleanupInterval = time.Hour

// StartCleaner removes expired uploads in the background until ctx is done.
func (s *Service) StartCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go s.cleanupLoop(ctx, interval)
}

func (s *Service) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.cleanupExpired(ctx); err != nil {
				s.log.Error("cleanup uploads", zap.Error(err))
			} else if n > 0 {
				s.log.Info("expired uploads removed", zap.Int("count", n))
			}
		}
	}
}

func (s *Service) cleanupExpired(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stored_path FROM uploaded_files WHERE expires_at <= ?`, s.now().UTC())
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type fileRow struct {
		id   string
		path string
	}
	var files []fileRow
	for rows.Next() {
		var fr fileRow
		if err := rows.Scan(&fr.id, &fr.path); err != nil {
			return 0, err
		}
		files = append(files, fr)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	rows.Close()

	removed := 0
	for _, f := range files {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			s.log.Warn("remove upload failed", zap.String("path", f.path), zap.Error(err))
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM uploaded_files WHERE id = ?`, f.id); err != nil {
			s.log.Warn("delete upload record failed", zap.String("file_id", f.id), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
