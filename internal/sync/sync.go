package sync

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/chmdznr/lms-to-minio-syncer/pkg/models"
)

// Ledger is the durable idempotency guard consulted before and written
// after each transfer.
type Ledger interface {
	IsSynced(fileURL string) (bool, error)
	Record(fileURL, fileName, course string) error
}

// FileSeq is a finite, non-restartable sequence of files in one course.
type FileSeq interface {
	Next() bool
	Item() models.TransferItem
	Err() error
}

// Enumerator lists courses and their files from the source portal and
// fetches file content. The session must already be authenticated.
type Enumerator interface {
	Courses(ctx context.Context) ([]string, error)
	Files(ctx context.Context, courseURL string) FileSeq
	Fetch(ctx context.Context, fileURL string) (io.ReadCloser, int64, error)
}

// Store is the destination side: root and folder resolution, uploads.
type Store interface {
	EnsureRoot(ctx context.Context, name string) (string, error)
	EnsureFolder(ctx context.Context, root, name string) (string, error)
	Upload(ctx context.Context, root, folderID, fileName string, r io.Reader, size int64) error
}

// Config holds orchestrator settings.
type Config struct {
	RootName   string
	StagingDir string
}

// Syncer drives one full sync pass: enumerate courses and files, skip
// ledgered files, fetch, stage, upload, record. Processing is strictly
// sequential to keep the check-transfer-record window narrow.
type Syncer struct {
	ledger Ledger
	portal Enumerator
	store  Store
	cfg    Config
	log    *logrus.Logger
}

// New creates a syncer.
func New(ledger Ledger, portal Enumerator, store Store, cfg Config, log *logrus.Logger) *Syncer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = os.TempDir()
	}
	return &Syncer{
		ledger: ledger,
		portal: portal,
		store:  store,
		cfg:    cfg,
		log:    log,
	}
}

// Run executes one sync pass and returns its counters. Any fetch or
// upload failure aborts the whole run; files recorded before the
// failure stay recorded, the rest are picked up by the next invocation.
func (s *Syncer) Run(ctx context.Context) (*models.Stats, error) {
	root, err := s.store.EnsureRoot(ctx, s.cfg.RootName)
	if err != nil {
		return nil, fmt.Errorf("resolving root container: %w", err)
	}

	courses, err := s.portal.Courses(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}

	stats := &models.Stats{Courses: len(courses)}
	for _, courseURL := range courses {
		files := s.portal.Files(ctx, courseURL)
		for files.Next() {
			item := files.Item()

			synced, err := s.ledger.IsSynced(item.SourceURL)
			if err != nil {
				return stats, fmt.Errorf("ledger lookup for %s: %w", item.SourceURL, err)
			}
			if synced {
				stats.SkippedFiles++
				s.log.WithFields(logrus.Fields{
					"course": item.CourseName,
					"file":   item.Name,
				}).Debug("already synced, skipping")
				continue
			}

			folderID, err := s.store.EnsureFolder(ctx, root, item.CourseName)
			if err != nil {
				return stats, fmt.Errorf("resolving folder for course %q: %w", item.CourseName, err)
			}

			size, err := s.transfer(ctx, root, folderID, item)
			if err != nil {
				return stats, err
			}

			if err := s.ledger.Record(item.SourceURL, item.Name, item.CourseName); err != nil {
				return stats, fmt.Errorf("recording %s: %w", item.SourceURL, err)
			}

			stats.UploadedFiles++
			stats.UploadedSize += size
			s.log.WithFields(logrus.Fields{
				"course": item.CourseName,
				"file":   item.Name,
				"url":    item.SourceURL,
				"size":   size,
			}).Info("uploaded")
		}
		if err := files.Err(); err != nil {
			return stats, fmt.Errorf("listing files for %s: %w", courseURL, err)
		}
	}
	return stats, nil
}

// transfer fetches one file into a staging file and uploads it from
// there. The staging file is removed on every exit path.
func (s *Syncer) transfer(ctx context.Context, root, folderID string, item models.TransferItem) (int64, error) {
	body, _, err := s.portal.Fetch(ctx, item.SourceURL)
	if err != nil {
		return 0, fmt.Errorf("fetching %q: %w", item.Name, err)
	}
	defer body.Close()

	staged, err := os.CreateTemp(s.cfg.StagingDir, "lmsync-*")
	if err != nil {
		return 0, fmt.Errorf("creating staging file: %w", err)
	}
	defer func() {
		staged.Close()
		os.Remove(staged.Name())
	}()

	size, err := io.Copy(staged, body)
	if err != nil {
		return 0, fmt.Errorf("staging %q: %w", item.Name, err)
	}
	if _, err := staged.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewinding staging file: %w", err)
	}

	if err := s.store.Upload(ctx, root, folderID, item.Name, staged, size); err != nil {
		return 0, fmt.Errorf("uploading %q: %w", item.Name, err)
	}
	return size, nil
}
