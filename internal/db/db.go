package db

import (
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"

	"github.com/chmdznr/lms-to-minio-syncer/pkg/models"
)

// DB is the sync ledger: the durable record of which source files have
// already been transferred. One row per file URL, ever.
type DB struct {
	*sql.DB
}

// New opens (or creates) the ledger database at path.
func New(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.initialize(); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return db, nil
}

// initialize creates the necessary tables if they don't exist
func (db *DB) initialize() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS synced_files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_url TEXT UNIQUE NOT NULL,
			file_name TEXT,
			course TEXT,
			synced_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_synced_files_course ON synced_files(course);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`)
	return err
}

// IsSynced reports whether a record exists for the given source URL.
func (db *DB) IsSynced(fileURL string) (bool, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM synced_files WHERE file_url = ?`, fileURL).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Record inserts a sync record for fileURL. Inserting a URL that is
// already present is a silent no-op: the check-transfer-record sequence
// is not atomic, so a crash between upload and record makes the next
// run try to record the same URL again.
func (db *DB) Record(fileURL, fileName, course string) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO synced_files (file_url, file_name, course)
		VALUES (?, ?, ?)
	`, fileURL, fileName, course)
	return err
}

// RecentRecords returns the most recently synced files, newest first.
func (db *DB) RecentRecords(limit int) ([]models.SyncRecord, error) {
	rows, err := db.Query(`
		SELECT file_url, file_name, course, synced_at
		FROM synced_files
		ORDER BY synced_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.SyncRecord
	for rows.Next() {
		var r models.SyncRecord
		if err := rows.Scan(&r.FileURL, &r.FileName, &r.Course, &r.SyncedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats returns total and per-course record counts.
func (db *DB) Stats() (*models.LedgerStats, error) {
	var stats models.LedgerStats
	err := db.QueryRow(`SELECT COUNT(*) FROM synced_files`).Scan(&stats.TotalRecords)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT course, COUNT(*)
		FROM synced_files
		GROUP BY course
		ORDER BY course
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c models.CourseCount
		if err := rows.Scan(&c.Course, &c.Records); err != nil {
			return nil, err
		}
		stats.Courses = append(stats.Courses, c)
	}
	return &stats, rows.Err()
}

// Reset deletes ledger records, forcing re-transfer on the next run.
// An empty course clears the whole ledger. Returns the number of
// records removed.
func (db *DB) Reset(course string) (int64, error) {
	var res sql.Result
	var err error
	if course == "" {
		res, err = db.Exec(`DELETE FROM synced_files`)
	} else {
		res, err = db.Exec(`DELETE FROM synced_files WHERE course = ?`, course)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
