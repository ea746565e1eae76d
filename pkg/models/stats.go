package models

// Stats summarizes one sync pass.
type Stats struct {
	Courses       int
	UploadedFiles int64
	UploadedSize  int64
	SkippedFiles  int64
}

// CourseCount is the number of ledgered files for a single course.
type CourseCount struct {
	Course  string
	Records int64
}

// LedgerStats summarizes ledger contents for the status command.
type LedgerStats struct {
	TotalRecords int64
	Courses      []CourseCount
}
