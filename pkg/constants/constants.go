// Package constants provides shared constants used throughout the ecomap pipeline.
// This includes timeouts, limits, thresholds and file permissions that should be
// consistent across the library and the CLI.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultTimeout is the standard timeout for general operations
	DefaultTimeout = 10 * time.Second

	// DefaultHTTPTimeout bounds a single remote feed fetch
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultCacheTTL is how long API list responses stay cached
	DefaultCacheTTL = 5 * time.Minute

	// CollectionTimeout bounds a single daily-collection run
	CollectionTimeout = 2 * time.Hour

	// AnalysisTimeout bounds a single weekly-analysis run
	AnalysisTimeout = 4 * time.Hour

	// CleanupTimeout bounds a single monthly-cleanup run
	CleanupTimeout = 4 * time.Hour

	// ShutdownTimeout is how long the scheduler waits for in-flight runs on stop
	ShutdownTimeout = 30 * time.Second

	// RetryBackoff is the base backoff duration between store write retries
	RetryBackoff = 10 * time.Millisecond

	// MaxRetryBackoff is the maximum backoff duration between store write retries
	MaxRetryBackoff = 500 * time.Millisecond

	// SQLiteBusyTimeout is how long SQLite waits on a locked database
	SQLiteBusyTimeout = 10 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Limit constants define various limits and capacities
const (
	// MaxWriteAttempts is the number of read-merge-write attempts before a
	// write conflict is surfaced for an entity
	MaxWriteAttempts = 3

	// DefaultConcurrency is the default number of blocks or entities processed in parallel
	DefaultConcurrency = 4

	// MaxConcurrency caps the configurable worker count
	MaxConcurrency = 64

	// MaxNameLength is the maximum rune length of an entity name
	MaxNameLength = 200

	// MaxDescriptionLength is the maximum rune length of an entity description
	MaxDescriptionLength = 500

	// AuditBufferSize is the buffer size of channel audit sinks
	AuditBufferSize = 256

	// MaxRunHistory is the number of finished runs the scheduler remembers
	MaxRunHistory = 100
)

// Resolution constants
const (
	// DefaultMatchThreshold is the token-set overlap ratio at which two names match
	DefaultMatchThreshold = 0.85

	// DefaultReactivationConfidence is the record confidence needed to match an archived entity
	DefaultReactivationConfidence = 0.8

	// DefaultFundingDateTolerance collapses funding rounds of one type this close together
	DefaultFundingDateTolerance = 30 * 24 * time.Hour
)

// Quality constants
const (
	// DefaultStalenessWindow is how long an entity may go without a source update
	DefaultStalenessWindow = 180 * 24 * time.Hour

	// DefaultMissingFieldsAfter is how long a name-only entity may exist before it is flagged
	DefaultMissingFieldsAfter = 30 * 24 * time.Hour

	// DefaultArchiveScoreThreshold is the growth score below which stale entities are archived
	DefaultArchiveScoreThreshold = 20.0

	// DefaultDisputeReports is the number of independent reports that flag a field
	DefaultDisputeReports = 2

	// DefaultMaxFundingAmount is the largest plausible single funding round in USD
	DefaultMaxFundingAmount = 50_000_000_000.0
)

// Schedule constants hold the default cron cadences
const (
	// DailyCollectionSchedule runs collection every day at 02:00
	DailyCollectionSchedule = "0 2 * * *"

	// WeeklyAnalysisSchedule runs analysis every Monday at 03:00
	WeeklyAnalysisSchedule = "0 3 * * 1"

	// MonthlyCleanupSchedule runs cleanup on the first of the month at 04:00
	MonthlyCleanupSchedule = "0 4 1 * *"
)
