package repository

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session statuses. Only terminal states are ever persisted.
const (
	SessionCompleted = "completed"
	SessionReverted  = "reverted"
)

// Account represents an account row.
type Account struct {
	ID          string
	Name        string
	Institution string
	AccountType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category represents a category row.
type Category struct {
	ID        string
	ParentID  *string
	Name      string
	Icon      *string
	SortOrder int
}

// Transaction represents a transaction row.
type Transaction struct {
	ID             string
	AccountID      string
	SessionID      *string
	ExternalID     *string
	Date           time.Time
	AmountCents    int64
	RawDescription string
	MerchantName   *string
	CategoryID     *string
	OriginFormat   string
	ScopedHash     string
	UnscopedHash   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MerchantRule represents a rule.
type MerchantRule struct {
	ID          string
	Pattern     string
	PatternType string
	CategoryID  string
	Confidence  float64
	Source      string
	CreatedAt   time.Time
}

// SessionCounts are the dedup tallies kept per session and per file.
type SessionCounts struct {
	Parsed             int
	Persisted          int
	DuplicateInFile    int
	DuplicateCrossFile int
	DuplicateExisting  int
}

// ImportSession is the audit record of one committed batch.
type ImportSession struct {
	ID                   string
	Status               string
	Counts               SessionCounts
	CrossAccountWarnings int
	CreatedAt            time.Time
	RevertedAt           *time.Time
	Files                []ImportSessionFile
}

// ImportSessionFile is one source file of a session, in commit order.
type ImportSessionFile struct {
	Position     int
	Filename     string
	Format       string
	AccountLabel string
	Counts       SessionCounts
	ErrorCount   int
}

// AccountID derives the stable id for an account label. Labels that differ
// only in case or spacing share an id.
func AccountID(label string) string {
	key := strings.ToLower(strings.Join(strings.Fields(label), " "))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// CategoryID derives the stable id for a category name.
func CategoryID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("cat:"+strings.TrimSpace(name))).String()
}
