package model

import (
	"encoding/json"
	"time"
)

// Migration session states.
const (
	MigrationIdle      = "idle"
	MigrationParsed    = "parsed"
	MigrationAnalyzed  = "analyzed"
	MigrationCommitted = "committed"
)

// MigrationSummary holds the counts the backend reports on analysis.
type MigrationSummary struct {
	TotalNew         int `json:"totalNew"`
	TotalCurrent     int `json:"totalCurrent"`
	TotalConflicts   int `json:"totalConflicts"`
	TotalInvalid     int `json:"totalInvalid"`
	TotalFilteredOut int `json:"totalFilteredOut,omitempty"`
}

// InvalidRow is a record the backend refused, with its reasons.
type InvalidRow struct {
	Data   json.RawMessage `json:"data"`
	Errors []string        `json:"errors"`
}

// MigrationData is the partitioned batch inside a classification payload.
// Only the fields needed to drive the session are decoded; the payload
// itself is kept verbatim.
type MigrationData struct {
	NewClients                []json.RawMessage `json:"newClients,omitempty"`
	ConflictingClients        []json.RawMessage `json:"conflictingClients,omitempty"`
	NewProducts               []json.RawMessage `json:"newProducts,omitempty"`
	ConflictingProducts       []json.RawMessage `json:"conflictingProducts,omitempty"`
	ProductsReadyForMigration []json.RawMessage `json:"productsReadyForMigration,omitempty"`
	InvalidRows               []InvalidRow      `json:"invalidRows,omitempty"`
}

// Classification is the decoded view of an analyze response.
type Classification struct {
	Summary MigrationSummary `json:"summary"`
	Data    MigrationData    `json:"data"`
}

// CommitResponse is the body returned by the make-migration endpoints.
// CreatedCount is nil when the backend omits it.
type CommitResponse struct {
	Data struct {
		CreatedCount *int `json:"createdCount"`
	} `json:"data"`
}

// MigrationSnapshot is an immutable, serializable copy of a migration
// session. ProcessedData is the analyze response exactly as received.
type MigrationSnapshot struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	SubjectID string `json:"subject_id"`
	State     string `json:"state"`
	FileName  string `json:"file_name,omitempty"`

	ParsedCount       int             `json:"parsedCount"`
	ParsedData        json.RawMessage `json:"parsedData,omitempty"`
	ProcessedData     json.RawMessage `json:"processedData,omitempty"`
	MigrationComplete bool            `json:"migrationComplete"`
	CreatedCount      int             `json:"createdCount"`
	Error             string          `json:"error,omitempty"`

	Parsing    bool `json:"parsing"`
	Processing bool `json:"processing"`
	Migrating  bool `json:"migrating"`
	// RunID identifies the transition holding the raised busy flag.
	RunID string `json:"run_id,omitempty"`

	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
