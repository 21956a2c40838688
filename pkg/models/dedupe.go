package models

// DedupeStrategy names how a duplicate group was resolved
type DedupeStrategy string

const (
	DedupeStrategyMerge DedupeStrategy = "MERGE"
	DedupeStrategySplit DedupeStrategy = "SPLIT"
	DedupeStrategyHash  DedupeStrategy = "HASH"
	// DedupeStrategyNone marks groups passed through untouched, either
	// singletons or groups whose strategy was disabled.
	DedupeStrategyNone DedupeStrategy = "NONE"
)

// ConflictKind names why a group could not be merged
type ConflictKind string

const (
	ConflictDescription ConflictKind = "description"
	ConflictUnit        ConflictKind = "unit"
)

// DuplicateGroup is the audit record for one group of rubros sharing a code
type DuplicateGroup struct {
	GroupKey  string         `json:"group_key"`
	MemberIDs []string       `json:"member_ids"`
	Strategy  DedupeStrategy `json:"strategy"`
	Conflicts []ConflictKind `json:"conflicts,omitempty"`
	ResultIDs []string       `json:"result_ids"`

	// Renames maps original member IDs to their assigned codes when the
	// group was split or hashed.
	Renames map[string]string `json:"renames,omitempty"`
}

// DedupeStats summarizes one deduplication pass
type DedupeStats struct {
	Input   int `json:"input"`
	Output  int `json:"output"`
	Merged  int `json:"merged"`
	Split   int `json:"split"`
	Hashed  int `json:"hashed"`
	Removed int `json:"removed"`
}

// DedupeRequest is the request body for deduplicating a batch of rubros
type DedupeRequest struct {
	Rubros []Rubro `json:"rubros" validate:"required,min=1,dive"`
}

// DedupeResponse is the response for a dedupe request
type DedupeResponse struct {
	Rubros []Rubro          `json:"rubros"`
	Groups []DuplicateGroup `json:"groups,omitempty"`
	Stats  DedupeStats      `json:"stats"`
}
