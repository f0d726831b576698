package models

import (
	"time"

	"mutuals/pkg/domain"
)

// LookupKind names one of the two remote queries made per identifier.
type LookupKind string

const (
	// LookupGroups fetches the profile together with the groups shared with the caller.
	LookupGroups LookupKind = "groups"
	// LookupConnections fetches the connections shared with the caller.
	LookupConnections LookupKind = "connections"
)

// IsValid checks if the lookup kind is one of the supported values.
func (k LookupKind) IsValid() bool {
	return k == LookupGroups || k == LookupConnections
}

func (k LookupKind) String() string {
	return string(k)
}

// RawLookupResult is the unclassified payload of a single lookup. Err is set
// when the transport failed and no usable body was received.
type RawLookupResult struct {
	Kind       LookupKind
	Identifier domain.UserID
	StatusCode int
	Body       []byte
	Err        error
}

// Connection is a connection surfaced by a connection-list lookup.
type Connection struct {
	ID   domain.UserID `json:"id"`
	Name string        `json:"name"`
}

// LookupData is the normalized content of a resolved lookup. Name is empty
// when the lookup does not reveal the subject's own name.
type LookupData struct {
	Name        string
	Groups      []domain.GroupID
	Connections []Connection
}

// ResolvedRecord is the durable per-identifier result of a run.
type ResolvedRecord struct {
	Identifier      domain.UserID    `json:"identifier"`
	Name            string           `json:"name,omitempty"`
	GroupCount      int              `json:"group_count"`
	Groups          []domain.GroupID `json:"groups,omitempty"`
	ConnectionCount int              `json:"connection_count"`
	Connections     []Connection     `json:"connections,omitempty"`
	ResolvedAt      time.Time        `json:"resolved_at"`
}

// DisplayName returns the resolved name or the identifier when none was seen.
func (r ResolvedRecord) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Identifier.String()
}

// Anomaly is a logged give-up for one identifier.
type Anomaly struct {
	Identifier domain.UserID `json:"identifier"`
	Kind       LookupKind    `json:"kind,omitempty"`
	Reason     string        `json:"reason"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// RunStats summarizes a run for reporting and progress output.
type RunStats struct {
	Total           int           `json:"total"`
	Resolved        int           `json:"resolved"`
	Abandoned       int           `json:"abandoned"`
	RateLimitEvents int           `json:"rate_limit_events"`
	TotalBackoff    time.Duration `json:"total_backoff"`
	Cancelled       bool          `json:"cancelled"`
}
