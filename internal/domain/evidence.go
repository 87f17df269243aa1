package domain

import "time"

// EvidenceKind marks whether media was captured before or after the work.
type EvidenceKind string

const (
	EvidenceBefore EvidenceKind = "BEFORE"
	EvidenceAfter  EvidenceKind = "AFTER"
)

// Evidence references a media artifact attached to an issue. Storage of
// the artifact itself happens elsewhere.
type Evidence struct {
	ID         string
	IssueID    string
	Kind       EvidenceKind
	URL        string
	UploadedBy string
	CreatedAt  time.Time
}
