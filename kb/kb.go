// Package kb provides access to the external knowledge base that
// classified threat records are merged into. The pipeline only inserts
// sections, subsections and term entries; it never owns or reads back
// the knowledge-base content beyond idempotency checks.
package kb

import (
	"errors"

	"threatharvest/core"
)

// Knowledge-base error constants
var (
	// ErrSectionNotFound is returned when a section does not exist
	ErrSectionNotFound = errors.New("section not found")

	// ErrSectionExists is returned when adding a section whose id is taken
	ErrSectionExists = errors.New("section already exists")

	// ErrSubsectionNotFound is returned when a subsection does not exist
	ErrSubsectionNotFound = errors.New("subsection not found")

	// ErrInvalidTerm is returned when a term entry fails validation
	ErrInvalidTerm = errors.New("invalid term")
)

// Term is one knowledge-base entry projected from a classified record.
type Term struct {
	Term         string      `json:"term"`
	Definition   string      `json:"definition"`
	RelatedTerms []string    `json:"related_terms,omitempty"`
	Severity     int         `json:"severity,omitempty"`
	Date         string      `json:"date,omitempty"`
	Source       string      `json:"source,omitempty"`
	Link         string      `json:"link,omitempty"`
	Indicators   core.IOCSet `json:"indicators,omitempty"`
}

// Subsection groups terms under one threat category.
type Subsection struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Content map[string]Term `json:"content,omitempty"`
}

// Section is a top-level knowledge-base division.
type Section struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Subsections []*Subsection `json:"subsections"`
}

// Accessor is the insertion interface the enrichment pipeline uses
// against the knowledge base. Implementations must make section and
// subsection creation idempotent consumers: callers check existence via
// the getters before adding.
type Accessor interface {
	// GetSection returns a section by id, or ErrSectionNotFound.
	GetSection(id string) (*Section, error)

	// AddSection adds a new section, or ErrSectionExists.
	AddSection(section *Section) error

	// GetSubsection returns a subsection, or ErrSubsectionNotFound
	// (ErrSectionNotFound when the section itself is missing).
	GetSubsection(sectionID, subsectionID string) (*Subsection, error)

	// AddSubsection appends a subsection to an existing section.
	AddSubsection(sectionID string, subsection *Subsection) error

	// PutTerm inserts or overwrites the term keyed by termID inside a
	// subsection's content.
	PutTerm(sectionID, subsectionID, termID string, term Term) error

	// Close flushes and releases the underlying storage.
	Close() error
}
