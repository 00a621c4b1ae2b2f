package kb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// JSON File Accessor
// =============================================================================

// document is the on-disk knowledge-base shape.
type document struct {
	Company  map[string]interface{} `json:"company,omitempty"`
	Sections []*Section             `json:"sections"`
}

// JSONAccessor stores the knowledge base as a single JSON document,
// loaded once at construction and rewritten after every mutation. A
// mutex serializes access; the knowledge base is small and mutation
// volume is one batch per enrichment pass.
type JSONAccessor struct {
	mu     sync.Mutex
	path   string
	doc    *document
	logger *zap.SugaredLogger
}

// NewJSONAccessor opens (creating if needed) the knowledge-base file.
func NewJSONAccessor(path string, logger *zap.SugaredLogger) (*JSONAccessor, error) {
	a := &JSONAccessor{path: path, logger: logger}
	if err := a.load(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *JSONAccessor) load() error {
	data, err := os.ReadFile(a.path)
	if os.IsNotExist(err) {
		a.logger.Infow("Knowledge base file not found, starting empty", "path", a.path)
		a.doc = &document{Sections: []*Section{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read knowledge base: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse knowledge base: %w", err)
	}
	if doc.Sections == nil {
		doc.Sections = []*Section{}
	}
	a.doc = &doc
	return nil
}

// save rewrites the whole document. Caller must hold the mutex.
func (a *JSONAccessor) save() error {
	dir := filepath.Dir(a.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create knowledge base directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(a.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode knowledge base: %w", err)
	}
	if err := os.WriteFile(a.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write knowledge base: %w", err)
	}
	return nil
}

// GetSection returns a section by id.
func (a *JSONAccessor) GetSection(id string) (*Section, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.findSection(id)
}

func (a *JSONAccessor) findSection(id string) (*Section, error) {
	for _, section := range a.doc.Sections {
		if section.ID == id {
			return section, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSectionNotFound, id)
}

// AddSection adds a new section.
func (a *JSONAccessor) AddSection(section *Section) error {
	if section.ID == "" {
		return fmt.Errorf("section id is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.findSection(section.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrSectionExists, section.ID)
	}
	if section.Subsections == nil {
		section.Subsections = []*Subsection{}
	}
	a.doc.Sections = append(a.doc.Sections, section)
	return a.save()
}

// GetSubsection returns a subsection within a section.
func (a *JSONAccessor) GetSubsection(sectionID, subsectionID string) (*Subsection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	section, err := a.findSection(sectionID)
	if err != nil {
		return nil, err
	}
	for _, subsection := range section.Subsections {
		if subsection.ID == subsectionID {
			return subsection, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrSubsectionNotFound, sectionID, subsectionID)
}

// AddSubsection appends a subsection to an existing section. Adding an
// id that already exists is a no-op, keeping subsection creation
// idempotent across passes.
func (a *JSONAccessor) AddSubsection(sectionID string, subsection *Subsection) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	section, err := a.findSection(sectionID)
	if err != nil {
		return err
	}
	for _, existing := range section.Subsections {
		if existing.ID == subsection.ID {
			return nil
		}
	}
	if subsection.Content == nil {
		subsection.Content = map[string]Term{}
	}
	section.Subsections = append(section.Subsections, subsection)
	return a.save()
}

// PutTerm inserts or overwrites a term inside a subsection.
func (a *JSONAccessor) PutTerm(sectionID, subsectionID, termID string, term Term) error {
	if term.Term == "" {
		return fmt.Errorf("%w: term name is required", ErrInvalidTerm)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	section, err := a.findSection(sectionID)
	if err != nil {
		return err
	}
	for _, subsection := range section.Subsections {
		if subsection.ID == subsectionID {
			if subsection.Content == nil {
				subsection.Content = map[string]Term{}
			}
			subsection.Content[termID] = term
			return a.save()
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrSubsectionNotFound, sectionID, subsectionID)
}

// Close persists any pending state. The JSON accessor saves eagerly, so
// this only exists to satisfy the Accessor contract.
func (a *JSONAccessor) Close() error {
	return nil
}
