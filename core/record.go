package core

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// =============================================================================
// Source Types
// =============================================================================

// SourceType identifies the kind of origin a record was fetched from.
type SourceType string

const (
	SourceTypeAPI     SourceType = "api"
	SourceTypeRSS     SourceType = "rss"
	SourceTypeWebpage SourceType = "webpage"
)

// AllSourceTypes returns all valid source types for validation
var AllSourceTypes = []SourceType{SourceTypeAPI, SourceTypeRSS, SourceTypeWebpage}

// IsValid checks if the source type is valid
func (t SourceType) IsValid() bool {
	for _, valid := range AllSourceTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// =============================================================================
// IOC Kinds
// =============================================================================

// IOCType represents the type of indicator of compromise extracted from
// a record's text.
type IOCType string

const (
	IOCTypeIP     IOCType = "ip"
	IOCTypeDomain IOCType = "domain"
	IOCTypeURL    IOCType = "url"
	IOCTypeEmail  IOCType = "email"
	IOCTypeHash   IOCType = "hash" // MD5, SHA1, SHA256
	IOCTypeCVE    IOCType = "cve"
)

// AllIOCTypes returns all valid IOC types. The order is fixed and is also
// the column order used by the storage layer.
var AllIOCTypes = []IOCType{
	IOCTypeIP, IOCTypeDomain, IOCTypeURL, IOCTypeEmail, IOCTypeHash, IOCTypeCVE,
}

// IsValid checks if the IOC type is valid
func (t IOCType) IsValid() bool {
	for _, valid := range AllIOCTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// IOCSet maps an IOC kind to the deduplicated values extracted for it.
type IOCSet map[IOCType][]string

// Count returns the total number of indicator values across all kinds.
func (s IOCSet) Count() int {
	n := 0
	for _, values := range s {
		n += len(values)
	}
	return n
}

// =============================================================================
// Vocabularies
// =============================================================================

// ThreatCategories is the closed vocabulary of threat category labels.
// Declaration order is significant: classifiers emit categories in this
// order, and the first emitted category routes a record during
// knowledge-base integration.
var ThreatCategories = []string{
	"malware", "phishing", "ransomware", "ddos", "vulnerability",
	"data_breach", "apt", "zero_day", "social_engineering", "mitm",
	"cryptojacking", "iot_threats", "insider_threat", "supply_chain",
}

// AttackVectors is the closed vocabulary of attack vector labels, in
// deterministic emission order.
var AttackVectors = []string{
	"email", "web", "network", "usb", "social", "wireless",
	"cloud", "physical", "mobile", "api", "third_party",
}

// =============================================================================
// Records
// =============================================================================

// RawRecord is the normalized output of a source adapter before
// classification. Published is kept as the origin's ISO-8601 string;
// RawData retains the untouched origin payload for audit.
type RawRecord struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	SourceType  SourceType `json:"source_type"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Published   string     `json:"published"`
	Link        string     `json:"link"`
	RawData     string     `json:"raw_data,omitempty"`
}

// ClassifiedRecord extends a RawRecord with classification output.
type ClassifiedRecord struct {
	RawRecord

	ThreatCategories []string  `json:"threat_categories"`
	AttackVectors    []string  `json:"attack_vectors"`
	Indicators       IOCSet    `json:"indicators"`
	Severity         int       `json:"severity"`
	ProcessedAt      time.Time `json:"processed_at"`
	AddedToKB        bool      `json:"added_to_kb"`
}

// PrimaryCategory returns the category used to route the record into a
// knowledge-base subsection, or "" when the record has no categories.
// Categories are stored in vocabulary declaration order, so the first
// entry is deterministic.
func (r *ClassifiedRecord) PrimaryCategory() string {
	if len(r.ThreatCategories) == 0 {
		return ""
	}
	return r.ThreatCategories[0]
}

// ContentID derives the stable deduplication identifier for a record from
// its title and description. Two records with identical title+description
// collapse to the same id regardless of which source produced them.
func ContentID(title, description string) string {
	sum := md5.Sum([]byte(title + description))
	return hex.EncodeToString(sum[:])
}
