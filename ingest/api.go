package ingest

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"strings"

	"threatharvest/config"
	"threatharvest/core"
	"threatharvest/metrics"

	"go.uber.org/zap"
)

// =============================================================================
// API Source Adapter
// =============================================================================

// APISource fetches records from a REST endpoint returning JSON or XML.
type APISource struct {
	baseSource
}

// NewAPISource creates an API adapter for one configured source
func NewAPISource(name string, cfg config.SourceConfig, opts FetchOptions, logger *zap.SugaredLogger) (*APISource, error) {
	return &APISource{
		baseSource: newBaseSource(name, core.SourceTypeAPI, cfg, opts, logger),
	}, nil
}

// Fetch retrieves and normalizes one batch of records. Transient network
// failures are retried internally; an exhausted or malformed source
// yields an empty batch.
func (s *APISource) Fetch(ctx context.Context) []core.RawRecord {
	body, err := s.fetchWithRetry(ctx)
	if err != nil {
		metrics.FetchFailures.WithLabelValues(s.name).Inc()
		return nil
	}

	var records []core.RawRecord
	switch s.cfg.ResponseFormat {
	case "xml":
		records = s.extractXML(body)
	default:
		records = s.extractJSON(body)
	}

	metrics.RecordsFetched.WithLabelValues(s.name).Add(float64(len(records)))
	return records
}

// extractJSON locates the record array behind the configured data path
// and maps each item onto the canonical record shape.
func (s *APISource) extractJSON(body []byte) []core.RawRecord {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		s.logger.Warnw("Invalid JSON response", "source", s.name, "error", err)
		return nil
	}

	if s.cfg.DataPath != "" {
		located, err := traverseDataPath(data, s.cfg.DataPath)
		if err != nil {
			s.logger.Warnw("Data path not found in response",
				"source", s.name, "data_path", s.cfg.DataPath, "error", err)
			return nil
		}
		data = located
	}

	items, ok := data.([]interface{})
	if !ok {
		s.logger.Warnw("Expected a record array in response", "source", s.name)
		return nil
	}

	titleField := s.cfg.TitleField
	if titleField == "" {
		titleField = defaultTitleField
	}
	descField := s.cfg.DescField
	if descField == "" {
		descField = defaultDescField
	}
	dateField := s.cfg.DateField
	if dateField == "" {
		dateField = defaultDateField
	}
	linkField := s.cfg.LinkField
	if linkField == "" {
		linkField = defaultLinkField
	}

	records := make([]core.RawRecord, 0, len(items))
	for _, item := range items {
		title := lookupField(item, titleField)
		description := lookupField(item, descField)

		raw, _ := json.Marshal(item)
		records = append(records, core.RawRecord{
			ID:          core.ContentID(title, description),
			Source:      s.name,
			SourceType:  core.SourceTypeAPI,
			Title:       title,
			Description: description,
			Published:   normalizePublished(lookupField(item, dateField), s.logger),
			Link:        lookupField(item, linkField),
			RawData:     string(raw),
		})
	}
	return records
}

// =============================================================================
// XML Extraction
// =============================================================================

// xmlNode is a generic XML tree used to locate item elements without a
// response-specific schema.
type xmlNode struct {
	XMLName xml.Name
	Content string    `xml:",chardata"`
	Nodes   []xmlNode `xml:",any"`
}

// extractXML locates item elements via the configured items path under an
// optional namespace and maps their child elements to the record shape.
func (s *APISource) extractXML(body []byte) []core.RawRecord {
	var root xmlNode
	if err := xml.Unmarshal(body, &root); err != nil {
		s.logger.Warnw("Invalid XML response", "source", s.name, "error", err)
		return nil
	}

	itemsPath := s.cfg.ItemsPath
	if itemsPath == "" {
		itemsPath = "item"
	}
	// Only the final path segment names the item element; ancestors are
	// located by recursive descent.
	segments := strings.Split(itemsPath, "/")
	itemTag := segments[len(segments)-1]

	var items []xmlNode
	collectElements(root, itemTag, s.cfg.Namespace, &items)

	titleField := s.cfg.TitleField
	if titleField == "" {
		titleField = "title"
	}
	descField := s.cfg.DescField
	if descField == "" {
		descField = "description"
	}
	dateField := s.cfg.DateField
	if dateField == "" {
		dateField = "pubDate"
	}
	linkField := s.cfg.LinkField
	if linkField == "" {
		linkField = "link"
	}

	records := make([]core.RawRecord, 0, len(items))
	for _, item := range items {
		title := childText(item, titleField, s.cfg.Namespace)
		description := childText(item, descField, s.cfg.Namespace)

		raw, _ := xml.Marshal(item)
		records = append(records, core.RawRecord{
			ID:          core.ContentID(title, description),
			Source:      s.name,
			SourceType:  core.SourceTypeAPI,
			Title:       title,
			Description: description,
			Published:   normalizePublished(childText(item, dateField, s.cfg.Namespace), s.logger),
			Link:        childText(item, linkField, s.cfg.Namespace),
			RawData:     string(raw),
		})
	}
	return records
}

// collectElements walks the tree gathering elements with the given local
// name. When a namespace is configured, only elements in that namespace
// match.
func collectElements(node xmlNode, local, namespace string, out *[]xmlNode) {
	if node.XMLName.Local == local && (namespace == "" || node.XMLName.Space == namespace) {
		*out = append(*out, node)
		return
	}
	for _, child := range node.Nodes {
		collectElements(child, local, namespace, out)
	}
}

// childText returns the trimmed text of the first direct child with the
// given local name, or "".
func childText(node xmlNode, local, namespace string) string {
	for _, child := range node.Nodes {
		if child.XMLName.Local == local && (namespace == "" || child.XMLName.Space == namespace) {
			return strings.TrimSpace(child.Content)
		}
	}
	return ""
}
