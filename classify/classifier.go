// Package classify implements keyword-dictionary threat classification,
// regex-based IOC extraction, and deterministic severity scoring over
// normalized records.
package classify

import (
	"fmt"
	"os"
	"strings"

	"threatharvest/core"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Built-in Keyword Dictionaries
// =============================================================================

// builtinCategoryKeywords maps every threat category to the substring
// keywords that tag it. Keys must stay within core.ThreatCategories;
// matching iterates that vocabulary so the emitted order is stable.
var builtinCategoryKeywords = map[string][]string{
	"malware":            {"malware", "вирус", "троян", "червь", "backdoor", "trojan", "worm", "botnet", "stealer", "spyware"},
	"phishing":           {"phishing", "фишинг", "spoofing", "подделка", "credential harvest", "fake login"},
	"ransomware":         {"ransomware", "шифровальщик", "вымогатель", "lockbit", "ransom"},
	"ddos":               {"ddos", "denial of service", "отказ в обслуживании", "amplification", "flood attack"},
	"vulnerability":      {"vulnerability", "уязвимость", "exploit", "эксплойт", "cve-", "sql injection", "remote code execution", "buffer overflow", "privilege escalation"},
	"data_breach":        {"data breach", "утечка данных", "leaked", "exfiltration", "stolen records"},
	"apt":                {"apt", "advanced persistent", "state actor", "nation-state", "целевая атака"},
	"zero_day":           {"zero-day", "zero day", "0-day", "нулевой день", "нулевого дня"},
	"social_engineering": {"social engineering", "социальная инженерия", "pretexting", "baiting"},
	"mitm":               {"man-in-the-middle", "mitm", "перехват трафика", "session hijack"},
	"cryptojacking":      {"cryptojacking", "криптоджекинг", "coin miner", "скрытый майнинг", "cryptomining"},
	"iot_threats":        {"iot", "smart device", "умные устройства", "router", "firmware", "camera"},
	"insider_threat":     {"insider", "инсайдер", "внутренняя угроза", "disgruntled employee"},
	"supply_chain":       {"supply chain", "цепочка поставок", "dependency confusion", "compromised package", "third-party compromise"},
}

// builtinVectorKeywords maps every attack vector to its keywords. Keys
// must stay within core.AttackVectors.
var builtinVectorKeywords = map[string][]string{
	"email":       {"email", "почта", "спам", "письмо", "attachment", "вложение"},
	"web":         {"web", "веб", "сайт", "браузер", "http", "website", "javascript"},
	"network":     {"network", "сеть", "сетевой", "протокол", "port scan", "lateral movement"},
	"usb":         {"usb", "флэш", "накопитель", "removable", "flash drive"},
	"social":      {"social media", "соцсет", "telegram", "messenger", "чат"},
	"wireless":    {"wifi", "wi-fi", "bluetooth", "беспроводн", "wireless"},
	"cloud":       {"cloud", "облако", "облачн", "s3 bucket", "saas"},
	"physical":    {"physical access", "физический доступ", "badge", "tailgating"},
	"mobile":      {"mobile", "мобильн", "android", "ios", "smartphone", "смартфон"},
	"api":         {"api", "rest endpoint", "graphql", "token leak"},
	"third_party": {"third party", "третья сторона", "vendor", "подрядчик", "contractor"},
}

// =============================================================================
// Classifier
// =============================================================================

// Classifier tags lower-cased record text with threat categories and
// attack vectors by substring keyword matching, and extracts IOCs. It is
// a pure function of its input after construction: dictionaries are
// loaded once and never mutated.
type Classifier struct {
	categoryKeywords map[string][]string
	vectorKeywords   map[string][]string
	logger           *zap.SugaredLogger
}

// Options configures optional external keyword dictionaries. Empty paths
// select the built-in dictionaries.
type Options struct {
	CategoryKeywordsFile string
	VectorKeywordsFile   string
}

// NewClassifier creates a classifier, loading keyword dictionaries from
// the configured YAML files when present. An unreadable or malformed
// dictionary file is a configuration error.
func NewClassifier(opts Options, logger *zap.SugaredLogger) (*Classifier, error) {
	categories, err := loadKeywords(opts.CategoryKeywordsFile, builtinCategoryKeywords, core.ThreatCategories)
	if err != nil {
		return nil, fmt.Errorf("category keywords: %w", err)
	}
	vectors, err := loadKeywords(opts.VectorKeywordsFile, builtinVectorKeywords, core.AttackVectors)
	if err != nil {
		return nil, fmt.Errorf("vector keywords: %w", err)
	}
	return &Classifier{
		categoryKeywords: categories,
		vectorKeywords:   vectors,
		logger:           logger,
	}, nil
}

// loadKeywords reads a YAML dictionary mapping labels to keyword lists,
// rejecting labels outside the closed vocabulary. An empty path selects
// the built-in dictionary.
func loadKeywords(path string, builtin map[string][]string, vocabulary []string) (map[string][]string, error) {
	if path == "" {
		return builtin, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword file %s: %w", path, err)
	}

	var loaded map[string][]string
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse keyword file %s: %w", path, err)
	}

	known := make(map[string]bool, len(vocabulary))
	for _, label := range vocabulary {
		known[label] = true
	}
	for label := range loaded {
		if !known[label] {
			return nil, fmt.Errorf("keyword file %s: unknown label %q", path, label)
		}
	}
	return loaded, nil
}

// Classify tags the lower-cased text with every category and vector
// whose keyword list contains at least one substring match. Scanning a
// label's keywords stops at the first hit; all labels are checked. The
// returned slices follow vocabulary declaration order, so the first
// category is the record's primary category.
func (c *Classifier) Classify(text string) (categories, vectors []string) {
	lowered := strings.ToLower(text)
	return matchLabels(lowered, core.ThreatCategories, c.categoryKeywords),
		matchLabels(lowered, core.AttackVectors, c.vectorKeywords)
}

func matchLabels(lowered string, vocabulary []string, keywords map[string][]string) []string {
	var matched []string
	for _, label := range vocabulary {
		for _, keyword := range keywords[label] {
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				matched = append(matched, label)
				break
			}
		}
	}
	return matched
}
