package classify

import (
	"regexp"
	"strings"

	"threatharvest/core"
)

// =============================================================================
// IOC Extraction
// =============================================================================

// Extraction patterns - compiled once at package init
var (
	ipPattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	domainPattern = regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}\b`)
	urlPattern    = regexp.MustCompile(`https?://(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}(?:/[a-zA-Z0-9\-._~:/?#\[\]@!$&'()*+,;=%]*)?`)
	emailPattern  = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	hashPattern   = regexp.MustCompile(`\b[a-fA-F0-9]{32}\b|\b[a-fA-F0-9]{40}\b|\b[a-fA-F0-9]{64}\b`)
	cvePattern    = regexp.MustCompile(`(?i)CVE-\d{4}-\d{4,}`)
)

// domainDenylist filters common benign domains out of domain matches to
// keep false positives down. Values are compared lower-cased.
var domainDenylist = map[string]bool{
	"example.com":   true,
	"google.com":    true,
	"microsoft.com": true,
	"apple.com":     true,
	"facebook.com":  true,
}

// ExtractIOCs scans the text for indicators of compromise: IPv4
// addresses, domains, URLs, email addresses, hex hash strings of
// MD5/SHA1/SHA256 length, and CVE identifiers. Matches are deduplicated
// per kind; CVE identifiers are normalized to upper case.
func (c *Classifier) ExtractIOCs(text string) core.IOCSet {
	lowered := strings.ToLower(text)

	iocs := core.IOCSet{
		core.IOCTypeIP:     dedupe(ipPattern.FindAllString(lowered, -1)),
		core.IOCTypeDomain: filterDomains(dedupe(domainPattern.FindAllString(lowered, -1))),
		core.IOCTypeURL:    dedupe(urlPattern.FindAllString(lowered, -1)),
		core.IOCTypeEmail:  dedupe(emailPattern.FindAllString(lowered, -1)),
		core.IOCTypeHash:   dedupe(hashPattern.FindAllString(lowered, -1)),
		core.IOCTypeCVE:    dedupe(upperAll(cvePattern.FindAllString(lowered, -1))),
	}
	return iocs
}

// dedupe removes duplicate matches preserving first-seen order.
func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// filterDomains drops denylisted benign domains.
func filterDomains(domains []string) []string {
	if len(domains) == 0 {
		return nil
	}
	out := domains[:0]
	for _, d := range domains {
		if !domainDenylist[strings.ToLower(d)] {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func upperAll(values []string) []string {
	for i, v := range values {
		values[i] = strings.ToUpper(v)
	}
	return values
}
