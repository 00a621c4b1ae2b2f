package classify

import (
	"testing"

	"threatharvest/core"

	"github.com/stretchr/testify/assert"
)

func TestExtractIOCs(t *testing.T) {
	c := newTestClassifier(t)

	text := "C2 at 192.168.10.5 serving from badhost.evil-domain.net, " +
		"payload http://badhost.evil-domain.net/drop.php?id=1, " +
		"contact operator@evil-domain.net, " +
		"sample d41d8cd98f00b204e9800998ecf8427e exploits CVE-2021-44228"

	iocs := c.ExtractIOCs(text)

	assert.Equal(t, []string{"192.168.10.5"}, iocs[core.IOCTypeIP])
	assert.Contains(t, iocs[core.IOCTypeDomain], "badhost.evil-domain.net")
	assert.Equal(t, []string{"http://badhost.evil-domain.net/drop.php?id=1"}, iocs[core.IOCTypeURL])
	assert.Equal(t, []string{"operator@evil-domain.net"}, iocs[core.IOCTypeEmail])
	assert.Equal(t, []string{"d41d8cd98f00b204e9800998ecf8427e"}, iocs[core.IOCTypeHash])
	assert.Equal(t, []string{"CVE-2021-44228"}, iocs[core.IOCTypeCVE])
}

func TestExtractIOCs_Deduplicates(t *testing.T) {
	c := newTestClassifier(t)

	iocs := c.ExtractIOCs("seen at 10.0.0.1 and again at 10.0.0.1, also CVE-2020-0601 and cve-2020-0601")
	assert.Equal(t, []string{"10.0.0.1"}, iocs[core.IOCTypeIP])
	assert.Equal(t, []string{"CVE-2020-0601"}, iocs[core.IOCTypeCVE])
}

func TestExtractIOCs_CVENormalizedToUpperCase(t *testing.T) {
	c := newTestClassifier(t)

	iocs := c.ExtractIOCs("critical sql injection cve-2021-1234 under active exploitation")
	assert.Equal(t, []string{"CVE-2021-1234"}, iocs[core.IOCTypeCVE])
}

func TestExtractIOCs_DomainDenylist(t *testing.T) {
	c := newTestClassifier(t)

	iocs := c.ExtractIOCs("redirects from google.com and Example.com to malware-site.ru")
	assert.Equal(t, []string{"malware-site.ru"}, iocs[core.IOCTypeDomain])
}

func TestExtractIOCs_HashLengths(t *testing.T) {
	c := newTestClassifier(t)

	md5Hash := "d41d8cd98f00b204e9800998ecf8427e"
	sha1Hash := "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	sha256Hash := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	iocs := c.ExtractIOCs("hashes: " + md5Hash + " " + sha1Hash + " " + sha256Hash)
	assert.ElementsMatch(t, []string{md5Hash, sha1Hash, sha256Hash}, iocs[core.IOCTypeHash])
}

func TestExtractIOCs_EmptyText(t *testing.T) {
	c := newTestClassifier(t)

	iocs := c.ExtractIOCs("")
	assert.Zero(t, iocs.Count())
}
