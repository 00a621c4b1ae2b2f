package classify

import (
	"testing"

	"threatharvest/core"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		categories []string
		text       string
		iocs       core.IOCSet
		want       int
	}{
		{
			name: "base score with no signals",
			text: "routine advisory",
			want: 5,
		},
		{
			name:       "high severity category adds one",
			categories: []string{"ransomware"},
			text:       "ransomware observed",
			want:       6,
		},
		{
			name:       "multiple high severity categories still add one",
			categories: []string{"ransomware", "apt", "zero_day", "data_breach"},
			text:       "combined campaign",
			want:       6,
		},
		{
			name: "urgency keyword adds one",
			text: "CRITICAL advisory issued",
			want: 6,
		},
		{
			name: "russian urgency keyword adds one",
			text: "срочный бюллетень безопасности",
			want: 6,
		},
		{
			name: "one ioc adds nothing",
			text: "single indicator",
			iocs: core.IOCSet{core.IOCTypeIP: {"10.0.0.1"}},
			want: 5,
		},
		{
			name: "two iocs add one",
			text: "two indicators",
			iocs: core.IOCSet{core.IOCTypeIP: {"10.0.0.1", "10.0.0.2"}},
			want: 6,
		},
		{
			name: "ioc bonus caps at two",
			text: "many indicators",
			iocs: core.IOCSet{
				core.IOCTypeIP:   {"10.0.0.1", "10.0.0.2", "10.0.0.3"},
				core.IOCTypeHash: {"d41d8cd98f00b204e9800998ecf8427e", "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
				core.IOCTypeCVE:  {"CVE-2024-0001", "CVE-2024-0002", "CVE-2024-0003"},
			},
			want: 7,
		},
		{
			name:       "all bonuses stack",
			categories: []string{"zero_day", "vulnerability"},
			text:       "critical zero-day under exploitation",
			iocs: core.IOCSet{
				core.IOCTypeCVE: {"CVE-2024-0001", "CVE-2024-0002", "CVE-2024-0003", "CVE-2024-0004"},
			},
			want: 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.categories, tt.text, tt.iocs))
		})
	}
}

func TestScore_Bounds(t *testing.T) {
	// Every combination of signals stays inside [1,10].
	texts := []string{"", "critical urgent zero-day", "plain"}
	categorySets := [][]string{nil, {"ransomware"}, {"zero_day", "apt", "ransomware", "data_breach"}}
	iocSets := []core.IOCSet{nil, {core.IOCTypeIP: {"1.1.1.1", "2.2.2.2", "3.3.3.3", "4.4.4.4", "5.5.5.5", "6.6.6.6"}}}

	for _, text := range texts {
		for _, categories := range categorySets {
			for _, iocs := range iocSets {
				score := Score(categories, text, iocs)
				assert.GreaterOrEqual(t, score, 1)
				assert.LessOrEqual(t, score, 10)
			}
		}
	}
}

func TestScore_Monotonicity(t *testing.T) {
	base := Score(nil, "sql injection found in web application", nil)
	boosted := Score([]string{"ransomware"}, "critical sql injection found in web application", nil)
	assert.GreaterOrEqual(t, boosted, base)
}
