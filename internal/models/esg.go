package models

// Pillar is one of the three fixed ESG pillars
type Pillar string

const (
	Environmental Pillar = "Environmental"
	Social        Pillar = "Social"
	Governance    Pillar = "Governance"
)

// Pillars lists the pillars in reporting order.
var Pillars = []Pillar{Environmental, Social, Governance}

// categories per pillar, in prompt order
var categories = map[Pillar][]string{
	Environmental: {
		"Carbon Emissions",
		"Energy Use",
		"Water Usage",
		"Waste Management",
		"Climate Risk Disclosures",
	},
	Social: {
		"Labour Practices",
		"Diversity & Inclusion",
		"Community Impact",
		"Product/Service Responsibility",
		"Human Rights",
	},
	Governance: {
		"Board Composition",
		"Executive Compensation",
		"Transparency",
		"Regulatory Compliance",
		"Ethical Practices",
		"Governance Risk",
	},
}

// Categories returns a copy of the fixed category list for a pillar.
func Categories(p Pillar) []string {
	return append([]string(nil), categories[p]...)
}

// IsCategory reports whether name is one of the pillar's fixed categories.
func IsCategory(p Pillar, name string) bool {
	for _, c := range categories[p] {
		if c == name {
			return true
		}
	}
	return false
}

// Document is one downloaded source with its extracted text.
type Document struct {
	URL  string
	Text string
}

// Chunk is a contiguous slice of the combined document text.
type Chunk struct {
	Index   int
	Content string
}

// AggregatedMetrics maps pillar -> category -> distinct fragments in insertion order.
type AggregatedMetrics map[Pillar]map[string][]string

// NewAggregatedMetrics returns metrics keyed by the full fixed enumeration with empty
// fragment lists.
func NewAggregatedMetrics() AggregatedMetrics {
	agg := make(AggregatedMetrics, len(Pillars))
	for _, p := range Pillars {
		cats := make(map[string][]string, len(categories[p]))
		for _, c := range categories[p] {
			cats[c] = []string{}
		}
		agg[p] = cats
	}
	return agg
}

// Breakdown maps category -> detailed analysis for one pillar.
type Breakdown map[string]string

// IsZero reports a breakdown that was never generated. An empty but non-nil breakdown is
// a generated one and is not zero.
func (b Breakdown) IsZero() bool {
	return b == nil
}

// CompanyAnalysis is the unit persisted per company.
// A nil breakdown means it was not generated.
type CompanyAnalysis struct {
	Company    string
	Summaries  map[Pillar]string
	Breakdowns map[Pillar]Breakdown
}

// Summary returns the pillar summary or "" when missing.
func (a *CompanyAnalysis) Summary(p Pillar) string {
	if a == nil || a.Summaries == nil {
		return ""
	}
	return a.Summaries[p]
}

// Breakdown returns the pillar breakdown or nil when it was not generated.
func (a *CompanyAnalysis) Breakdown(p Pillar) Breakdown {
	if a == nil || a.Breakdowns == nil {
		return nil
	}
	return a.Breakdowns[p]
}

// Resource is one company with the report URLs to analyze.
type Resource struct {
	Company string   `json:"company" yaml:"company"`
	URLs    []string `json:"urls" yaml:"urls"`
}
