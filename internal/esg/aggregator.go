package esg

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"esg-pipeline/internal/models"
)

var fragmentSplitRegex = regexp.MustCompile(models.FragmentSplitRegex)

// Aggregate merges chunk results into per-category fragment lists. Failed and malformed
// results are ignored, as are records without the top level metrics key. Fragments keep
// first-seen order and are deduplicated by exact match after trimming.
func Aggregate(results []ChunkResult) models.AggregatedMetrics {
	agg := models.NewAggregatedMetrics()
	seen := make(map[models.Pillar]map[string]map[string]struct{}, len(models.Pillars))
	for _, p := range models.Pillars {
		seen[p] = make(map[string]map[string]struct{})
	}

	for _, r := range results {
		if r.Failed() || r.Decoded.Malformed() {
			continue
		}
		metrics, ok := r.Decoded.Object[models.MetricsKey].(map[string]any)
		if !ok {
			continue
		}

		for _, p := range models.Pillars {
			pillarData, _ := metrics[string(p)].(map[string]any)
			for _, cat := range models.Categories(p) {
				value := strings.TrimSpace(valueText(pillarData[cat]))
				if value == "" || isNotMentioned(value) {
					continue
				}
				for _, frag := range fragmentSplitRegex.Split(value, -1) {
					frag = strings.TrimSpace(frag)
					if frag == "" || isNotMentioned(frag) {
						continue
					}
					if _, dup := seen[p][cat][frag]; dup {
						continue
					}
					if seen[p][cat] == nil {
						seen[p][cat] = make(map[string]struct{})
					}
					seen[p][cat][frag] = struct{}{}
					agg[p][cat] = append(agg[p][cat], frag)
				}
			}
		}
	}
	return agg
}

func isNotMentioned(s string) bool {
	return strings.EqualFold(s, models.NotMentioned)
}

// valueText coerces a category value into text. Models occasionally return a list of
// points or a number instead of a string.
func valueText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := valueText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case float64, bool:
		return fmt.Sprint(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// PillarContext renders one pillar's fragments as prompt context, one line per category.
func PillarContext(agg models.AggregatedMetrics, p models.Pillar) string {
	var b strings.Builder
	for _, cat := range models.Categories(p) {
		frags := agg[p][cat]
		b.WriteString("- ")
		b.WriteString(cat)
		b.WriteString(": ")
		if len(frags) == 0 {
			b.WriteString(models.NoDataMarker)
		} else {
			b.WriteString(strings.Join(frags, "; "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
