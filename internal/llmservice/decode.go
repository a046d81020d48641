package llmservice

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"esg-pipeline/internal/models"
)

var (
	thinkTagRegex  = regexp.MustCompile(models.ThinkTag)
	inlineFenceRgx = regexp.MustCompile(models.InlineJSONFence)
)

// Decoded is the outcome of parsing a model response: either a JSON object or the
// cleaned raw text when no object could be recovered.
type Decoded struct {
	Object map[string]any
	Raw    string
}

// Malformed reports whether the response carried no usable JSON object.
func (d Decoded) Malformed() bool {
	return d.Object == nil
}

// StripThinking removes reasoning blocks emitted by deepseek style models.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkTagRegex.ReplaceAllString(s, ""))
}

// Decode parses a model response. A fenced ```json block wins over surrounding prose;
// fences the markdown parser misses (opened mid-line, on one line, or closed on the JSON
// line) are matched loosely. Without a fence the whole response is parsed. When repair is
// set, syntactically broken JSON is passed through jsonrepair before giving up.
func Decode(response string, repair bool) Decoded {
	cleaned := StripThinking(response)
	candidate := cleaned
	if fenced, ok := fencedJSON(cleaned); ok {
		if obj, ok := parseObject(fenced); ok {
			return Decoded{Object: obj, Raw: cleaned}
		}
		candidate = fenced
	}
	if m := inlineFenceRgx.FindStringSubmatch(cleaned); m != nil {
		if obj, ok := parseObject(m[1]); ok {
			return Decoded{Object: obj, Raw: cleaned}
		}
	}

	if obj, ok := parseObject(candidate); ok {
		return Decoded{Object: obj, Raw: cleaned}
	}

	if repair {
		fixed, err := jsonrepair.JSONRepair(candidate)
		if err == nil {
			if obj, ok := parseObject(fixed); ok {
				log.Debug().Msg("Recovered malformed JSON response")
				return Decoded{Object: obj, Raw: cleaned}
			}
		}
	}

	return Decoded{Raw: cleaned}
}

func parseObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// fencedJSON walks the markdown AST and returns the first fenced block tagged json.
// An untagged fence whose body starts with '{' is accepted when no tagged one exists.
func fencedJSON(s string) (string, bool) {
	source := []byte(s)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var tagged, untagged string
	var foundTagged, foundUntagged bool
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		body := blockBody(block, source)
		lang := strings.ToLower(string(block.Language(source)))
		switch {
		case lang == "json" && !foundTagged:
			tagged, foundTagged = body, true
			return ast.WalkStop, nil
		case !foundUntagged && strings.HasPrefix(strings.TrimSpace(body), "{"):
			untagged, foundUntagged = body, true
		}
		return ast.WalkSkipChildren, nil
	})

	if foundTagged {
		return tagged, true
	}
	return untagged, foundUntagged
}

func blockBody(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}
