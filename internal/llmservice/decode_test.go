package llmservice

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_FencedBlockWinsOverProse(t *testing.T) {
	resp := "Here is the analysis {not json}.\n\n```json\n{\"ESG Metrics\": {\"Environmental\": {\"Energy Use\": \"40% renewable\"}}}\n```\n\nLet me know {if} you need more."
	d := Decode(resp, false)

	require.False(t, d.Malformed())
	metrics, ok := d.Object["ESG Metrics"].(map[string]any)
	require.True(t, ok)
	env := metrics["Environmental"].(map[string]any)
	assert.Equal(t, "40% renewable", env["Energy Use"])
}

func TestDecode_LooseFences(t *testing.T) {
	cases := map[string]string{
		"opened after prose":  "Here is the analysis: ```json\n{\"ESG Metrics\": {\"Social\": {\"Human Rights\": \"Audited\"}}}\n```",
		"single line":         "```json {\"ESG Metrics\": {\"Social\": {\"Human Rights\": \"Audited\"}}} ```",
		"closed on json line": "```json\n{\"ESG Metrics\": {\"Social\": {\"Human Rights\": \"Audited\"}}}```",
		"prose on both sides": "Sure {see below}: ```json\n{\"ESG Metrics\": {\"Social\": {\"Human Rights\": \"Audited\"}}}``` Hope {this} helps.",
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			d := Decode(resp, false)
			require.False(t, d.Malformed())
			metrics := d.Object["ESG Metrics"].(map[string]any)
			assert.Equal(t, "Audited", metrics["Social"].(map[string]any)["Human Rights"])
		})
	}
}

func TestDecode_WholeTextFallback(t *testing.T) {
	d := Decode(`  {"a": "b"}  `, false)
	require.False(t, d.Malformed())
	assert.Equal(t, "b", d.Object["a"])
}

func TestDecode_UntaggedFence(t *testing.T) {
	d := Decode("```\n{\"a\": 1}\n```", false)
	require.False(t, d.Malformed())
	assert.Equal(t, float64(1), d.Object["a"])
}

func TestDecode_StripsThinking(t *testing.T) {
	resp := "<think>\nmaybe {\"x\": 1}\n</think>\n{\"a\": \"b\"}"
	d := Decode(resp, false)
	require.False(t, d.Malformed())
	assert.Equal(t, map[string]any{"a": "b"}, d.Object)
	assert.NotContains(t, d.Raw, "<think>")
}

func TestDecode_Malformed(t *testing.T) {
	resp := "Sorry, the text does not contain ESG data."
	d := Decode(resp, false)
	assert.True(t, d.Malformed())
	assert.Equal(t, resp, d.Raw)

	// a JSON array is not a record
	d = Decode("[1, 2]", false)
	assert.True(t, d.Malformed())
}

func TestDecode_Repair(t *testing.T) {
	broken := "```json\n{\"a\": \"b\",}\n```"
	assert.True(t, Decode(broken, false).Malformed())

	d := Decode(broken, true)
	require.False(t, d.Malformed())
	assert.Equal(t, "b", d.Object["a"])
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), true},
		{timeoutErr{}, true},
		{errors.New("API returned unexpected status code: 429: rate limit exceeded"), true},
		{errors.New("API returned unexpected status code: 500"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("API returned unexpected status code: 400: bad request"), false},
		{errors.New("API returned unexpected status code: 400: max_tokens: 2000 > context budget 1500"), false},
		{errors.New("API returned unexpected status code: 404: model timeout-v2 not found"), false},
		{errors.New("API returned unexpected status code: 503: upstream overloaded"), true},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("invalid character 'x' thereof"), false},
		{ErrEmptyResponse, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsTransient(tc.err), "%v", tc.err)
	}
}
