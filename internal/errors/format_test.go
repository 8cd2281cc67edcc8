package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForUser_IncludesSuggestionAndCode(t *testing.T) {
	err := EmptyIndex("index has no chunks")

	out := FormatForUser(err)

	assert.Contains(t, out, "Error: index has no chunks")
	assert.Contains(t, out, "Suggestion: run 'codeqa index'")
	assert.Contains(t, out, "[ERR_404_EMPTY_INDEX]")
}

func TestFormatForUser_PlainErrorPassesThrough(t *testing.T) {
	assert.Equal(t, "boom", FormatForUser(errors.New("boom")))
	assert.Equal(t, "", FormatForUser(nil))
}

func TestFormatForCLI_ConciseLayout(t *testing.T) {
	err := IO("cannot read src/a.py", errors.New("permission denied")).
		WithSuggestion("check file permissions")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: cannot read src/a.py")
	assert.Contains(t, out, "Hint: check file permissions")
	assert.Contains(t, out, "Code: ERR_200_FILE_UNREADABLE")
}

func TestFormatJSON_RoundTripsFields(t *testing.T) {
	err := Completion("completion request failed", errors.New("502 bad gateway")).
		WithDetail("model", "gemini-2.0-flash")

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ERR_311_COMPLETION_FAILED", decoded["code"])
	assert.Equal(t, "PROVIDER", decoded["category"])
	assert.Equal(t, "502 bad gateway", decoded["cause"])
	details := decoded["details"].(map[string]any)
	assert.Equal(t, "gemini-2.0-flash", details["model"])
}

func TestFormatForLog_ProducesSlogAttrs(t *testing.T) {
	err := Embedding("embed batch 3", errors.New("timeout")).
		WithDetail("batch", "3")

	attrs := FormatForLog(err)

	assert.Equal(t, "ERR_310_EMBEDDING_FAILED", attrs["error_code"])
	assert.Equal(t, "timeout", attrs["cause"])
	assert.Equal(t, "3", attrs["detail_batch"])
	assert.Nil(t, FormatForLog(nil))
}
