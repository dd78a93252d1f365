package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatForCLI_IncludesDetailsHintAndCode(t *testing.T) {
	// Given: a lock contention error
	err := LockContentionError("/data/index/Orders")

	// When: formatting for CLI
	result := FormatForCLI(err)

	// Then: message, detail, hint and code are present
	assert.Contains(t, result, "Error: index /data/index/Orders is locked")
	assert.Contains(t, result, "path: /data/index/Orders")
	assert.Contains(t, result, "Hint:")
	assert.Contains(t, result, "Code: ERR_207_LOCK_CONTENTION")
}

func TestFormatForCLI_StandardErrorIsInternal(t *testing.T) {
	result := FormatForCLI(errors.New("boom"))

	assert.Contains(t, result, "Error: boom")
	assert.Contains(t, result, ErrCodeInternal)
}

func TestFormatForCLI_NilError(t *testing.T) {
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatForLog_FlattensDetails(t *testing.T) {
	fields := FormatForLog(EncodingError("Price", "abc", nil))

	assert.Equal(t, ErrCodeEncoding, fields["error_code"])
	assert.Equal(t, "Price", fields["detail_field"])
	assert.Equal(t, "abc", fields["detail_value"])
}

func TestFormatForLog_StandardError(t *testing.T) {
	fields := FormatForLog(errors.New("plain"))

	assert.Equal(t, map[string]any{"error": "plain"}, fields)
}
