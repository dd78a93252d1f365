package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// asMirrorError returns the first MirrorError in the chain, or wraps err as internal.
func asMirrorError(err error) *MirrorError {
	var me *MirrorError
	if stderrors.As(err, &me) {
		return me
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	me := asMirrorError(err)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", me.Message))

	// Details in stable order so output is diffable
	keys := make([]string, 0, len(me.Details))
	for k := range me.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %s: %s\n", k, me.Details[k]))
	}

	if me.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", me.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", me.Code))

	return sb.String()
}

// FormatForLog formats an error for structured logging.
// Returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	var me *MirrorError
	if !stderrors.As(err, &me) {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": me.Code,
		"message":    me.Message,
		"category":   string(me.Category),
		"severity":   string(me.Severity),
		"retryable":  me.Retryable,
	}
	if me.Cause != nil {
		result["cause"] = me.Cause.Error()
	}
	for k, v := range me.Details {
		result["detail_"+k] = v
	}

	return result
}
