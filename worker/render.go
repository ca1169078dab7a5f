package worker

import (
	"errors"
	"fmt"
	"strings"
)

// maxErrorBytes bounds the rendered error stored in a job output.
const maxErrorBytes = 4096

// maxCauseDepth bounds how many wrapped causes are rendered.
const maxCauseDepth = 16

const truncatedSuffix = "\n... (truncated)"

// RenderError renders err and its chain of causes, one "Caused by:" line
// per wrapped error, truncated to 4096 bytes.
func RenderError(err error) string {
	if err == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(err.Error())

	queue := unwrap(err)
	for depth := 0; len(queue) > 0 && depth < maxCauseDepth; depth++ {
		cause := queue[0]
		queue = append(queue[1:], unwrap(cause)...)
		fmt.Fprintf(&b, "\nCaused by: %T: %s", cause, cause.Error())
		if b.Len() > maxErrorBytes {
			break
		}
	}

	return truncate(b.String())
}

func unwrap(err error) []error {
	switch u := err.(type) { //nolint:errorlint // inspecting the direct wrapper only
	case interface{ Unwrap() []error }:
		return u.Unwrap()
	default:
		if next := errors.Unwrap(err); next != nil {
			return []error{next}
		}
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= maxErrorBytes {
		return s
	}
	cut := maxErrorBytes - len(truncatedSuffix)
	// Do not split a multi-byte rune.
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncatedSuffix
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
