package pipeline

import (
	"context"
	"errors"
	"strings"

	"vidscribe/internal/language"
	"vidscribe/internal/services/llm"
)

var errEmptyGeneration = errors.New("generation returned no text")

// FallbackFunc produces replacement text after a failed generation. cause is
// the generation error.
type FallbackFunc func(cause error) string

// GenerateOrFallback asks gen for req and substitutes fallback(cause) when the
// call fails or returns only whitespace. The returned error is non-nil only
// when ctx is done; the bool reports whether the fallback was used.
func GenerateOrFallback(ctx context.Context, gen llm.Generator, req llm.Request, fallback FallbackFunc) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var cause error
	if gen == nil {
		cause = errors.New("no generation backend configured")
	} else {
		out, err := gen.Generate(ctx, req)
		switch {
		case ctx.Err() != nil:
			return "", false, ctx.Err()
		case err != nil:
			cause = err
		case strings.TrimSpace(out) == "":
			cause = errEmptyGeneration
		default:
			return strings.TrimSpace(out), false, nil
		}
	}
	return fallback(cause), true, nil
}

// ShouldTranslate reports whether text detected as source must be translated
// to reach target. Empty codes, equal codes and variants of one base language
// (zh and zh-tw, en and en-GB) need no translation.
func ShouldTranslate(source, target string) bool {
	source, target = language.Normalize(source), language.Normalize(target)
	if source == "" || target == "" {
		return false
	}
	if source == target {
		return false
	}
	return !language.Same(source, target)
}
