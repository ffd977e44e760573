package bottle

import (
	"fmt"
	"unicode/utf8"
)

const (
	DefaultMaxTextLength = 500
	DefaultMaxImages     = 1
)

// Limits bounds what a single bottle may carry.
type Limits struct {
	MaxTextLength int
	MaxImages     int
}

func DefaultLimits() Limits {
	return Limits{MaxTextLength: DefaultMaxTextLength, MaxImages: DefaultMaxImages}
}

// ValidationError reports which limit a draft exceeded.
type ValidationError struct {
	Field string // "content" or "images"
	Limit int
	Got   int
}

func (e *ValidationError) Error() string {
	switch e.Field {
	case "content":
		return fmt.Sprintf("content exceeds length limit (max %d chars, got %d)", e.Limit, e.Got)
	case "images":
		return fmt.Sprintf("too many images (max %d, got %d)", e.Limit, e.Got)
	default:
		return fmt.Sprintf("%s exceeds limit %d", e.Field, e.Limit)
	}
}

// Check validates content length (in runes) and image count. Text is checked
// first.
func (l Limits) Check(content string, images []Image) error {
	if n := utf8.RuneCountInString(content); n > l.MaxTextLength {
		return &ValidationError{Field: "content", Limit: l.MaxTextLength, Got: n}
	}
	if len(images) > l.MaxImages {
		return &ValidationError{Field: "images", Limit: l.MaxImages, Got: len(images)}
	}
	return nil
}
