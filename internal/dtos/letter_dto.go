package dtos

import (
	"strings"
	"time"
)

// Generation modes.
const (
	ModeGrounded = "grounded"
	ModePreview  = "preview"
)

// Normalization limits for letter constraints.
const (
	maxToneLen     = 40
	maxEmphasisLen = 200
	maxKeywords    = 20
	maxKeywordLen  = 40
)

// LetterConstraints are optional style constraints on a generated letter.
type LetterConstraints struct {
	Tone            *string  `json:"tone"`
	Emphasis        *string  `json:"emphasis"`
	KeywordsInclude []string `json:"keywordsInclude"`
	KeywordsAvoid   []string `json:"keywordsAvoid"`
}

// Normalize returns a cleaned copy: tone and emphasis trimmed and length
// capped (nil when blank), keyword lists trimmed, de-blanked and capped.
// Safe to call on a nil receiver.
func (c *LetterConstraints) Normalize() *LetterConstraints {
	if c == nil {
		return nil
	}
	return &LetterConstraints{
		Tone:            normalizeText(c.Tone, maxToneLen),
		Emphasis:        normalizeText(c.Emphasis, maxEmphasisLen),
		KeywordsInclude: normalizeKeywords(c.KeywordsInclude),
		KeywordsAvoid:   normalizeKeywords(c.KeywordsAvoid),
	}
}

func normalizeText(s *string, max int) *string {
	if s == nil {
		return nil
	}
	v := truncateRunes(strings.TrimSpace(*s), max)
	if v == "" {
		return nil
	}
	return &v
}

func normalizeKeywords(in []string) []string {
	var out []string
	for _, kw := range in {
		kw = truncateRunes(strings.TrimSpace(kw), maxKeywordLen)
		if kw == "" {
			continue
		}
		out = append(out, kw)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// GenerateLetterRequest is the inbound generation request body.
type GenerateLetterRequest struct {
	ApplicationID string             `json:"applicationId" binding:"required"`
	Mode          string             `json:"mode"`
	Constraints   *LetterConstraints `json:"constraints"`
}

// SubmitLetterRequest saves letter text as a submitted version.
type SubmitLetterRequest struct {
	Content      string     `json:"content" binding:"required"`
	SubmittedVia *string    `json:"submittedVia"`
	Notes        *string    `json:"submissionNotes"`
	SubmittedAt  *time.Time `json:"submittedAt"`
}

// SubmissionPatchRequest updates the annotation fields of a submitted
// version. Content is deliberately not representable here; the update path is
// built from this allow-list so a "content" key in the raw body is dropped at
// decode time.
type SubmissionPatchRequest struct {
	SubmittedVia *string    `json:"submittedVia"`
	Notes        *string    `json:"submissionNotes"`
	SubmittedAt  *time.Time `json:"submittedAt"`
}

// SSE payloads for the generation stream.

type DeltaPayload struct {
	Content string `json:"content"`
}

type DonePayload struct {
	DraftID       string `json:"draftId"`
	Kind          string `json:"kind"`
	ApplicationID string `json:"applicationId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
