package recommend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"animeshelf/internal/validation"
	"animeshelf/models"
)

// ErrMalformedResponse is matched by every *ParseError.
var ErrMalformedResponse = errors.New("malformed recommendation response")

// ParseError reports model output that does not match the expected schema.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedResponse, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedResponse, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

type recommendationPayload struct {
	Recommendations []recommendationItem `json:"recommendations" validate:"required,min=1,dive"`
}

type recommendationItem struct {
	Title  string   `json:"title" validate:"required"`
	Reason string   `json:"reason"`
	Genres []string `json:"genres"`
}

// ParseRecommendations decodes the model's reply. A surrounding Markdown code
// fence is tolerated; anything else that is not the expected object is a
// *ParseError.
func ParseRecommendations(content string) ([]models.Recommendation, error) {
	body := stripCodeFence(content)
	if body == "" {
		return nil, &ParseError{Reason: "empty content"}
	}

	dec := json.NewDecoder(strings.NewReader(body))
	var payload recommendationPayload
	if err := dec.Decode(&payload); err != nil {
		return nil, &ParseError{Reason: "invalid JSON", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Reason: "trailing data after JSON object"}
	}

	for i := range payload.Recommendations {
		payload.Recommendations[i].Title = strings.TrimSpace(payload.Recommendations[i].Title)
	}
	if err := validation.Struct(payload); err != nil {
		return nil, &ParseError{Reason: "schema mismatch", Err: err}
	}

	out := make([]models.Recommendation, 0, len(payload.Recommendations))
	for _, item := range payload.Recommendations {
		out = append(out, models.Recommendation{
			Title:  item.Title,
			Reason: strings.TrimSpace(item.Reason),
			Genres: item.Genres,
		})
	}
	return out, nil
}

func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
