// Package wire holds the JSON shapes of the "text in, vector out" protocol
// shared by the HTTP service, the stdin worker and the embedding service client.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoText is reported when a request carries no usable text.
var ErrNoText = errors.New("No text provided") //nolint:staticcheck // wire message, kept verbatim

// Text is either a single string or a list of strings.
type Text struct {
	Values []string
	Batch  bool
}

// Single wraps one text.
func Single(s string) Text { return Text{Values: []string{s}} }

// Many wraps a list of texts.
func Many(ss []string) Text { return Text{Values: ss, Batch: true} }

// UnmarshalJSON accepts a JSON string or an array of strings.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Text{}
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var many []string
		if err := json.Unmarshal(data, &many); err != nil {
			return errors.New("text must be a string or a list of strings")
		}
		*t = Many(many)
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return errors.New("text must be a string or a list of strings")
	}
	*t = Single(one)
	return nil
}

// MarshalJSON writes a string for single texts and an array for batches.
func (t Text) MarshalJSON() ([]byte, error) {
	if t.Batch {
		if t.Values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(t.Values)
	}
	if len(t.Values) == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Values[0])
}

// Empty reports whether there is nothing to embed: no values or only blank ones.
func (t Text) Empty() bool {
	for _, v := range t.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Validate rejects requests without text or with a blank entry.
func (t Text) Validate() error {
	if len(t.Values) == 0 {
		return ErrNoText
	}
	for _, v := range t.Values {
		if strings.TrimSpace(v) == "" {
			return ErrNoText
		}
	}
	return nil
}

// EmbedRequest is the body of POST /embed and one line of worker input.
type EmbedRequest struct {
	Text Text `json:"text"`
}

// EmbedResponse carries exactly one of Embedding, Embeddings or Error.
type EmbedResponse struct {
	Embedding  []float32   `json:"embedding,omitempty"`
	Embeddings [][]float32 `json:"embeddings,omitempty"`
	Error      string      `json:"error,omitempty"`
	Code       string      `json:"code,omitempty"`
}
