package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/transport/wire"
)

type mockEmbedder struct {
	failOn string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if text == m.failOn {
		return domain.EmbeddingResult{}, fmt.Errorf("model rejected input: %w", domain.ErrEmbedding)
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text)), 1}}, nil
}

func run(t *testing.T, w *Worker, input string) []wire.EmbedResponse {
	t.Helper()
	var out bytes.Buffer
	if err := w.Run(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var responses []wire.EmbedResponse
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var resp wire.EmbedResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("output line %q is not JSON: %v", line, err)
		}
		responses = append(responses, resp)
	}
	return responses
}

func TestWorker_SingleAndBatch(t *testing.T) {
	w := NewWorker(&mockEmbedder{}, zap.NewNop())

	got := run(t, w, `{"text": "abc"}`+"\n"+`{"text": ["a", "bb"]}`+"\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(got))
	}
	if len(got[0].Embedding) != 2 || got[0].Embedding[0] != 3 {
		t.Errorf("unexpected single embedding %v", got[0].Embedding)
	}
	if len(got[1].Embeddings) != 2 || got[1].Embeddings[1][0] != 2 {
		t.Errorf("unexpected batch embeddings %v", got[1].Embeddings)
	}
}

func TestWorker_ErrorsDoNotStopStream(t *testing.T) {
	w := NewWorker(&mockEmbedder{failOn: "bad"}, zap.NewNop())

	input := strings.Join([]string{
		`not json`,
		``,
		`{"text": ""}`,
		`{"text": "bad"}`,
		`{"text": "fine"}`,
	}, "\n")
	got := run(t, w, input)

	if len(got) != 4 {
		t.Fatalf("expected 4 responses (blank line ignored), got %d", len(got))
	}
	if got[0].Code != wire.CodeBadRequest || !strings.HasPrefix(got[0].Error, "Invalid JSON") {
		t.Errorf("malformed line: %+v", got[0])
	}
	if got[1].Error != "No text provided" {
		t.Errorf("empty text: %+v", got[1])
	}
	if got[2].Code != wire.CodeEmbeddingProvider {
		t.Errorf("provider failure: %+v", got[2])
	}
	if got[3].Error != "" || len(got[3].Embedding) != 2 {
		t.Errorf("stream must continue after errors, got %+v", got[3])
	}
}

func TestWorker_CancelledContext(t *testing.T) {
	w := NewWorker(&mockEmbedder{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := w.Run(ctx, strings.NewReader(`{"text": "a"}`+"\n"), &out)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %q", out.String())
	}
}

func TestWorker_EmptyInput(t *testing.T) {
	w := NewWorker(&mockEmbedder{}, zap.NewNop())
	if got := run(t, w, ""); len(got) != 0 {
		t.Errorf("expected no responses, got %d", len(got))
	}
}

func TestWorker_OversizedLineDoesNotStopStream(t *testing.T) {
	w := NewWorker(&mockEmbedder{}, zap.NewNop()).WithMaxLineBytes(32)

	long := `{"text": "` + strings.Repeat("x", 200) + `"}`
	got := run(t, w, `{"text": "abc"}`+"\n"+long+"\n"+`{"text": "fine"}`)

	if len(got) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(got))
	}
	if got[0].Error != "" || got[0].Embedding[0] != 3 {
		t.Errorf("first line: %+v", got[0])
	}
	if got[1].Error != "line too long" || got[1].Code != wire.CodeBadRequest {
		t.Errorf("oversized line: %+v", got[1])
	}
	if got[2].Error != "" || got[2].Embedding[0] != 4 {
		t.Errorf("stream must continue after an oversized line, got %+v", got[2])
	}
}

func TestWorker_OversizedLastLine(t *testing.T) {
	w := NewWorker(&mockEmbedder{}, zap.NewNop()).WithMaxLineBytes(8)

	got := run(t, w, strings.Repeat("y", 100))
	if len(got) != 1 || got[0].Error != "line too long" {
		t.Errorf("expected one line-too-long response, got %+v", got)
	}
}

func TestWithMaxLineBytes_IgnoresNonPositive(t *testing.T) {
	w := NewWorker(&mockEmbedder{}, zap.NewNop())
	if got := w.WithMaxLineBytes(0).maxLine; got != MaxLineBytes {
		t.Errorf("maxLine = %d, want %d", got, MaxLineBytes)
	}
	if got := w.WithMaxLineBytes(10).maxLine; got != 10 || w.maxLine != MaxLineBytes {
		t.Errorf("WithMaxLineBytes must return a modified copy")
	}
}
