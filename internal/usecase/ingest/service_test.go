package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	dombatch "github.com/kailas-cloud/propsearch/internal/domain/batch"
)

func request() Request {
	return Request{Source: "listings.json", Output: "embedded.json"}
}

func TestRun_EmbedsAllRecords(t *testing.T) {
	src := sourceCorpus(t, "Loft in Kreuzberg", "Villa with pool", "Studio near station")
	saver := &mockSaver{}
	emb := &mockEmbedder{}
	svc := New(&mockSource{corpus: src}, saver, nil, emb, Options{BatchSize: 2, Workers: 2}, zap.NewNop())

	summary, err := svc.Run(context.Background(), request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Total != 3 || summary.Embedded != 3 || summary.Dimension != 3 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if saver.path != "embedded.json" {
		t.Errorf("expected output path embedded.json, got %q", saver.path)
	}
	if saver.saved.Len() != 3 {
		t.Fatalf("expected 3 saved records, got %d", saver.saved.Len())
	}
	for i := range 3 {
		if !saver.saved.At(i).HasVector() {
			t.Errorf("record %d saved without vector", i)
		}
	}
	if emb.batchCalls != 2 {
		t.Errorf("expected 2 batch calls, got %d", emb.batchCalls)
	}
}

func TestRun_SingleFailureIsIsolated(t *testing.T) {
	texts := []string{"one", "two", "poison pill", "four", "five", "six", "seven"}
	src := sourceCorpus(t, texts...)
	saver := &mockSaver{}
	svc := New(&mockSource{corpus: src}, saver, nil, &mockEmbedder{}, Options{BatchSize: 3, Workers: 3}, zap.NewNop())

	summary, err := svc.Run(context.Background(), request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saver.saved.Len() != len(texts)-1 {
		t.Fatalf("expected %d saved records, got %d", len(texts)-1, saver.saved.Len())
	}
	if _, ok := saver.saved.Lookup("lst-02"); ok {
		t.Error("failed record must be excluded from the artifact")
	}

	skipped := summary.Skipped()
	if len(skipped) != 1 {
		t.Fatalf("expected 1 skipped record, got %d", len(skipped))
	}
	if skipped[0].ID() != "lst-02" || skipped[0].Reason() != dombatch.ReasonEmbeddingError {
		t.Errorf("unexpected skip: %s %s", skipped[0].ID(), skipped[0].Reason())
	}
	if !errors.Is(skipped[0].Err(), domain.ErrEmbedding) {
		t.Errorf("expected ErrEmbedding cause, got %v", skipped[0].Err())
	}
}

func TestRun_PreservesSourceOrder(t *testing.T) {
	texts := make([]string, 40)
	for i := range texts {
		texts[i] = fmt.Sprintf("listing number %d", i)
	}
	saver := &mockSaver{}
	svc := New(&mockSource{corpus: sourceCorpus(t, texts...)}, saver, nil, &mockEmbedder{},
		Options{BatchSize: 1, Workers: 8}, zap.NewNop())

	if _, err := svc.Run(context.Background(), request()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range texts {
		if got := saver.saved.At(i).ID(); got != fmt.Sprintf("lst-%02d", i) {
			t.Fatalf("position %d: expected lst-%02d, got %s", i, i, got)
		}
	}
}

func TestRun_SkipsEmptyText(t *testing.T) {
	src := sourceCorpus(t, "Penthouse", "   ", "Garden flat")
	emb := &mockEmbedder{}
	saver := &mockSaver{}
	svc := New(&mockSource{corpus: src}, saver, nil, emb, Options{}, zap.NewNop())

	summary, err := svc.Run(context.Background(), request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	skipped := summary.Skipped()
	if len(skipped) != 1 || skipped[0].Reason() != dombatch.ReasonEmptyText || skipped[0].ID() != "lst-01" {
		t.Fatalf("expected lst-01 skipped for empty text, got %+v", skipped)
	}
	if saver.saved.Len() != 2 {
		t.Errorf("expected 2 saved records, got %d", saver.saved.Len())
	}
}

func TestRun_DimensionMismatch(t *testing.T) {
	src := sourceCorpus(t, "first", "odd one", "third")
	emb := &mockEmbedder{dims: map[string]int{"odd one": 5}}
	saver := &mockSaver{}
	svc := New(&mockSource{corpus: src}, saver, nil, emb, Options{BatchSize: 1}, zap.NewNop())

	summary, err := svc.Run(context.Background(), request())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	skipped := summary.Skipped()
	if len(skipped) != 1 || skipped[0].Reason() != dombatch.ReasonDimensionMismatch {
		t.Fatalf("expected one dimension_mismatch skip, got %+v", skipped)
	}
	if !errors.Is(skipped[0].Err(), domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch cause, got %v", skipped[0].Err())
	}
	if summary.Dimension != 3 {
		t.Errorf("expected reference dimension 3, got %d", summary.Dimension)
	}
}

func TestRun_NothingEmbedded(t *testing.T) {
	saver := &mockSaver{}
	svc := New(&mockSource{corpus: sourceCorpus(t, "poison a", "")}, saver, nil, &mockEmbedder{}, Options{}, zap.NewNop())

	_, err := svc.Run(context.Background(), request())
	if !errors.Is(err, domain.ErrEmptyCorpus) {
		t.Fatalf("expected ErrEmptyCorpus, got %v", err)
	}
	if saver.saved != nil {
		t.Error("nothing should be saved when no record was embedded")
	}
}

func TestRun_SourceError(t *testing.T) {
	loadErr := fmt.Errorf("bad json: %w", domain.ErrDataFormat)
	svc := New(&mockSource{err: loadErr}, &mockSaver{}, nil, &mockEmbedder{}, Options{}, zap.NewNop())

	_, err := svc.Run(context.Background(), request())
	if !errors.Is(err, domain.ErrDataFormat) {
		t.Errorf("expected ErrDataFormat, got %v", err)
	}
}

func TestRun_SaveError(t *testing.T) {
	saveErr := errors.New("disk full")
	svc := New(&mockSource{corpus: sourceCorpus(t, "a")}, &mockSaver{err: saveErr}, nil, &mockEmbedder{}, Options{}, zap.NewNop())

	_, err := svc.Run(context.Background(), request())
	if !errors.Is(err, saveErr) {
		t.Errorf("expected save error, got %v", err)
	}
}

func TestRun_CancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	emb := &mockEmbedder{cancel: cancel}
	saver := &mockSaver{}
	svc := New(&mockSource{corpus: sourceCorpus(t, "ok", "poison", "later")}, saver, nil, emb,
		Options{BatchSize: 1, Workers: 1}, zap.NewNop())

	_, err := svc.Run(ctx, request())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if saver.saved != nil {
		t.Error("cancelled run must not save an artifact")
	}
}

func TestRun_Publish(t *testing.T) {
	pub := &mockPublisher{}
	svc := New(&mockSource{corpus: sourceCorpus(t, "a", "b")}, &mockSaver{}, pub, &mockEmbedder{}, Options{}, zap.NewNop())

	req := request()
	req.Publish = true
	summary, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !summary.Published || pub.published == nil || pub.published.Len() != 2 {
		t.Errorf("expected 2 published records, got summary=%+v", summary)
	}
}

func TestRun_PublishSkippedWhenNotRequested(t *testing.T) {
	pub := &mockPublisher{}
	svc := New(&mockSource{corpus: sourceCorpus(t, "a")}, &mockSaver{}, pub, &mockEmbedder{}, Options{}, zap.NewNop())

	if _, err := svc.Run(context.Background(), request()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.published != nil {
		t.Error("publisher must not be called without Publish")
	}
}

func TestRun_PublishError(t *testing.T) {
	pubErr := errors.New("qdrant unavailable")
	svc := New(&mockSource{corpus: sourceCorpus(t, "a")}, &mockSaver{}, &mockPublisher{err: pubErr}, &mockEmbedder{}, Options{}, zap.NewNop())

	req := request()
	req.Publish = true
	_, err := svc.Run(context.Background(), req)
	if !errors.Is(err, pubErr) {
		t.Errorf("expected publish error, got %v", err)
	}
}
