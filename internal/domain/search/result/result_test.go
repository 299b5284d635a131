package result

import (
	"testing"

	"github.com/kailas-cloud/propsearch/internal/domain/record"
)

func TestNew(t *testing.T) {
	r := record.Reconstruct("lst-1", "Sunny loft", map[string]any{"title": "Sunny loft"}, []float32{0.1, 0.2})
	m := New(r, 3, 0.25)

	if m.ID() != "lst-1" {
		t.Errorf("ID() = %q", m.ID())
	}
	if m.Record().Text() != "Sunny loft" {
		t.Errorf("Record().Text() = %q", m.Record().Text())
	}
	if m.Position() != 3 {
		t.Errorf("Position() = %d", m.Position())
	}
	if m.Distance() != 0.25 {
		t.Errorf("Distance() = %f", m.Distance())
	}
}
