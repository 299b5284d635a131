package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/propsearch/internal/domain"
	domcorpus "github.com/kailas-cloud/propsearch/internal/domain/corpus"
	"github.com/kailas-cloud/propsearch/internal/domain/record"
)

// Repo reads ingestion sources and reads/writes embedding artifacts on the local filesystem.
type Repo struct{}

// New creates a file-backed corpus repository.
func New() *Repo { return &Repo{} }

// LoadSource parses the ingestion source at path.
func (r *Repo) LoadSource(ctx context.Context, path string, schema record.Schema) (*domcorpus.Corpus, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load source: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %v: %w", path, err, domain.ErrDataFormat)
	}
	defer f.Close()

	c, err := Load(bufio.NewReader(f), schema)
	if err != nil {
		return nil, fmt.Errorf("load source %s: %w", path, err)
	}
	return c, nil
}

// LoadArtifact reads a persisted artifact.
func (r *Repo) LoadArtifact(ctx context.Context, path string) (*domcorpus.Corpus, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %v: %w", path, err, domain.ErrDataFormat)
	}
	defer f.Close()

	c, err := ReadArtifact(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return c, nil
}

// Save writes the artifact atomically: a temp file in the target directory
// is renamed over path only after a complete, synced write.
func (r *Repo) Save(ctx context.Context, path string, c *domcorpus.Corpus) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := Persist(c, w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		committed = true
		return fmt.Errorf("rename artifact: %w", err)
	}
	committed = true
	return nil
}

// Load parses a source document according to schema.
// Records with an empty text are kept; callers decide what to do with them.
// Source fields named like a reserved artifact key are rejected, except the
// configured id field, whose value becomes the record ID.
func Load(r io.Reader, schema record.Schema) (*domcorpus.Corpus, error) {
	var (
		attrs []map[string]any
		err   error
	)
	r = skipBOM(r)
	switch schema.Shape() {
	case record.ShapeSections:
		attrs, err = decodeSections(r)
	default:
		attrs, err = decodeRecords(r)
	}
	if err != nil {
		return nil, err
	}

	records := make([]record.Record, 0, len(attrs))
	for i, a := range attrs {
		if err := checkReserved(a, schema.IDField()); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		text, err := schema.BuildText(a)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		id, err := schema.DeriveID(a, i, text)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rec, err := record.New(id, text, a)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}

	c, err := domcorpus.New(records)
	if err != nil {
		return nil, fmt.Errorf("build corpus: %w", err)
	}
	return c, nil
}

// Persist writes c as a JSON array, one object per record.
func Persist(c *domcorpus.Corpus, w io.Writer) error {
	out := make([]map[string]any, c.Len())
	for i := range c.Len() {
		out[i] = toArtifact(c.At(i))
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return nil
}

// ReadArtifact parses what Persist wrote.
func ReadArtifact(r io.Reader) (*domcorpus.Corpus, error) {
	dec := json.NewDecoder(r)
	var raw []map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode artifact: %v: %w", err, domain.ErrDataFormat)
	}
	if err := expectEnd(dec); err != nil {
		return nil, err
	}

	records := make([]record.Record, 0, len(raw))
	for i, obj := range raw {
		if obj == nil {
			return nil, fmt.Errorf("artifact record %d is not an object: %w", i, domain.ErrDataFormat)
		}
		rec, err := fromArtifact(i, obj)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	c, err := domcorpus.New(records)
	if err != nil {
		return nil, fmt.Errorf("build corpus: %w", err)
	}
	return c, nil
}

func decodeRecords(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	var items []json.RawMessage
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("source must be a JSON array of records: %v: %w", err, domain.ErrDataFormat)
	}
	if err := expectEnd(dec); err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(items))
	for i, item := range items {
		var m map[string]any
		if err := json.Unmarshal(item, &m); err != nil || m == nil {
			return nil, fmt.Errorf("record %d is not a JSON object: %w", i, domain.ErrDataFormat)
		}
		out[i] = m
	}
	return out, nil
}

// decodeSections streams a JSON object so section order follows the source document.
func decodeSections(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read sections: %v: %w", err, domain.ErrDataFormat)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("source must be a JSON object of sections: %w", domain.ErrDataFormat)
	}

	var out []map[string]any
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read section name: %v: %w", err, domain.ErrDataFormat)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v: %w", tok, domain.ErrDataFormat)
		}
		var content any
		if err := dec.Decode(&content); err != nil {
			return nil, fmt.Errorf("section %q: %v: %w", name, err, domain.ErrDataFormat)
		}
		out = append(out, map[string]any{record.SectionField: name, record.ContentField: content})
	}
	tok, err = dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read sections end: %v: %w", err, domain.ErrDataFormat)
	}
	if d, ok := tok.(json.Delim); !ok || d != '}' {
		return nil, fmt.Errorf("unexpected token %v after sections: %w", tok, domain.ErrDataFormat)
	}
	if err := expectEnd(dec); err != nil {
		return nil, err
	}
	return out, nil
}

// expectEnd rejects anything but whitespace after the top-level value.
func expectEnd(dec *json.Decoder) error {
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing data after top-level value: %w", domain.ErrDataFormat)
	}
	return nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM drops a leading UTF-8 byte order mark, which spreadsheet exports often carry.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
