package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/propsearch/internal/domain"
)

// Shape is the top-level layout of an ingestion source.
type Shape string

const (
	// ShapeRecords is a JSON array of record objects.
	ShapeRecords Shape = "records"
	// ShapeSections is a JSON object mapping section names to string or list content.
	ShapeSections Shape = "sections"
)

// Attribute names synthesized for section-shaped sources.
const (
	SectionField = "section"
	ContentField = "content"
)

// Default separators, matching the listing and agency ingestion formats.
const (
	DefaultSeparator        = ". "
	DefaultSectionSeparator = ": "
)

// IsValid reports whether s is a known shape.
func (s Shape) IsValid() bool {
	return s == ShapeRecords || s == ShapeSections
}

// Schema enumerates the fields that make up a record's text representation
// and the rule used to combine them.
type Schema struct {
	shape     Shape
	idField   string
	fields    []string
	separator string
}

// NewSchema validates a text schema.
// Sections default to fields [section, content] joined by ": ".
// Records require at least one field and default to ". " as separator.
func NewSchema(shape Shape, idField string, fields []string, separator string) (Schema, error) {
	if shape == "" {
		shape = ShapeRecords
	}
	if !shape.IsValid() {
		return Schema{}, fmt.Errorf("unknown source shape %q: %w", shape, domain.ErrDataFormat)
	}

	if shape == ShapeSections {
		if len(fields) == 0 {
			fields = []string{SectionField, ContentField}
		}
		if separator == "" {
			separator = DefaultSectionSeparator
		}
	}
	if separator == "" {
		separator = DefaultSeparator
	}
	if len(fields) == 0 {
		return Schema{}, fmt.Errorf("at least one text field is required: %w", domain.ErrDataFormat)
	}

	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if strings.TrimSpace(f) == "" {
			return Schema{}, fmt.Errorf("text field %d has an empty name: %w", i, domain.ErrDataFormat)
		}
		if seen[f] {
			return Schema{}, fmt.Errorf("duplicate text field %q: %w", f, domain.ErrDataFormat)
		}
		seen[f] = true
	}

	return Schema{
		shape:     shape,
		idField:   idField,
		fields:    append([]string(nil), fields...),
		separator: separator,
	}, nil
}

// Shape returns the source layout.
func (s Schema) Shape() Shape { return s.shape }

// IDField returns the attribute holding the record identifier (may be empty).
func (s Schema) IDField() string { return s.idField }

// Fields returns the ordered text fields.
func (s Schema) Fields() []string { return append([]string(nil), s.fields...) }

// Separator returns the string placed between field values.
func (s Schema) Separator() string { return s.separator }

// BuildText joins the configured fields of attrs in schema order.
// Absent, null and blank fields are skipped. List values are flattened into
// one space-joined string. Nested objects are rejected.
// A section without content yields an empty text.
func (s Schema) BuildText(attrs map[string]any) (string, error) {
	if s.shape == ShapeSections {
		content, err := flatten(attrs[ContentField])
		if err != nil {
			return "", fmt.Errorf("field %q: %w", ContentField, err)
		}
		if content == "" {
			return "", nil
		}
	}

	parts := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		v, ok := attrs[f]
		if !ok || v == nil {
			continue
		}
		text, err := flatten(v)
		if err != nil {
			return "", fmt.Errorf("field %q: %w", f, err)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, s.separator), nil
}

func flatten(v any) (string, error) {
	switch tv := v.(type) {
	case nil:
		return "", nil
	case []any:
		items := make([]string, 0, len(tv))
		for i, item := range tv {
			if item == nil {
				continue
			}
			s, err := scalar(item)
			if err != nil {
				return "", fmt.Errorf("item %d: %w", i, err)
			}
			if s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, " "), nil
	case []string:
		items := make([]string, 0, len(tv))
		for _, item := range tv {
			if s := strings.TrimSpace(item); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, " "), nil
	default:
		return scalar(v)
	}
}

func scalar(v any) (string, error) {
	switch tv := v.(type) {
	case string:
		return strings.TrimSpace(tv), nil
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(tv), nil
	case int64:
		return strconv.FormatInt(tv, 10), nil
	case bool:
		return strconv.FormatBool(tv), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T: %w", v, domain.ErrDataFormat)
	}
}
