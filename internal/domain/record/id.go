package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/propsearch/internal/domain"
)

// idNamespace scopes derived record IDs so they never collide with other UUIDv5 users.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("propsearch/record"))

// DeriveID picks the identifier of the record at position.
// The schema's id field wins when present (string or integral number).
// Section-shaped records use the section name. Otherwise the ID is a
// UUIDv5 over position and text, stable across runs on the same source.
func (s Schema) DeriveID(attrs map[string]any, position int, text string) (string, error) {
	if s.idField != "" {
		if v, ok := attrs[s.idField]; ok && v != nil {
			id, err := idValue(v)
			if err != nil {
				return "", fmt.Errorf("id field %q: %w", s.idField, err)
			}
			if id != "" {
				return id, nil
			}
		}
	}
	if s.shape == ShapeSections {
		if name, ok := attrs[SectionField].(string); ok && strings.TrimSpace(name) != "" {
			return name, nil
		}
	}
	return uuid.NewSHA1(idNamespace, []byte(strconv.Itoa(position)+":"+text)).String(), nil
}

// PointID maps a record ID onto a UUID, as required by vector stores that only accept UUID keys.
func PointID(recordID string) string {
	if u, err := uuid.Parse(recordID); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(idNamespace, []byte(recordID)).String()
}

func idValue(v any) (string, error) {
	switch tv := v.(type) {
	case string:
		return strings.TrimSpace(tv), nil
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(tv), nil
	case int64:
		return strconv.FormatInt(tv, 10), nil
	default:
		return "", fmt.Errorf("unsupported id type %T: %w", v, domain.ErrDataFormat)
	}
}
