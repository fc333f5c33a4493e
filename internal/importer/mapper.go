package importer

import (
	"fmt"
	"strings"
	"unicode"

	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

type Field string

const (
	FieldTitle       Field = "title"
	FieldBody        Field = "body"
	FieldExternalID  Field = "external_id"
	FieldBoard       Field = "board"
	FieldStatus      Field = "status"
	FieldScore       Field = "score"
	FieldAttachments Field = "attachments"
	FieldAuthorEmail Field = "author_email"
	FieldCreatedAt   Field = "created_at"
	FieldUpdatedAt   Field = "updated_at"
)

var requiredFields = []Field{FieldTitle, FieldBody}

var fieldAliases = map[Field][]string{
	FieldTitle:       {"title", "name", "subject", "posttitle", "heading", "headline"},
	FieldBody:        {"body", "description", "content", "details", "text", "message", "postbody", "postcontent", "markdown"},
	FieldExternalID:  {"id", "externalid", "postid", "sourceid", "uuid", "identifier", "key"},
	FieldBoard:       {"board", "boardname", "category", "group", "collection", "list", "section"},
	FieldStatus:      {"status", "state", "stage", "poststatus"},
	FieldScore:       {"score", "votes", "upvotes", "votecount", "points", "likes"},
	FieldAttachments: {"attachments", "attachment", "images", "image", "imageurl", "imageurls", "files", "media", "screenshots"},
	FieldAuthorEmail: {"authoremail", "email", "useremail", "submitteremail", "creatoremail", "reporteremail", "author"},
	FieldCreatedAt:   {"createdat", "created", "createddate", "date", "submittedat", "timestamp"},
	FieldUpdatedAt:   {"updatedat", "updated", "modified", "lastmodified", "modifiedat"},
}

var aliasIndex = buildAliasIndex()

func buildAliasIndex() map[string]Field {
	index := make(map[string]Field)
	for field, aliases := range fieldAliases {
		for _, alias := range aliases {
			index[alias] = field
		}
	}
	return index
}

// normalizeKey lower-cases s and drops everything that is not a letter or digit.
func normalizeKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Mapping binds logical fields to column indexes.
type Mapping struct {
	columns map[Field]int
}

func (m *Mapping) Has(field Field) bool {
	_, ok := m.columns[field]
	return ok
}

func (m *Mapping) Index(field Field) (int, bool) {
	idx, ok := m.columns[field]
	return idx, ok
}

func (m *Mapping) Value(row []string, field Field) string {
	idx, ok := m.columns[field]
	if !ok {
		return ""
	}
	return Cell(row, idx)
}

// MapColumns matches headers against the alias table. The first header matching a
// field wins it; missing title or body mapping is returned as *MissingColumnsError.
func MapColumns(headers []string) (*Mapping, []string, error) {
	m := &Mapping{columns: make(map[Field]int)}
	warnings := make([]string, 0)
	unmapped := make([]string, 0)
	for idx, header := range headers {
		field, ok := aliasIndex[normalizeKey(header)]
		if !ok {
			if strings.TrimSpace(header) != "" {
				unmapped = append(unmapped, fmt.Sprintf("%q", header))
			}
			continue
		}
		if first, taken := m.columns[field]; taken {
			warnings = append(warnings, fmt.Sprintf("duplicate mapping for %s: column %q ignored, first one used (%q)",
				field, header, headers[first]))
			continue
		}
		m.columns[field] = idx
	}
	if len(unmapped) > 0 {
		warnings = append(warnings, "unmapped columns ignored: "+strings.Join(unmapped, ", "))
	}
	missing := make([]string, 0)
	for _, field := range requiredFields {
		if !m.Has(field) {
			missing = append(missing, string(field))
		}
	}
	if len(missing) > 0 {
		return nil, warnings, &appErr.MissingColumnsError{Fields: missing}
	}
	return m, warnings, nil
}
