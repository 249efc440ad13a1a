package submission

import (
	"mime"
	"path/filepath"
	"strings"
)

// Content types accepted as declared upload types.
const (
	ContentTypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypePDF  = "application/pdf"
)

// ExtractIdentity derives the submitter label from a folder name: everything
// from the first underscore onward is dropped ("alice_99231" → "alice").
// Learning platforms append such suffixes to keep folder names unique.
func ExtractIdentity(folder string) string {
	name := folder
	if i := strings.IndexByte(name, '_'); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Placeholder
	}
	return name
}

// Detect resolves the format of a file. The declared content type wins when
// it names a known format; otherwise the filename extension decides.
func Detect(contentType, name string) Format {
	if f := formatFromContentType(contentType); f != Unrecognized {
		return f
	}
	return FormatFromName(name)
}

// FormatFromName classifies a file by its extension (case-insensitive).
func FormatFromName(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".docx":
		return Canonical
	case ".pdf":
		return Secondary
	default:
		return Unrecognized
	}
}

func formatFromContentType(contentType string) Format {
	if contentType == "" {
		return Unrecognized
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Unrecognized
	}
	switch mt {
	case ContentTypeDocx:
		return Canonical
	case ContentTypePDF, "application/x-pdf":
		return Secondary
	default:
		return Unrecognized
	}
}

// Adapt turns direct uploads into raw submissions carrying the placeholder
// identity. Items are classified with Detect; it has no error path.
func Adapt(items []Upload) []Raw {
	out := make([]Raw, 0, len(items))
	for _, it := range items {
		out = append(out, Raw{
			Identity: Placeholder,
			Path:     it.Name,
			Data:     it.Data,
			Format:   Detect(it.ContentType, it.Name),
		})
	}
	return out
}
