// CLAUDE:SUMMARY Data model shared by every docmerge stage: formats, raw and normalized submissions, batch results.
// Package submission defines the values that flow between the docmerge
// stages (walker/adapter → normalizer → combiner) and the rules that derive
// a submitter identity and a document format from what the caller hands in.
package submission

// Format identifies how a submission's bytes are encoded.
type Format string

const (
	// Canonical is the word-processing format documents are combined in (.docx).
	Canonical Format = "docx"
	// Secondary is the page-description format that is converted before combination (.pdf).
	Secondary Format = "pdf"
	// Unrecognized marks anything else. It must not reach the normalizer.
	Unrecognized Format = ""
)

// Placeholder is the identity given to direct uploads and to files sitting
// at the root of an archive.
const Placeholder = "Direct Upload"

// BannerLabel prefixes the identity in the banner paragraph.
const BannerLabel = "Submitted by: "

// Raw is one submitted file before normalization.
type Raw struct {
	Identity string `json:"identity"`
	Path     string `json:"path"` // archive-relative path or upload filename
	Data     []byte `json:"-"`
	Format   Format `json:"format"`
}

// Normalized is a submission whose Document is always canonical-format bytes.
type Normalized struct {
	Identity string `json:"identity"`
	Path     string `json:"path"`
	Document []byte `json:"-"`
}

// BatchResult is the output of the walker/normalizer stages. A non-empty
// Errors slice means the batch completed with partial data.
type BatchResult struct {
	Submissions []Normalized `json:"submissions"`
	Errors      []ItemError  `json:"errors"`
}

// Upload is one directly uploaded file.
type Upload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}
