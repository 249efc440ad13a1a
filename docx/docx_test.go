package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

const testRoot = `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
	`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
	`xmlns:w14="http://schemas.microsoft.com/office/word/2010/wordml" ` +
	`xmlns:mc="http://schemas.openxmlformats.org/markup-compatibility/2006" mc:Ignorable="w14">`

// buildPackage zips the given parts into a .docx.
func buildPackage(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func docXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + testRoot + `<w:body>` + body + `</w:body></w:document>`
}

func TestNewRoundTrip(t *testing.T) {
	d := New()
	d.Append(BoldParagraph("Submitted by: alice"), EmptyParagraph(), Paragraph("a < b & c"), PageBreak())

	data, err := d.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	back, err := Parse(data)
	if err != nil {
		t.Fatalf("parse round trip: %v", err)
	}
	if back.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", back.Len())
	}
	got := back.Paragraphs()
	want := []string{"Submitted by: alice", "", "a < b & c", ""}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("paragraph %d = %q, want %q", i, got[i], want[i])
		}
	}
	blocks := back.Blocks()
	if !blocks[3].PageBreakAfter {
		t.Error("expected page break on last block")
	}
	if len(back.sectPr) == 0 {
		t.Error("section properties lost in round trip")
	}
}

func TestParseKeepsElementsVerbatim(t *testing.T) {
	body := `<w:p><w:r><w:t>one</w:t></w:r></w:p>` +
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
		`<w:p w14:paraId="1A2B"/>` +
		`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/></w:sectPr>`
	data := buildPackage(t, map[string]string{"word/document.xml": docXML(body)})

	d, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	elems := d.Body()
	if len(elems) != 3 {
		t.Fatalf("expected 3 body elements (sectPr excluded), got %d", len(elems))
	}
	if elems[1].Name != "tbl" {
		t.Errorf("elems[1].Name = %q, want tbl", elems[1].Name)
	}
	if string(elems[2].Raw) != `<w:p w14:paraId="1A2B"/>` {
		t.Errorf("self-closing element not kept verbatim: %q", elems[2].Raw)
	}
	if !strings.Contains(string(d.sectPr), `w:w="12240"`) {
		t.Errorf("sectPr = %q", d.sectPr)
	}
	if got := d.Paragraphs(); len(got) != 3 || got[1] != "cell" {
		t.Errorf("Paragraphs() = %q", got)
	}
}

func TestParseFollowsOfficeDocumentRelationship(t *testing.T) {
	data := buildPackage(t, map[string]string{
		"_rels/.rels": `<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/main.xml"/></Relationships>`,
		"word/main.xml": docXML(`<w:p><w:r><w:t>custom</w:t></w:r></w:p>`),
	})
	d, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if d.mainPart != "word/main.xml" {
		t.Fatalf("mainPart = %q", d.mainPart)
	}
	out, err := d.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Parse(out); err != nil {
		t.Fatalf("re-parse: %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse([]byte("%PDF-1.4 not a zip")); !errors.Is(err, ErrNotPackage) {
		t.Errorf("non-zip: got %v, want ErrNotPackage", err)
	}

	noMain := buildPackage(t, map[string]string{"readme.txt": "hi"})
	if _, err := Parse(noMain); !errors.Is(err, ErrNoMainPart) {
		t.Errorf("no main part: got %v, want ErrNoMainPart", err)
	}

	noBody := buildPackage(t, map[string]string{"word/document.xml": `<w:document xmlns:w="x"></w:document>`})
	if _, err := Parse(noBody); !errors.Is(err, ErrNoBody) {
		t.Errorf("no body: got %v, want ErrNoBody", err)
	}

	broken := buildPackage(t, map[string]string{"word/document.xml": docXML(`<w:p><w:r></w:p>`)})
	if _, err := Parse(broken); err == nil {
		t.Error("expected error for mismatched tags")
	}
}

func TestAppendBodyTransplantsRelationships(t *testing.T) {
	body := `<w:p><w:r><w:drawing><a:blip xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" r:embed="rId7"/></w:drawing></w:r></w:p>` +
		`<w:p><w:hyperlink r:id="rId8"><w:r><w:t>link</w:t></w:r></w:hyperlink></w:p>`
	src, err := Parse(buildPackage(t, map[string]string{
		"[Content_Types].xml": `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="png" ContentType="image/png"/></Types>`,
		"word/document.xml": docXML(body),
		"word/_rels/document.xml.rels": `<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId7" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>` +
			`<Relationship Id="rId8" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="https://example.com" TargetMode="External"/>` +
			`</Relationships>`,
		"word/media/image1.png": "\x89PNG fake",
	}))
	if err != nil {
		t.Fatal(err)
	}

	dst := New()
	if err := dst.AppendBody(src); err != nil {
		t.Fatal(err)
	}
	if err := dst.AppendBody(src); err != nil {
		t.Fatal(err)
	}

	rels := dst.Relationships()
	if len(rels) != 4 {
		t.Fatalf("expected 4 relationships after two imports, got %d", len(rels))
	}
	if rels[0].Target != "media/m1_image1.png" || rels[2].Target != "media/m2_image1.png" {
		t.Errorf("unexpected image targets: %q, %q", rels[0].Target, rels[2].Target)
	}
	if !rels[1].External() || rels[1].Target != "https://example.com" {
		t.Errorf("hyperlink relationship not carried: %+v", rels[1])
	}
	if _, ok := dst.Part("word/media/m2_image1.png"); !ok {
		t.Error("image part not copied")
	}
	if ct, ok := dst.types.defaultFor("png"); !ok || ct != "image/png" {
		t.Errorf("png content type = %q, %v", ct, ok)
	}

	elems := dst.Body()
	if !strings.Contains(string(elems[0].Raw), `r:embed="`+rels[0].ID+`"`) {
		t.Errorf("first image reference not renamed: %s", elems[0].Raw)
	}
	if !strings.Contains(string(elems[3].Raw), `r:id="`+rels[3].ID+`"`) {
		t.Errorf("second hyperlink reference not renamed: %s", elems[3].Raw)
	}
	if _, ok := dst.namespace("w14"); !ok {
		t.Error("w14 namespace not merged into root")
	}

	// Source untouched.
	if string(src.Body()[0].Raw) != string(src.body[0].Raw) || !strings.Contains(string(src.body[0].Raw), `rId7`) {
		t.Error("source document was modified")
	}

	data, err := dst.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	back, err := Parse(data)
	if err != nil {
		t.Fatalf("parse combined: %v", err)
	}
	if back.Len() != 4 {
		t.Fatalf("combined Len() = %d", back.Len())
	}
}

func TestAppendBodyMissingPart(t *testing.T) {
	src, err := Parse(buildPackage(t, map[string]string{
		"word/document.xml": docXML(`<w:p><w:r><w:drawing><a:blip xmlns:a="x" r:embed="rId1"/></w:drawing></w:r></w:p>`),
		"word/_rels/document.xml.rels": `<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/gone.png"/>` +
			`</Relationships>`,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if err := New().AppendBody(src); !errors.Is(err, ErrMissingPart) {
		t.Fatalf("got %v, want ErrMissingPart", err)
	}
}

func TestBlocksTabsAndBreaks(t *testing.T) {
	body := `<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr>` +
		`<w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>end</w:t><w:br w:type="page"/></w:r></w:p>`
	d, err := Parse(buildPackage(t, map[string]string{"word/document.xml": docXML(body)}))
	if err != nil {
		t.Fatal(err)
	}
	blocks := d.Blocks()
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Text != "a\tb\nc" {
		t.Errorf("blocks[0].Text = %q", blocks[0].Text)
	}
	if blocks[0].PageBreakAfter || !blocks[1].PageBreakAfter {
		t.Errorf("page break flags wrong: %+v", blocks)
	}
	if got := d.PlainText(); got != "a\tb\nc\nend\n" {
		t.Errorf("PlainText() = %q", got)
	}
}
