package combine

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/hazyhaar/docmerge/docx"
	"github.com/hazyhaar/docmerge/submission"
)

// docWith returns .docx bytes holding n paragraphs "<label> i".
func docWith(t *testing.T, label string, n int) []byte {
	t.Helper()
	d := docx.New()
	for i := 0; i < n; i++ {
		d.Append(docx.Paragraph(fmt.Sprintf("%s %d", label, i)))
	}
	data, err := d.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestCombine_ElementCount(t *testing.T) {
	// WHAT: combined length is the sum of body lengths plus 3 per submission.
	// WHY: banner, spacer and page break are the only additions.
	counts := []int{2, 0, 5}
	var subs []submission.Normalized
	want := 0
	for i, n := range counts {
		subs = append(subs, submission.Normalized{
			Identity: fmt.Sprintf("s%d", i),
			Document: docWith(t, "p", n),
		})
		want += n + 3
	}

	doc, err := Combine(subs)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Len() != want {
		t.Fatalf("Len() = %d, want %d", doc.Len(), want)
	}
}

func TestCombine_BannersAndBreaks(t *testing.T) {
	subs := []submission.Normalized{
		{Identity: "alice", Document: docWith(t, "alice", 1)},
		{Identity: "bob", Document: docWith(t, "bob", 2)},
	}
	doc, err := Combine(subs)
	if err != nil {
		t.Fatal(err)
	}

	blocks := doc.Blocks()
	want := []struct {
		text string
		brk  bool
	}{
		{"Submitted by: alice", false},
		{"", false},
		{"alice 0", false},
		{"", true},
		{"Submitted by: bob", false},
		{"", false},
		{"bob 0", false},
		{"bob 1", false},
		{"", true},
	}
	if len(blocks) != len(want) {
		t.Fatalf("got %d blocks, want %d", len(blocks), len(want))
	}
	for i, w := range want {
		if blocks[i].Text != w.text || blocks[i].PageBreakAfter != w.brk {
			t.Errorf("block %d = {%q %v}, want {%q %v}", i, blocks[i].Text, blocks[i].PageBreakAfter, w.text, w.brk)
		}
	}

	banner := doc.Body()[0].Raw
	if !bytes.Contains(banner, []byte("<w:b/>")) {
		t.Errorf("banner is not bold: %s", banner)
	}

	data, err := doc.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := docx.Parse(data); err != nil {
		t.Fatalf("combined document does not parse: %v", err)
	}
}

func TestCombine_Empty(t *testing.T) {
	doc, err := Combine(nil)
	if !errors.Is(err, submission.ErrEmptyBatch) {
		t.Fatalf("got %v, want ErrEmptyBatch", err)
	}
	if doc != nil {
		t.Fatal("expected no document")
	}
}

func TestCombine_Malformed(t *testing.T) {
	subs := []submission.Normalized{
		{Identity: "alice", Document: docWith(t, "a", 1)},
		{Identity: "bob", Path: "bob/essay.docx", Document: []byte("not a docx")},
	}

	doc, err := Combine(subs)
	if doc != nil {
		t.Fatal("expected no partial document")
	}
	if !errors.Is(err, submission.ErrMalformedDocument) {
		t.Fatalf("got %v, want ErrMalformedDocument", err)
	}
	merr, ok := IsMalformed(err)
	if !ok || merr.Identity != "bob" || merr.Path != "bob/essay.docx" {
		t.Fatalf("malformed error = %+v", merr)
	}
	if !errors.Is(err, docx.ErrNotPackage) {
		t.Errorf("parse cause not exposed: %v", err)
	}
	if ie := merr.ItemError(); ie.Kind != submission.KindMalformedDocument {
		t.Errorf("ItemError kind = %q", ie.Kind)
	}
}

func TestCombineWith_SkipMalformed(t *testing.T) {
	subs := []submission.Normalized{
		{Identity: "alice", Document: docWith(t, "a", 1)},
		{Identity: "bob", Document: []byte("garbage")},
		{Identity: "carol", Document: docWith(t, "c", 1)},
	}

	res, err := CombineWith(subs, Options{SkipMalformed: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Included != 2 || len(res.Skipped) != 1 || res.Skipped[0].Identity != "bob" {
		t.Fatalf("included=%d skipped=%v", res.Included, res.Skipped)
	}
	if res.Document.Len() != 8 {
		t.Fatalf("Len() = %d, want 8", res.Document.Len())
	}

	_, err = CombineWith(subs[1:2], Options{SkipMalformed: true})
	if !errors.Is(err, submission.ErrEmptyBatch) {
		t.Fatalf("all skipped: got %v, want ErrEmptyBatch", err)
	}
}

func TestCombine_DistinctInstances(t *testing.T) {
	subs := []submission.Normalized{{Identity: "alice", Document: docWith(t, "a", 2)}}

	first, err := Combine(subs)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Combine(subs)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("expected distinct documents")
	}

	a, _ := first.Bytes()
	b, _ := second.Bytes()
	if !bytes.Equal(a, b) {
		t.Fatal("expected structurally equal documents")
	}

	first.Append(docx.Paragraph("extra"))
	if second.Len() == first.Len() {
		t.Fatal("documents share state")
	}
}
