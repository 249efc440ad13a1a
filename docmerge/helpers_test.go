package docmerge

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hazyhaar/docmerge/dbopen"
	"github.com/hazyhaar/docmerge/docx"
)

// docxBytes returns a .docx holding one paragraph per line.
func docxBytes(t *testing.T, lines ...string) []byte {
	t.Helper()
	d := docx.New()
	for _, l := range lines {
		d.Append(docx.Paragraph(l))
	}
	data, err := d.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return data
}

// pdfBytes returns a one-page PDF showing text.
func pdfBytes(text string) []byte {
	stream := fmt.Sprintf("BT\n/F1 12 Tf\n72 720 Td\n(%s) Tj\nET", text)
	var b strings.Builder
	offsets := make([]int, 6)
	b.WriteString("%PDF-1.4\n")
	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	offsets[2] = b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\nendobj\n")
	offsets[4] = b.Len()
	fmt.Fprintf(&b, "4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(stream), stream)
	offsets[5] = b.Len()
	b.WriteString("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")
	xref := b.Len()
	b.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for i := 1; i < 6; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return []byte(b.String())
}

type zipEntry struct {
	name string
	data []byte
}

func zipBytes(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// sampleArchive holds alice (docx), bob (pdf), carol (broken pdf) and a
// stray text file.
func sampleArchive(t *testing.T) []byte {
	t.Helper()
	return zipBytes(t,
		zipEntry{"alice_99231/essay.docx", docxBytes(t, "Alice essay")},
		zipEntry{"bob_10422/essay.pdf", pdfBytes("Bob essay")},
		zipEntry{"carol_555/essay.pdf", []byte("%PDF-1.4 truncated")},
		zipEntry{"carol_555/readme.txt", []byte("ignored")},
	)
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// fixedIDs returns a generator yielding bat_test_1, bat_test_2, ...
func fixedIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("bat_test_%d", n)
	}
}

func testPipeline(t *testing.T, cfg *Config) *Pipeline {
	t.Helper()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.TempDir = t.TempDir()
	return New(cfg, WithStore(testStore(t)), WithIDGenerator(fixedIDs()))
}

var bg = context.Background()
