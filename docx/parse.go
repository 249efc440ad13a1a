package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// maxPartSize bounds a single decompressed part (256 MiB).
const maxPartSize = 256 << 20

// Parse reads a .docx package. It fails when the bytes are not a zip, when
// no main document part can be located, or when the main part is not
// well-formed WordprocessingML with a body.
func Parse(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPackage, err)
	}

	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		b, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("docx: read %s: %w", f.Name, err)
		}
		files[strings.TrimPrefix(f.Name, "/")] = b
	}

	d := &Document{parts: files}

	d.mainPart = findMainPart(files)
	if d.mainPart == "" {
		return nil, ErrNoMainPart
	}
	mainXML := files[d.mainPart]
	delete(files, d.mainPart)

	if ct, ok := files["[Content_Types].xml"]; ok {
		if err := xml.Unmarshal(ct, &d.types); err != nil {
			return nil, fmt.Errorf("docx: content types: %w", err)
		}
		delete(files, "[Content_Types].xml")
	}

	relsName := relsPartName(d.mainPart)
	if rb, ok := files[relsName]; ok {
		rels, err := unmarshalRels(rb)
		if err != nil {
			return nil, fmt.Errorf("docx: %s: %w", relsName, err)
		}
		d.rels = rels
		delete(files, relsName)
	}

	if err := d.parseMain(mainXML); err != nil {
		return nil, err
	}
	return d, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxPartSize {
		return nil, fmt.Errorf("part exceeds %d bytes", maxPartSize)
	}
	return b, nil
}

// findMainPart follows the package-level officeDocument relationship and
// falls back to the conventional word/document.xml.
func findMainPart(files map[string][]byte) string {
	if rb, ok := files["_rels/.rels"]; ok {
		if rels, err := unmarshalRels(rb); err == nil {
			for _, r := range rels {
				if r.Type == relTypeOfficeDocument && !r.External() {
					name := strings.TrimPrefix(path.Clean("/"+r.Target), "/")
					if _, ok := files[name]; ok {
						return name
					}
				}
			}
		}
	}
	if _, ok := files["word/document.xml"]; ok {
		return "word/document.xml"
	}
	return ""
}

// parseMain splits the main part into root attributes, body elements and
// the trailing section properties. Byte offsets from the decoder slice the
// original text so each element keeps its exact source form.
func (d *Document) parseMain(data []byte) error {
	if err := d.parseRoot(data); err != nil {
		return err
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	depth := 0
	inBody := false
	sawBody := false
	var start int64
	var startName string

	for {
		off := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("docx: %s: %w", d.mainPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1 && t.Name.Local != "document":
				return fmt.Errorf("docx: unexpected root element %q", t.Name.Local)
			case depth == 2 && t.Name.Local == "body":
				inBody, sawBody = true, true
			case depth == 3 && inBody:
				start, startName = off, t.Name.Local
			}
		case xml.EndElement:
			switch {
			case depth == 3 && inBody:
				raw := make([]byte, dec.InputOffset()-start)
				copy(raw, data[start:dec.InputOffset()])
				// Body-level section properties are only valid as the last
				// child; they describe the document, not its flow.
				if startName == "sectPr" {
					d.sectPr = raw
				} else {
					d.body = append(d.body, Element{Name: startName, Raw: raw})
				}
			case depth == 2 && inBody:
				inBody = false
			}
			depth--
		}
	}

	if !sawBody {
		return ErrNoBody
	}
	return nil
}

// parseRoot records the root and body tag names and the root attributes
// exactly as written (prefixes untranslated).
func (d *Document) parseRoot(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("docx: %s: %w", d.mainPart, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if d.rootName == "" {
			d.rootName = qualified(se.Name)
			for _, a := range se.Attr {
				d.rootAttrs = append(d.rootAttrs, attr{Prefix: a.Name.Space, Local: a.Name.Local, Value: a.Value})
			}
			continue
		}
		if se.Name.Local == "body" {
			d.bodyName = qualified(se.Name)
			return nil
		}
	}
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
