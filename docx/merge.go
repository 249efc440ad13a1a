package docx

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// AppendBody appends every top-level body element of src to d. Root
// namespace declarations of src are merged into d (existing prefixes win),
// and relationship references inside the appended elements are renamed to
// fresh ids of d, copying the referenced parts (images, charts, embedded
// objects) together with their own relationship parts. src is not modified.
func (d *Document) AppendBody(src *Document) error {
	d.imports++
	t := &transplant{
		dst:    d,
		src:    src,
		prefix: "m" + strconv.Itoa(d.imports) + "_",
		ids:    make(map[string]string),
		copied: make(map[string]string),
	}

	d.mergeNamespaces(src)

	relPrefixes := src.prefixesFor(NSRelationships)
	var out []Element
	for _, e := range src.body {
		raw, err := t.rewrite(e.Raw, relPrefixes)
		if err != nil {
			return err
		}
		out = append(out, Element{Name: e.Name, Raw: raw})
	}
	d.body = append(d.body, out...)
	return nil
}

// mergeNamespaces adds src's namespace declarations and mc:Ignorable
// prefixes to d's root.
func (d *Document) mergeNamespaces(src *Document) {
	for _, a := range src.rootAttrs {
		if a.Prefix != "xmlns" && !(a.Prefix == "" && a.Local == "xmlns") {
			continue
		}
		if a.Prefix == "xmlns" {
			if _, ok := d.namespace(a.Local); ok {
				continue
			}
		} else if d.hasAttr("", "xmlns") {
			continue
		}
		d.rootAttrs = append(d.rootAttrs, a)
	}

	mcPrefixes := src.prefixesFor("http://schemas.openxmlformats.org/markup-compatibility/2006")
	for _, a := range src.rootAttrs {
		if a.Local != "Ignorable" || !contains(mcPrefixes, a.Prefix) {
			continue
		}
		d.addIgnorable(strings.Fields(a.Value))
	}
}

func (d *Document) hasAttr(prefix, local string) bool {
	for _, a := range d.rootAttrs {
		if a.Prefix == prefix && a.Local == local {
			return true
		}
	}
	return false
}

func (d *Document) addIgnorable(prefixes []string) {
	mc := d.prefixesFor("http://schemas.openxmlformats.org/markup-compatibility/2006")
	if len(mc) == 0 {
		return
	}
	idx := -1
	for i, a := range d.rootAttrs {
		if a.Prefix == mc[0] && a.Local == "Ignorable" {
			idx = i
		}
	}
	if idx < 0 {
		d.rootAttrs = append(d.rootAttrs, attr{Prefix: mc[0], Local: "Ignorable"})
		idx = len(d.rootAttrs) - 1
	}
	have := strings.Fields(d.rootAttrs[idx].Value)
	for _, p := range prefixes {
		if _, declared := d.namespace(p); declared && !contains(have, p) {
			have = append(have, p)
		}
	}
	d.rootAttrs[idx].Value = strings.Join(have, " ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// transplant carries the id and part renaming state of one AppendBody call.
type transplant struct {
	dst    *Document
	src    *Document
	prefix string            // prepended to copied part base names
	ids    map[string]string // src relationship id → dst id
	copied map[string]string // src part name → dst part name
}

var relAttrRe = regexp.MustCompile(`\s([A-Za-z_][\w.-]*):([A-Za-z]+)="([^"]*)"`)

// rewrite renames every attribute in the relationships namespace that names
// a src relationship id.
func (t *transplant) rewrite(raw []byte, relPrefixes []string) ([]byte, error) {
	if len(relPrefixes) == 0 || len(t.src.rels) == 0 {
		return append([]byte(nil), raw...), nil
	}
	var firstErr error
	out := relAttrRe.ReplaceAllFunc(raw, func(m []byte) []byte {
		sub := relAttrRe.FindSubmatch(m)
		if !contains(relPrefixes, string(sub[1])) {
			return m
		}
		newID, err := t.mapID(string(sub[3]))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return m
		}
		if newID == "" {
			return m
		}
		return []byte(fmt.Sprintf(` %s:%s="%s"`, sub[1], sub[2], newID))
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// mapID returns the dst id for a src relationship id, adding the
// relationship (and copying its target) on first use. Unknown ids map to "".
func (t *transplant) mapID(id string) (string, error) {
	if n, ok := t.ids[id]; ok {
		return n, nil
	}
	var rel *Relationship
	for i := range t.src.rels {
		if t.src.rels[i].ID == id {
			rel = &t.src.rels[i]
			break
		}
	}
	if rel == nil {
		return "", nil
	}

	nr := Relationship{ID: t.dst.nextRelID(), Type: rel.Type, TargetMode: rel.TargetMode, Target: rel.Target}
	if !rel.External() {
		srcPart := resolveTarget(t.src.mainDir(), rel.Target)
		dstPart, err := t.copyPart(srcPart)
		if err != nil {
			return "", err
		}
		nr.Target = relativeTarget(t.dst.mainDir(), dstPart)
	}
	t.dst.rels = append(t.dst.rels, nr)
	t.ids[id] = nr.ID
	return nr.ID, nil
}

// copyPart copies a src part into dst under a prefixed name, recursively
// copying the parts its own .rels file references.
func (t *transplant) copyPart(srcPart string) (string, error) {
	if n, ok := t.copied[srcPart]; ok {
		return n, nil
	}
	data, ok := t.src.parts[srcPart]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingPart, srcPart)
	}
	dir, base := path.Split(srcPart)
	dstPart := dir + t.prefix + base
	t.copied[srcPart] = dstPart
	t.dst.parts[dstPart] = append([]byte(nil), data...)

	if ct, ok := t.src.types.overrideFor(srcPart); ok {
		t.dst.types.setOverride(dstPart, ct)
	} else if ext := strings.TrimPrefix(path.Ext(srcPart), "."); ext != "" {
		if ct, ok := t.src.types.defaultFor(ext); ok {
			t.dst.types.setDefault(ext, ct)
		}
	}

	relsData, ok := t.src.parts[relsPartName(srcPart)]
	if !ok {
		return dstPart, nil
	}
	rels, err := unmarshalRels(relsData)
	if err != nil {
		return "", fmt.Errorf("docx: %s: %w", relsPartName(srcPart), err)
	}
	partDir := strings.TrimSuffix(dir, "/")
	for i, r := range rels {
		if r.External() {
			continue
		}
		child, err := t.copyPart(resolveTarget(partDir, r.Target))
		if err != nil {
			return "", err
		}
		rels[i].Target = relativeTarget(partDir, child)
	}
	t.dst.parts[relsPartName(dstPart)] = marshalRels(rels)
	return dstPart, nil
}

// nextRelID returns an rId not yet used by d's main part.
func (d *Document) nextRelID() string {
	used := make(map[string]bool, len(d.rels))
	for _, r := range d.rels {
		used[r.ID] = true
	}
	for n := len(d.rels) + 1; ; n++ {
		id := "rId" + strconv.Itoa(n)
		if !used[id] {
			return id
		}
	}
}

// resolveTarget turns a relationship target into a part name.
func resolveTarget(baseDir, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return strings.TrimPrefix(path.Clean("/"+path.Join(baseDir, target)), "/")
}

// relativeTarget expresses part relative to baseDir when it lives below it,
// and as an absolute part name otherwise.
func relativeTarget(baseDir, part string) string {
	if baseDir == "" {
		return part
	}
	if strings.HasPrefix(part, baseDir+"/") {
		return strings.TrimPrefix(part, baseDir+"/")
	}
	return "/" + part
}
