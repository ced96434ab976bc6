// Package tei parses GROBID TEI XML into plain document text plus
// bibliographic metadata.
package tei

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/oakfield-research/qex-cli/internal/model"
)

// Parse reads a TEI XML document. Missing sections come back as empty
// strings; malformed XML is an error so batch callers can log and skip.
func Parse(r io.Reader) (*model.ParsedDocument, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "tei: unknown charset %s", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	doc := &model.ParsedDocument{}

	var (
		stack    []string
		abstract strings.Builder
		body     strings.Builder
		title    strings.Builder
		author   strings.Builder
	)

	inStack := func(name string) bool {
		for _, s := range stack {
			if s == name {
				return true
			}
		}
		return false
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "tei: parse")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)

			if t.Name.Local == "date" && inStack("publicationStmt") && doc.Year == "" {
				for _, attr := range t.Attr {
					if attr.Name.Local == "when" && len(attr.Value) >= 4 {
						doc.Year = attr.Value[:4]
					}
				}
			}

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}

			switch t.Name.Local {
			case "title":
				if doc.Title == "" && inStack("titleStmt") {
					doc.Title = normalizeSpace(title.String())
				}
				title.Reset()
			case "persName":
				if name := normalizeSpace(author.String()); name != "" && inStack("fileDesc") {
					doc.Authors = append(doc.Authors, name)
				}
				author.Reset()
			case "cell":
				// Space between cells so row values stay separable.
				if inStack("body") {
					body.WriteString(" ")
				}
			case "p", "head", "item", "row", "figDesc", "note":
				// Paragraph-level breaks keep table rows and headings from
				// running together.
				if inStack("abstract") {
					abstract.WriteString("\n")
				} else if inStack("body") {
					body.WriteString("\n")
				}
			}

		case xml.CharData:
			text := string(t)
			switch {
			case inStack("abstract"):
				abstract.WriteString(text)
			case inStack("body"):
				body.WriteString(text)
			case inStack("persName") && inStack("fileDesc"):
				if s := strings.TrimSpace(text); s != "" {
					if author.Len() > 0 {
						author.WriteString(" ")
					}
					author.WriteString(s)
				}
			case inStack("title") && inStack("titleStmt") && doc.Title == "":
				title.WriteString(text)
			}
		}
	}

	doc.Abstract = normalizeText(abstract.String())
	doc.Body = normalizeText(body.String())
	return doc, nil
}

// ParseFile is a convenience wrapper that also records the document key.
func ParseFile(r io.Reader, key string) (*model.ParsedDocument, error) {
	doc, err := Parse(r)
	if err != nil {
		return nil, err
	}
	doc.Key = key
	return doc, nil
}

// normalizeText collapses intra-line whitespace while preserving line breaks
// inserted at paragraph boundaries.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if l := normalizeSpace(line); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
