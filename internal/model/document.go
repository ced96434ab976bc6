package model

import "strings"

// ParsedDocument holds the text and metadata extracted from a TEI XML file.
type ParsedDocument struct {
	Key      string   `json:"key"`
	Title    string   `json:"title,omitempty"`
	Authors  []string `json:"authors,omitempty"`
	Year     string   `json:"year,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
	Body     string   `json:"body"`
}

// FullText returns the document text sent to the language model, with the
// abstract and body under labeled section headers.
func (d *ParsedDocument) FullText() string {
	var b strings.Builder
	if d.Abstract != "" {
		b.WriteString("ABSTRACT:\n")
		b.WriteString(d.Abstract)
		b.WriteString("\n\n")
	}
	b.WriteString("FULL TEXT:\n")
	b.WriteString(d.Body)
	return b.String()
}
