// Package raster renders PDF pages to PNG images using the poppler
// pdftoppm CLI tool.
package raster

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Page is one rendered PDF page.
type Page struct {
	Number int
	PNG    []byte
}

// Rasterizer renders PDFs via pdftoppm.
type Rasterizer struct {
	binPath string
	dpi     int
}

// New creates a Rasterizer. Empty binPath defaults to "pdftoppm"; a
// non-positive dpi defaults to 150.
func New(binPath string, dpi int) *Rasterizer {
	if binPath == "" {
		binPath = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 150
	}
	return &Rasterizer{binPath: binPath, dpi: dpi}
}

// Render rasterizes every page of the PDF into a temporary directory and
// returns the pages in order. The temporary files are removed before
// returning.
func (r *Rasterizer) Render(ctx context.Context, pdfPath string) ([]Page, error) {
	tmpDir, err := os.MkdirTemp("", "qex-raster-*")
	if err != nil {
		return nil, eris.Wrap(err, "raster: create temp dir")
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, r.binPath, "-png", "-r", strconv.Itoa(r.dpi), pdfPath, prefix)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "raster: pdftoppm failed for %s: %s", pdfPath, stderr.String())
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, eris.Wrap(err, "raster: read temp dir")
	}

	var pages []Page
	for _, e := range entries {
		num, ok := pageNumber(e.Name())
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(tmpDir, e.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "raster: read page %s", e.Name())
		}
		pages = append(pages, Page{Number: num, PNG: data})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })

	if len(pages) == 0 {
		return nil, eris.Errorf("raster: pdftoppm produced no pages for %s", pdfPath)
	}
	return pages, nil
}

// pageNumber parses "page-07.png" style output names. pdftoppm zero-pads the
// page index depending on document length.
func pageNumber(name string) (int, bool) {
	if !strings.HasPrefix(name, "page-") || !strings.HasSuffix(name, ".png") {
		return 0, false
	}
	numPart := strings.TrimSuffix(strings.TrimPrefix(name, "page-"), ".png")
	n, err := strconv.Atoi(numPart)
	if err != nil {
		return 0, false
	}
	return n, true
}
