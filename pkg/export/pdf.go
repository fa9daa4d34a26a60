// ABOUTME: PDF export of whiteboard snapshots
// ABOUTME: Each snapshot becomes one page scaled to fit with a caption line

package export

import (
	"bytes"
	"fmt"
	"image/png"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/nainya/boardstore/pkg/board"
	"github.com/nainya/boardstore/pkg/codec"
)

const (
	marginMM  = 10.0
	captionMM = 8.0
)

// Page is one snapshot to render
type Page struct {
	Title   string
	Caption string
	Payload string
}

// WritePDF renders pages to w. Payloads that cannot be decoded fail with an
// error wrapping board.ErrDecode.
func WritePDF(w io.Writer, pages ...Page) error {
	if len(pages) == 0 {
		return fmt.Errorf("%w: nothing to export", board.ErrInvalidInput)
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(pages[0].Title, true)
	pdf.SetCreator("boardstore", true)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetAutoPageBreak(false, 0)

	for i, p := range pages {
		payload, err := codec.Parse(p.Payload)
		if err != nil {
			return err
		}
		if payload.MIMEType != codec.MIMEType {
			return fmt.Errorf("%w: cannot export %q", board.ErrDecode, payload.MIMEType)
		}
		cfg, err := png.DecodeConfig(bytes.NewReader(payload.Data))
		if err != nil {
			return fmt.Errorf("%w: %v", board.ErrDecode, err)
		}

		orientation := "L"
		if cfg.Height > cfg.Width {
			orientation = "P"
		}
		pdf.AddPageFormat(orientation, pdf.GetPageSizeStr("A4"))
		pageW, pageH := pdf.GetPageSize()

		name := fmt.Sprintf("snapshot-%d", i)
		opt := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(name, opt, bytes.NewReader(payload.Data))

		x, y, w, h := fit(float64(cfg.Width), float64(cfg.Height), pageW, pageH-captionMM)
		pdf.ImageOptions(name, x, y, w, h, false, opt, 0, "")

		caption := p.Title
		if p.Caption != "" {
			caption += "  " + p.Caption
		}
		pdf.Text(marginMM, pageH-marginMM/2, pdf.UnicodeTranslatorFromDescriptor("")(caption))

		if err := pdf.Error(); err != nil {
			return fmt.Errorf("render page %d: %w", i, err)
		}
	}

	return pdf.Output(w)
}

// fit scales an imgW x imgH image into the page area inside the margins,
// keeping its aspect ratio and centering it
func fit(imgW, imgH, pageW, pageH float64) (x, y, w, h float64) {
	availW := pageW - 2*marginMM
	availH := pageH - 2*marginMM

	scale := availW / imgW
	if s := availH / imgH; s < scale {
		scale = s
	}
	w, h = imgW*scale, imgH*scale
	x = (pageW - w) / 2
	y = marginMM + (availH-h)/2
	return x, y, w, h
}

// SnapshotPage builds the page for a whiteboard's current snapshot
func SnapshotPage(wb *board.Whiteboard) Page {
	return Page{
		Title:   wb.Name,
		Caption: "current, " + wb.Current.UpdatedAt.Format("2006-01-02 15:04"),
		Payload: wb.Current.Data,
	}
}

// VersionPage builds the page for one history entry
func VersionPage(wb *board.Whiteboard, v *board.SnapshotVersion) Page {
	caption := fmt.Sprintf("version %d, %s", v.Index, v.CreatedAt.Format("2006-01-02 15:04"))
	if v.Author != "" {
		caption += " by " + v.Author
	}
	if v.RestoredFrom != nil {
		caption += fmt.Sprintf(" (restored from %d)", *v.RestoredFrom)
	}
	return Page{Title: wb.Name, Caption: caption, Payload: v.Data}
}
