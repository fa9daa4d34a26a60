package export

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/nainya/boardstore/pkg/board"
	"github.com/nainya/boardstore/pkg/codec"
)

func TestWritePDF(t *testing.T) {
	wide, _ := codec.Blank(200, 100, "#ffffff")
	tall, _ := codec.Blank(100, 200, "#eeeeee")

	wb := &board.Whiteboard{Name: "Roadmap", Current: board.Snapshot{Data: wide, UpdatedAt: time.Now()}}
	from := 0
	v := &board.SnapshotVersion{Index: 1, Data: tall, CreatedAt: time.Now(), Author: "alice", RestoredFrom: &from}

	var buf bytes.Buffer
	if err := WritePDF(&buf, SnapshotPage(wb), VersionPage(wb, v)); err != nil {
		t.Fatalf("WritePDF failed: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Errorf("Output is not a PDF: %q", buf.Bytes()[:8])
	}
}

func TestWritePDFRejectsBadPayload(t *testing.T) {
	var buf bytes.Buffer
	err := WritePDF(&buf, Page{Title: "x", Payload: "data:image/png;base64,AAAA"})
	if !errors.Is(err, board.ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
	if err := WritePDF(&buf); !errors.Is(err, board.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestFitKeepsAspect(t *testing.T) {
	x, y, w, h := fit(1600, 900, 297, 210)
	if w/h < 1.77 || w/h > 1.78 {
		t.Errorf("Aspect ratio changed: %.3f", w/h)
	}
	if x < marginMM-0.01 || y < marginMM-0.01 || x+w > 297-marginMM+0.01 || y+h > 210-marginMM+0.01 {
		t.Errorf("Image outside margins: %.1f %.1f %.1f %.1f", x, y, w, h)
	}
}
