package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nainya/boardstore/pkg/canvas"
	"github.com/nainya/boardstore/pkg/session"
	"github.com/nainya/boardstore/pkg/store"
)

// script is the stroke file replayed by the draw command
type script struct {
	Width   int      `json:"width,omitempty"`
	Height  int      `json:"height,omitempty"`
	Strokes []stroke `json:"strokes"`
}

type stroke struct {
	Color  string       `json:"color,omitempty"`
	Width  float64      `json:"width,omitempty"`
	Eraser bool         `json:"eraser,omitempty"`
	Points [][2]float64 `json:"points"`
}

func parseScript(r io.Reader) (*script, error) {
	var s script
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("stroke file: %w", err)
	}
	for i, st := range s.Strokes {
		if len(st.Points) == 0 {
			return nil, fmt.Errorf("stroke file: stroke %d has no points", i)
		}
	}
	return &s, nil
}

// draw opens a session on id, replays every stroke and waits until all of
// them are committed. It returns the number of strokes committed.
func draw(ctx context.Context, st store.Store, id string, s *script, opts session.Options, out io.Writer) (int, error) {
	if s.Width > 0 {
		opts.Width = s.Width
	}
	if s.Height > 0 {
		opts.Height = s.Height
	}

	sess, err := session.Open(ctx, st, id, opts)
	if err != nil {
		return 0, err
	}
	defer sess.Close()
	for _, w := range sess.Warnings() {
		fmt.Fprintf(out, "warning: %s\n", w)
	}

	before, err := sess.Versions(ctx)
	if err != nil {
		return 0, err
	}

	for i, stk := range s.Strokes {
		switch {
		case stk.Eraser:
			sess.UseEraser()
		case stk.Color != "":
			if err := sess.SetColor(stk.Color); err != nil {
				return 0, fmt.Errorf("stroke %d: %w", i, err)
			}
		}
		if stk.Width > 0 {
			if err := sess.SetWidth(stk.Width); err != nil {
				return 0, fmt.Errorf("stroke %d: %w", i, err)
			}
		}

		sess.Begin(canvas.Point{X: stk.Points[0][0], Y: stk.Points[0][1]})
		for _, p := range stk.Points[1:] {
			sess.Extend(canvas.Point{X: p[0], Y: p[1]})
		}
		if err := sess.End(); err != nil {
			return 0, fmt.Errorf("stroke %d: %w", i, err)
		}
	}

	if err := sess.Wait(ctx); err != nil {
		return 0, err
	}
	if err := sess.Err(); err != nil {
		return 0, fmt.Errorf("commit failed: %w", err)
	}

	after, err := sess.Versions(ctx)
	if err != nil {
		return 0, err
	}
	return len(after) - len(before), nil
}
