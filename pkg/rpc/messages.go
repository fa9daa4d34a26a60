// ABOUTME: Request and response messages of the whiteboard.v1.SnapshotStore gRPC service
// ABOUTME: Messages travel as JSON using the codec registered in codec.go

package rpc

import (
	"time"

	"github.com/nainya/boardstore/pkg/board"
)

type CreateRequest struct {
	Name  string `json:"name"`
	Owner string `json:"owner,omitempty"`
}

type CreateResponse struct {
	Whiteboard Whiteboard `json:"whiteboard"`
}

type ListRequest struct{}

type ListResponse struct {
	Whiteboards []board.Summary `json:"whiteboards"`
}

type GetRequest struct {
	ID string `json:"id"`
}

type GetResponse struct {
	Whiteboard Whiteboard `json:"whiteboard"`
}

type GetCurrentRequest struct {
	ID string `json:"id"`
}

type GetCurrentResponse struct {
	Snapshot Snapshot `json:"snapshot"`
}

type PutCurrentRequest struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

type PutCurrentResponse struct {
	Version Version `json:"version"`
}

type ListVersionsRequest struct {
	ID string `json:"id"`
}

type ListVersionsResponse struct {
	Versions []Version `json:"versions"`
}

type RestoreRequest struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
}

type RestoreResponse struct {
	Version Version `json:"version"`
}

// Whiteboard is the wire form of board.Whiteboard
type Whiteboard struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner,omitempty"`
	Current   Snapshot  `json:"current"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is the wire form of board.Snapshot
type Snapshot struct {
	Data      string    `json:"data"`
	MIMEType  string    `json:"mimeType,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Version is the wire form of board.SnapshotVersion
type Version struct {
	Index        int       `json:"index"`
	Data         string    `json:"data"`
	CreatedAt    time.Time `json:"createdAt"`
	Author       string    `json:"author,omitempty"`
	RestoredFrom *int      `json:"restoredFrom,omitempty"`
}

func FromWhiteboard(wb *board.Whiteboard) Whiteboard {
	return Whiteboard{
		ID:        wb.ID,
		Name:      wb.Name,
		Owner:     wb.Owner,
		Current:   FromSnapshot(&wb.Current),
		CreatedAt: wb.CreatedAt,
	}
}

func (w Whiteboard) ToBoard() *board.Whiteboard {
	return &board.Whiteboard{
		ID:        w.ID,
		Name:      w.Name,
		Owner:     w.Owner,
		Current:   *w.Current.ToBoard(),
		CreatedAt: w.CreatedAt,
	}
}

func FromSnapshot(s *board.Snapshot) Snapshot {
	return Snapshot{Data: s.Data, MIMEType: s.MIMEType, UpdatedAt: s.UpdatedAt}
}

func (s Snapshot) ToBoard() *board.Snapshot {
	return &board.Snapshot{Data: s.Data, MIMEType: s.MIMEType, UpdatedAt: s.UpdatedAt}
}

func FromVersion(v *board.SnapshotVersion) Version {
	return Version{
		Index:        v.Index,
		Data:         v.Data,
		CreatedAt:    v.CreatedAt,
		Author:       v.Author,
		RestoredFrom: v.RestoredFrom,
	}
}

func (v Version) ToBoard() *board.SnapshotVersion {
	return &board.SnapshotVersion{
		Index:        v.Index,
		Data:         v.Data,
		CreatedAt:    v.CreatedAt,
		Author:       v.Author,
		RestoredFrom: v.RestoredFrom,
	}
}
