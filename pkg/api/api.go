// Package api defines the JSON bodies of the whiteboard HTTP API
package api

import (
	"time"

	"github.com/nainya/boardstore/pkg/board"
)

// Request headers carrying caller identity
const (
	HeaderUserID   = "X-User-ID"
	HeaderTenantID = "X-Tenant-ID"
)

// Error codes returned in ErrorResponse.Code
const (
	CodeNotFound         = "not_found"
	CodeOutOfRange       = "out_of_range"
	CodeInvalidRequest   = "invalid_request"
	CodeStoreUnavailable = "store_unavailable"
	CodeRateLimited      = "rate_limited"
	CodeInternal         = "internal"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateRequest is the body of POST /whiteboard/create
type CreateRequest struct {
	Name string `json:"name" validate:"required,min=1,max=120"`
}

// UpdateRequest is the body of PUT /whiteboard/update/{id}
type UpdateRequest struct {
	Data string `json:"data" validate:"required,startswith=data:"`
}

// Whiteboard is returned by create and get
type Whiteboard struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner,omitempty"`
	Data      string    `json:"data,omitempty"`
	MIMEType  string    `json:"mimeType,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Version is a history entry. Data is only set when requested.
type Version struct {
	Index        int       `json:"index"`
	CreatedAt    time.Time `json:"createdAt"`
	Author       string    `json:"author,omitempty"`
	RestoredFrom *int      `json:"restoredFrom,omitempty"`
	Data         string    `json:"data,omitempty"`
}

// WriteResponse is returned by update and restore
type WriteResponse struct {
	Success bool `json:"success"`
	Version
}

func FromWhiteboard(wb *board.Whiteboard, withData bool) Whiteboard {
	out := Whiteboard{
		ID:        wb.ID,
		Name:      wb.Name,
		Owner:     wb.Owner,
		MIMEType:  wb.Current.MIMEType,
		CreatedAt: wb.CreatedAt,
		UpdatedAt: wb.Current.UpdatedAt,
	}
	if withData {
		out.Data = wb.Current.Data
	}
	return out
}

func (w Whiteboard) ToBoard() *board.Whiteboard {
	return &board.Whiteboard{
		ID:        w.ID,
		Name:      w.Name,
		Owner:     w.Owner,
		CreatedAt: w.CreatedAt,
		Current: board.Snapshot{
			Data:      w.Data,
			MIMEType:  w.MIMEType,
			UpdatedAt: w.UpdatedAt,
		},
	}
}

func FromVersion(v *board.SnapshotVersion, withData bool) Version {
	out := Version{
		Index:        v.Index,
		CreatedAt:    v.CreatedAt,
		Author:       v.Author,
		RestoredFrom: v.RestoredFrom,
	}
	if withData {
		out.Data = v.Data
	}
	return out
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
