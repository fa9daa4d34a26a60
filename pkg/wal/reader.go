package wal

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
)

// Reader reads WAL entries from segment files in order. A corrupt or
// truncated entry ends the current segment; reading resumes at the next one.
type Reader struct {
	files   []string
	current int
	fd      *os.File
	offset  int64

	// Damaged counts segments whose tail was unreadable
	Damaged int
}

// NewReader creates a WAL reader for the given log files
func NewReader(files []string) *Reader {
	return &Reader{files: files}
}

// Open opens the reader
func (r *Reader) Open() error {
	if len(r.files) == 0 {
		return ErrLogNotFound
	}

	fd, err := os.Open(r.files[0])
	if err != nil {
		return err
	}

	r.fd = fd
	r.current = 0
	r.offset = 0
	return nil
}

// Next reads the next entry. It returns io.EOF after the last segment.
func (r *Reader) Next() (*Entry, error) {
	for {
		entry, err := r.readEntryFromCurrent()
		if err == nil {
			return entry, nil
		}

		switch {
		case err == io.EOF:
		case errors.Is(err, ErrCorrupted), errors.Is(err, ErrTruncated), err == io.ErrUnexpectedEOF:
			r.Damaged++
		default:
			return nil, err
		}

		if err := r.nextFile(); err != nil {
			return nil, err
		}
	}
}

// readEntryFromCurrent reads an entry from the current file
func (r *Reader) readEntryFromCurrent() (*Entry, error) {
	if r.fd == nil {
		return nil, io.EOF
	}

	entry, n, err := readEntry(r.fd)
	if err != nil {
		return nil, err
	}
	r.offset += int64(n)
	return entry, nil
}

// readEntry reads one framed entry and returns the bytes consumed
func readEntry(rd io.Reader) (*Entry, int, error) {
	header := make([]byte, EntryHeaderSize)
	if _, err := io.ReadFull(rd, header); err != nil {
		return nil, 0, err
	}

	keyLen := binary.LittleEndian.Uint32(header[24:28])
	valLen := binary.LittleEndian.Uint32(header[28:32])
	if uint64(keyLen)+uint64(valLen) > MaxEntryPayload {
		return nil, 0, ErrCorrupted
	}

	dataLen := int(keyLen) + int(valLen) + 4
	data := make([]byte, EntryHeaderSize+dataLen)
	copy(data, header)
	if _, err := io.ReadFull(rd, data[EntryHeaderSize:]); err != nil {
		return nil, 0, ErrTruncated
	}

	entry, err := DecodeEntry(data)
	if err != nil {
		return nil, 0, err
	}
	return entry, len(data), nil
}

// nextFile moves to the next log file
func (r *Reader) nextFile() error {
	if r.fd != nil {
		r.fd.Close()
		r.fd = nil
	}

	r.current++
	if r.current >= len(r.files) {
		return io.EOF
	}

	fd, err := os.Open(r.files[r.current])
	if err != nil {
		return err
	}

	r.fd = fd
	r.offset = 0
	return nil
}

// Close closes the reader
func (r *Reader) Close() error {
	if r.fd != nil {
		err := r.fd.Close()
		r.fd = nil
		return err
	}
	return nil
}

// ReadAll reads all entries from all files
func ReadAll(files []string) ([]*Entry, error) {
	reader := NewReader(files)
	if err := reader.Open(); err != nil {
		return nil, err
	}
	defer reader.Close()

	var entries []*Entry
	for {
		entry, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
