// ABOUTME: Data URL framing for snapshot payloads
// ABOUTME: Parses and formats data:<mime>;codec=<n>;base64,<body> strings

package codec

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/nainya/boardstore/pkg/board"
)

const (
	// MIMEType is the only image encoding produced by Encode
	MIMEType = "image/png"

	// Version is the codec version written into new payloads.
	// Payloads without a codec parameter are read as version 1.
	Version = 1

	dataPrefix = "data:"
	b64Marker  = ";base64,"
)

// Payload is a decoded data URL
type Payload struct {
	MIMEType     string
	CodecVersion int
	Data         []byte
}

// String formats the payload as a data URL
func (p Payload) String() string {
	var b strings.Builder
	b.WriteString(dataPrefix)
	b.WriteString(p.MIMEType)
	if p.CodecVersion > 0 {
		b.WriteString(";codec=")
		b.WriteString(strconv.Itoa(p.CodecVersion))
	}
	b.WriteString(b64Marker)
	b.WriteString(base64.StdEncoding.EncodeToString(p.Data))
	return b.String()
}

// Parse splits a data URL into its parts. Errors wrap board.ErrDecode.
func Parse(s string) (Payload, error) {
	if !strings.HasPrefix(s, dataPrefix) {
		return Payload{}, fmt.Errorf("%w: missing data: prefix", board.ErrDecode)
	}
	header, body, ok := strings.Cut(s[len(dataPrefix):], b64Marker)
	if !ok {
		return Payload{}, fmt.Errorf("%w: payload is not base64", board.ErrDecode)
	}

	params := strings.Split(header, ";")
	p := Payload{MIMEType: strings.ToLower(strings.TrimSpace(params[0])), CodecVersion: Version}
	for _, param := range params[1:] {
		key, val, _ := strings.Cut(param, "=")
		if strings.TrimSpace(key) != "codec" {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return Payload{}, fmt.Errorf("%w: bad codec parameter %q", board.ErrDecode, val)
		}
		p.CodecVersion = v
	}

	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", board.ErrDecode, err)
	}
	p.Data = data
	return p, nil
}

// MediaType returns the MIME type of a payload string, or "" when the string
// is not a data URL.
func MediaType(s string) string {
	if !strings.HasPrefix(s, dataPrefix) {
		return ""
	}
	header, _, ok := strings.Cut(s[len(dataPrefix):], b64Marker)
	if !ok {
		return ""
	}
	mt, _, _ := strings.Cut(header, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
