package oracle

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// ErrMalformedOutput signals that sanitized model output does not decode into
// the shape the calling stage expects.
var ErrMalformedOutput = eris.New("malformed model output")

// Decode sanitizes raw and decodes it as a single JSON object into v. Unknown
// fields and trailing data are rejected; the caller checks required fields.
func Decode(raw string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(Sanitize(raw))))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return eris.Wrapf(ErrMalformedOutput, "oracle: decode: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return eris.Wrap(ErrMalformedOutput, "oracle: decode: trailing data after object")
	}
	return nil
}

// Missing builds a malformed-output error naming absent required fields.
func Missing(fields ...string) error {
	return eris.Wrapf(ErrMalformedOutput, "oracle: decode: missing required fields %v", fields)
}
