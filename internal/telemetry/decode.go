package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedLine is returned when a line holds no decodable JSON object.
var ErrMalformedLine = errors.New("telemetry: malformed line")

// prefixDelimiter separates an optional timestamp prefix from the payload,
// e.g. "12:00:01 -> {...}".
const prefixDelimiter = "->"

// ExtractJSON isolates the JSON object in a raw line. A "->" before the
// first '{' ends the prefix; one inside the object is payload.
func ExtractJSON(line string) (string, bool) {
	candidate := line
	if i := strings.Index(candidate, prefixDelimiter); i >= 0 && i < strings.IndexByte(candidate, '{') {
		candidate = candidate[i+len(prefixDelimiter):]
	}
	i := strings.IndexByte(candidate, '{')
	if i < 0 {
		return "", false
	}
	return strings.TrimSpace(candidate[i:]), true
}

// ParseLine decodes a single telemetry line. Missing or non-numeric fields
// become zero; only a missing object or a JSON syntax error is reported, as
// ErrMalformedLine.
func ParseLine(line string) (Record, error) {
	payload, ok := ExtractJSON(line)
	if !ok {
		return Record{}, fmt.Errorf("%w: no JSON object in %q", ErrMalformedLine, truncate(line, 64))
	}

	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	return FromFields(fields), nil
}

// FromFields builds a record from already decoded values using the same
// default-to-zero policy as ParseLine.
func FromFields(fields map[string]any) Record {
	return Record{
		Altitude:    numberOr(fields[FieldAltitude], 0),
		GPSAltitude: numberOr(fields[FieldGPSAltitude], 0),
		Latitude:    numberOr(fields[FieldLatitude], 0),
		Longitude:   numberOr(fields[FieldLongitude], 0),
		AccelX:      numberOr(fields[FieldAccelX], 0),
		AccelY:      numberOr(fields[FieldAccelY], 0),
		AccelZ:      numberOr(fields[FieldAccelZ], 0),
		GyroX:       numberOr(fields[FieldGyroX], 0),
		GyroY:       numberOr(fields[FieldGyroY], 0),
		GyroZ:       numberOr(fields[FieldGyroZ], 0),
		Angle:       numberOr(fields[FieldAngle], 0),
		Status:      int(numberOr(fields[FieldStatus], 0)),
	}
}

// numberOr coerces a decoded JSON value to a finite float64, substituting def
// for anything that is absent, non-numeric or not finite.
func numberOr(v any, def float64) float64 {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return def
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return def
		}
		f = parsed
	default:
		return def
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

// Marshal encodes the record with firmware field names, as persisted.
func (r Record) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
