// Package serialiser implements the Serialiser external contract of
// spec.md §4.1: canonical, order-preserving byte encodings per FieldType,
// their inverse, and the heuristic guess-from-string classifier used by
// the schema engine's *_detection flags.
package serialiser

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/puer99miss/Xapiand/internal/fieldtype"
	"github.com/puer99miss/Xapiand/internal/value"
)

// Serialise converts v into the canonical byte representation for t. For
// the ordered types (integer, positive, floating, date, datetime, time,
// timedelta, uuid) the result sorts lexicographically the same way the
// source values compare, so value slots can be range-scanned directly.
func Serialise(t fieldtype.FieldType, v value.Value) ([]byte, error) {
	switch t {
	case fieldtype.Boolean:
		b, ok := v.Bool()
		if !ok {
			return nil, fmt.Errorf("serialiser: boolean: not a bool")
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case fieldtype.Integer:
		i, ok := v.IntS()
		if !ok {
			f, ferr := v.AsNumber()
			if ferr != nil {
				return nil, fmt.Errorf("serialiser: integer: %w", ferr)
			}
			i = int64(f)
		}
		return serialiseInt64(i), nil
	case fieldtype.Positive:
		u, ok := v.IntU()
		if !ok {
			f, ferr := v.AsNumber()
			if ferr != nil || f < 0 {
				return nil, fmt.Errorf("serialiser: positive: value must be non-negative")
			}
			u = uint64(f)
		}
		return serialiseUint64(u), nil
	case fieldtype.Floating:
		f, err := v.AsNumber()
		if err != nil {
			return nil, fmt.Errorf("serialiser: floating: %w", err)
		}
		return serialiseFloat64(f), nil
	case fieldtype.Date, fieldtype.DateTime:
		ts, err := valueToTime(v)
		if err != nil {
			return nil, fmt.Errorf("serialiser: %s: %w", t, err)
		}
		return serialiseInt64(ts.UTC().UnixNano()), nil
	case fieldtype.Time, fieldtype.TimeDelta:
		secs, err := valueToSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("serialiser: %s: %w", t, err)
		}
		return serialiseInt64(secs), nil
	case fieldtype.UUID:
		s, ok := v.String()
		if !ok {
			return nil, fmt.Errorf("serialiser: uuid: not a string")
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("serialiser: uuid: %w", err)
		}
		b := id[:]
		return append([]byte(nil), b...), nil
	case fieldtype.Keyword, fieldtype.Text, fieldtype.StringT, fieldtype.Geo, fieldtype.Script, fieldtype.Foreign:
		s, ok := v.String()
		if !ok {
			b, err := value.ToJSON(v)
			if err != nil {
				return nil, fmt.Errorf("serialiser: %s: %w", t, err)
			}
			return b, nil
		}
		return []byte(s), nil
	default:
		return nil, fmt.Errorf("serialiser: unsupported type %s", t)
	}
}

// Unserialise is the inverse of Serialise.
func Unserialise(t fieldtype.FieldType, b []byte) (value.Value, error) {
	switch t {
	case fieldtype.Boolean:
		if len(b) != 1 {
			return value.Nil(), fmt.Errorf("serialiser: boolean: bad length %d", len(b))
		}
		return value.Bool(b[0] != 0), nil
	case fieldtype.Integer:
		return value.IntS(unserialiseInt64(b)), nil
	case fieldtype.Positive:
		return value.IntU(unserialiseUint64(b)), nil
	case fieldtype.Floating:
		return value.Float(unserialiseFloat64(b)), nil
	case fieldtype.Date, fieldtype.DateTime:
		nanos := unserialiseInt64(b)
		return value.String(time.Unix(0, nanos).UTC().Format(time.RFC3339Nano)), nil
	case fieldtype.Time, fieldtype.TimeDelta:
		secs := unserialiseInt64(b)
		return value.IntS(secs), nil
	case fieldtype.UUID:
		if len(b) != 16 {
			return value.Nil(), fmt.Errorf("serialiser: uuid: bad length %d", len(b))
		}
		var id uuid.UUID
		copy(id[:], b)
		return value.String(id.String()), nil
	case fieldtype.Keyword, fieldtype.Text, fieldtype.StringT, fieldtype.Geo, fieldtype.Script, fieldtype.Foreign:
		return value.String(string(b)), nil
	default:
		return value.Nil(), fmt.Errorf("serialiser: unsupported type %s", t)
	}
}

// serialiseInt64 flips the sign bit so two's-complement negative numbers
// still sort before positive ones in a big-endian byte comparison.
func serialiseInt64(i int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(i)^(1<<63))
	return buf
}

func unserialiseInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63))
}

func serialiseUint64(u uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u)
	return buf
}

func unserialiseUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// serialiseFloat64 produces a sortable encoding: flip the sign bit, and
// for negative numbers flip every other bit too, so IEEE-754 bit patterns
// compare the same way the floats themselves order.
func serialiseFloat64(f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

func unserialiseFloat64(b []byte) float64 {
	if len(b) != 8 {
		return 0
	}
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}

func valueToTime(v value.Value) (time.Time, error) {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.String()
		return parseISO8601(s)
	case value.KindIntS, value.KindIntU, value.KindFloat:
		n, _ := v.AsNumber()
		return time.Unix(int64(n), 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("cannot coerce %s to a date", v.Kind())
	}
}

func valueToSeconds(v value.Value) (int64, error) {
	switch v.Kind() {
	case value.KindIntS, value.KindIntU, value.KindFloat:
		n, _ := v.AsNumber()
		return int64(n), nil
	case value.KindString:
		s, _ := v.String()
		d, err := time.ParseDuration(s)
		if err == nil {
			return int64(d.Seconds()), nil
		}
		t, err := parseISO8601("0000-01-01T" + s + "Z")
		if err == nil {
			return t.Unix() - time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), nil
		}
		return 0, fmt.Errorf("cannot parse time/timedelta %q", s)
	default:
		return 0, fmt.Errorf("cannot coerce %s to time/timedelta", v.Kind())
	}
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseISO8601(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

var (
	uuidRe     = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	boolRe     = regexp.MustCompile(`^(?i:true|false)$`)
	timeDeltaRe = regexp.MustCompile(`^[+-]?\d+(\.\d+)?(ns|us|µs|ms|s|m|h)$`)
)

// PossiblyUUID is a cheap syntactic check (no allocation-heavy parse)
// used to steer the dynamic-field resolver before paying for a real
// uuid.Parse (spec.md §4.1, §4.4).
func PossiblyUUID(s string) bool {
	return uuidRe.MatchString(s)
}

// GuessSerialise classifies a raw string value as UUID, boolean, geo,
// datetime or timedelta, otherwise falling back to keyword/text, and
// returns its serialised form alongside the inferred type. Geo is
// detected by an EWKT-looking prefix (looksLikeEWKT) and returned as the
// raw string bytes; the WKT itself is not parsed (spec.md §1 treats EWKT
// parsing as an assumed-available geometry primitive).
func GuessSerialise(s string) (fieldtype.FieldType, []byte, error) {
	switch {
	case PossiblyUUID(s):
		if id, err := uuid.Parse(s); err == nil {
			b := id[:]
			return fieldtype.UUID, append([]byte(nil), b...), nil
		}
	case boolRe.MatchString(s):
		b, _ := strconv.ParseBool(s)
		by, _ := Serialise(fieldtype.Boolean, value.Bool(b))
		return fieldtype.Boolean, by, nil
	case looksLikeEWKT(s):
		return fieldtype.Geo, []byte(s), nil
	}
	if _, err := parseISO8601(s); err == nil {
		by, _ := Serialise(fieldtype.DateTime, value.String(s))
		return fieldtype.DateTime, by, nil
	}
	if timeDeltaRe.MatchString(s) {
		by, err := Serialise(fieldtype.TimeDelta, value.String(s))
		if err == nil {
			return fieldtype.TimeDelta, by, nil
		}
	}
	// Fall back: short, space-free tokens are keywords; everything else
	// is free text.
	if !strings.ContainsAny(s, " \t\n") && len(s) <= 64 {
		by, _ := Serialise(fieldtype.Keyword, value.String(s))
		return fieldtype.Keyword, by, nil
	}
	by, _ := Serialise(fieldtype.Text, value.String(s))
	return fieldtype.Text, by, nil
}

var ewktPrefixes = []string{"POINT", "LINESTRING", "POLYGON", "MULTIPOINT", "MULTIPOLYGON", "MULTILINESTRING", "GEOMETRYCOLLECTION", "CHULL", "CIRCLE"}

func looksLikeEWKT(s string) bool {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for _, p := range ewktPrefixes {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}
