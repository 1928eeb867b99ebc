package importjob

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampAdapter converts raw timestamp bytes into microseconds since
// the epoch (spec GLOSSARY "TimestampAdapter").
type TimestampAdapter interface {
	Parse(raw []byte) (int64, error)
}

// MicrosISO8601 parses QuestDB-style ISO-8601 timestamps with microsecond
// precision, e.g. "1970-01-01T00:00:36.000000Z", the format used by every
// worked example in spec.md §8.
type MicrosISO8601 struct{}

func (MicrosISO8601) Parse(raw []byte) (int64, error) {
	s := string(raw)
	t, err := time.Parse("2006-01-02T15:04:05.000000Z", s)
	if err != nil {
		// Fall back to second precision for inputs without fractional digits.
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return 0, fmt.Errorf("bad timestamp %q: %w", s, err)
		}
	}
	return t.UnixMicro(), nil
}

// PartitionKey identifies the time bucket a row belongs to.
type PartitionKey string

// DerivePartitionKey buckets a microsecond timestamp under scheme.
func DerivePartitionKey(scheme PartitionScheme, tsMicros int64) PartitionKey {
	if scheme == PartitionNone {
		return PartitionKey("default")
	}
	t := time.UnixMicro(tsMicros).UTC()
	switch scheme {
	case PartitionHour:
		return PartitionKey(t.Format("2006-01-02T15"))
	case PartitionDay:
		return PartitionKey(t.Format("2006-01-02"))
	case PartitionMonth:
		return PartitionKey(t.Format("2006-01"))
	case PartitionYear:
		return PartitionKey(t.Format("2006"))
	default:
		return PartitionKey("default")
	}
}

// RowSink receives one field write at a time from a TypeAdapter. Shadow
// tables implement this interface so TypeAdapter.Write never needs to
// know about the on-disk column layout.
type RowSink interface {
	SetNull(col int)
	SetInt64(col int, v int64)
	SetFloat64(col int, v float64)
	SetBool(col int, v bool)
	SetString(col int, v string)
	// SetSymbol interns v into the column's local dictionary and stores
	// the resulting local key.
	SetSymbol(col int, v string)
}

// TypeAdapter parses one field's raw bytes and writes it into sink at col,
// matching spec §4.3's "TypeAdapter.write(row, fieldIndex, bytes[,
// utf8Sink])" contract. utf8Sink is a reusable scratch buffer for the
// string-producing types (STRING/SYMBOL/TIMESTAMP/DATE).
type TypeAdapter interface {
	Write(sink RowSink, col int, raw []byte, utf8Sink *[]byte) error
}

// AdapterFor returns the TypeAdapter for a schema column type.
func AdapterFor(t ColumnType) TypeAdapter {
	switch t {
	case ColInt, ColLong:
		return intAdapter{}
	case ColDouble:
		return doubleAdapter{}
	case ColBoolean:
		return boolAdapter{}
	case ColString:
		return stringAdapter{}
	case ColSymbol:
		return symbolAdapter{}
	case ColTimestamp, ColDate:
		return timestampAdapter{}
	default:
		return stringAdapter{}
	}
}

type intAdapter struct{}

func (intAdapter) Write(sink RowSink, col int, raw []byte, _ *[]byte) error {
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("bad int %q: %w", raw, err)
	}
	sink.SetInt64(col, v)
	return nil
}

type doubleAdapter struct{}

func (doubleAdapter) Write(sink RowSink, col int, raw []byte, _ *[]byte) error {
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return fmt.Errorf("bad double %q: %w", raw, err)
	}
	sink.SetFloat64(col, v)
	return nil
}

type boolAdapter struct{}

func (boolAdapter) Write(sink RowSink, col int, raw []byte, _ *[]byte) error {
	s := strings.ToLower(string(raw))
	switch s {
	case "true", "t", "1":
		sink.SetBool(col, true)
	case "false", "f", "0":
		sink.SetBool(col, false)
	default:
		return fmt.Errorf("bad boolean %q", raw)
	}
	return nil
}

type stringAdapter struct{}

func (stringAdapter) Write(sink RowSink, col int, raw []byte, utf8Sink *[]byte) error {
	*utf8Sink = append((*utf8Sink)[:0], raw...)
	sink.SetString(col, string(*utf8Sink))
	return nil
}

type symbolAdapter struct{}

func (symbolAdapter) Write(sink RowSink, col int, raw []byte, utf8Sink *[]byte) error {
	*utf8Sink = append((*utf8Sink)[:0], raw...)
	sink.SetSymbol(col, string(*utf8Sink))
	return nil
}

type timestampAdapter struct{}

func (timestampAdapter) Write(sink RowSink, col int, raw []byte, utf8Sink *[]byte) error {
	*utf8Sink = append((*utf8Sink)[:0], raw...)
	micros, err := (MicrosISO8601{}).Parse(*utf8Sink)
	if err != nil {
		return err
	}
	sink.SetInt64(col, micros)
	return nil
}
