package lexer

import (
	"testing"
)

// TestSplitRecordQuotedNewline implements spec.md §8 scenario S2: a
// quoted newline survives as part of the field instead of splitting the
// record.
func TestSplitRecordQuotedNewline(t *testing.T) {
	line := []byte("ALPHA,\"line1\nline2\",1970-01-01T00:00:00.000000Z")
	fields, err := SplitRecord(line, ',')
	if err != nil {
		t.Fatalf("SplitRecord: %v", err)
	}
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	if got := string(fields[1]); got != "line1\nline2" {
		t.Errorf("expected field 1 = %q, got %q", "line1\nline2", got)
	}
}

func TestSplitRecordEscapedQuote(t *testing.T) {
	fields, err := SplitRecord([]byte(`a,"say ""hi""",c`), ',')
	if err != nil {
		t.Fatalf("SplitRecord: %v", err)
	}
	if got := string(fields[1]); got != `say "hi"` {
		t.Errorf("expected %q, got %q", `say "hi"`, got)
	}
}

func TestSplitRecordUnterminatedQuote(t *testing.T) {
	_, err := SplitRecord([]byte(`a,"unterminated`), ',')
	if err != ErrUnterminatedQuote {
		t.Fatalf("expected ErrUnterminatedQuote, got %v", err)
	}
}

func TestFindRecordEndHonorsQuotedNewline(t *testing.T) {
	data := []byte("a,\"b\nc\",d\nnext-row")
	end, unterminated := FindRecordEnd(data)
	if unterminated {
		t.Fatal("expected a terminated record")
	}
	if string(data[:end]) != "a,\"b\nc\",d" {
		t.Errorf("expected record to stop before the real newline, got %q", data[:end])
	}
}

func TestFindRecordEndUnterminatedAtEOF(t *testing.T) {
	data := []byte(`a,"still open`)
	end, unterminated := FindRecordEnd(data)
	if !unterminated {
		t.Fatal("expected unterminated=true")
	}
	if end != len(data) {
		t.Errorf("expected end=%d, got %d", len(data), end)
	}
}
