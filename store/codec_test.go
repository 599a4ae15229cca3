package store

import (
	"strings"
	"testing"
)

func TestRawBytesMarshalJSONUsesNumericArray(t *testing.T) {
	b := RawBytes{0x01, 0x02, 0xff}
	out, err := b.MarshalJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := string(out)
	if !strings.Contains(got, `"type":"Buffer"`) {
		t.Fatalf("expected Buffer shape, got %s", got)
	}
	if !strings.Contains(got, `"data":[1,2,255]`) {
		t.Fatalf("expected numeric data array, got %s", got)
	}
}

func TestRawBytesRoundTrip(t *testing.T) {
	want := RawBytes{0x10, 0x20, 0x30}
	out, err := want.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got RawBytes
	if err := got.UnmarshalJSON(out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("round trip mismatch: got %v want %v", got, want)
	}
}

func TestRawBytesUnmarshalPlainArray(t *testing.T) {
	var got RawBytes
	if err := got.UnmarshalJSON([]byte("[5,6,7]")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := RawBytes{5, 6, 7}
	if string(got) != string(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestRawBytesMarshalNil(t *testing.T) {
	var b RawBytes
	out, err := b.MarshalJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "null" {
		t.Fatalf("expected null, got %s", out)
	}
}
