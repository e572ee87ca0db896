package codegen

import (
	"bytes"
	"testing"
	"unicode/utf8"
)

func TestEncodeStringHello(t *testing.T) {
	// "hello" = z-chars 13 10 17 17 20 + pad 5, packed into two words
	// with the terminator bit on the second.
	got, err := encodeString("hello", 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x35, 0x51, 0xC6, 0x85}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeString(hello) = % x, want % x", got, want)
	}
}

func TestEncodeStringEmpty(t *testing.T) {
	got, err := encodeString("", 0)
	if err != nil {
		t.Fatal(err)
	}
	// One word of padding, terminator set: 5 5 5 -> 0x94A5.
	want := []byte{0x94, 0xA5}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeString(\"\") = % x, want % x", got, want)
	}
}

func TestEncodeStringTerminatorOnLastWordOnly(t *testing.T) {
	got, err := encodeString("abcdef", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("length = %d, want 4", len(got))
	}
	if got[0]&0x80 != 0 {
		t.Error("terminator bit set on non-final word")
	}
	if got[2]&0x80 == 0 {
		t.Error("terminator bit missing on final word")
	}
}

func TestEncodeStringUppercaseAndPunct(t *testing.T) {
	// 'A' shifts to alphabet 1, '!' to alphabet 2.
	zs, err := zchars("A!", 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint8{4, 6, 5, 20}
	if len(zs) != len(want) {
		t.Fatalf("zchars = %v, want %v", zs, want)
	}
	for i := range want {
		if zs[i] != want[i] {
			t.Fatalf("zchars = %v, want %v", zs, want)
		}
	}
}

func TestEncodeStringZSCIIEscape(t *testing.T) {
	// '@' (0x40) is in no alphabet and takes the 4 z-char escape.
	zs, err := zchars("@", 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint8{5, 6, 2, 0}
	if len(zs) != len(want) {
		t.Fatalf("zchars(@) = %v, want %v", zs, want)
	}
	for i := range want {
		if zs[i] != want[i] {
			t.Fatalf("zchars(@) = %v, want %v", zs, want)
		}
	}
}

func TestEncodeStringRejectsNonASCII(t *testing.T) {
	_, err := encodeString("café", 7)
	if err == nil {
		t.Fatal("expected error for non-ASCII character")
	}
	ee, ok := err.(*EncodingError)
	if !ok {
		t.Fatalf("error type = %T, want *EncodingError", err)
	}
	if ee.ID != 7 {
		t.Errorf("error ID = %d, want 7", ee.ID)
	}
}

func TestEncodeDictWordWidth(t *testing.T) {
	for _, word := range []string{"x", "go", "examine", "extraordinarily"} {
		got, err := encodeDictWord(word, V3, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != V3.DictTextBytes {
			t.Errorf("v3 %q encoded to %d bytes, want %d", word, len(got), V3.DictTextBytes)
		}
		got, err = encodeDictWord(word, V5, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != V5.DictTextBytes {
			t.Errorf("v5 %q encoded to %d bytes, want %d", word, len(got), V5.DictTextBytes)
		}
	}
}

func TestEncodeDictWordExact(t *testing.T) {
	// "go" = 12 20, padded with 5s across 6 z-chars for v3.
	got, err := encodeDictWord("go", V3, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x32, 0x85, 0x94, 0xA5}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeDictWord(go) = % x, want % x", got, want)
	}
}

func TestEncodeDictWordCaseInsensitive(t *testing.T) {
	a, err := encodeDictWord("Take", V3, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := encodeDictWord("take", V3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("Take and take encode differently: % x vs % x", a, b)
	}
}

func TestEncodeDictWordTruncates(t *testing.T) {
	// Truncation is at the z-char level, so long words sharing a v3
	// six-z-char prefix collide.
	a, err := encodeDictWord("northern", V3, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := encodeDictWord("northe", V3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("truncated forms differ: % x vs % x", a, b)
	}
}

func FuzzEncodeString(f *testing.F) {
	f.Add("hello world")
	f.Add("The Quick-Brown fox, 42!")
	f.Add("")
	f.Fuzz(func(t *testing.T, s string) {
		if !utf8.ValidString(s) {
			t.Skip()
		}
		got, err := encodeString(s, 0)
		if err != nil {
			return
		}
		if len(got) == 0 || len(got)%2 != 0 {
			t.Fatalf("encoded length %d not a positive word count", len(got))
		}
		for i := 0; i < len(got)-2; i += 2 {
			if got[i]&0x80 != 0 {
				t.Fatalf("terminator bit set at word %d of %d", i/2, len(got)/2)
			}
		}
		if got[len(got)-2]&0x80 == 0 {
			t.Fatal("terminator bit missing on final word")
		}
	})
}
