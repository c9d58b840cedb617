package pathcodec

import "testing"

// mirrors the teacher's TestPathEscapeUnescape table-driven style
// (git-backup's util_test.go), adapted to the mnemonic-token scheme.
func TestEncodeDecodeRoundtrip(t *testing.T) {
	var tests = []string{
		"hello",
		"hello world",
		"user:1",
		"a/b/c",
		"weird:id?*\\<>|\"%#&=+@ end",
		"",
		"мир",
		"a_b_c",
		"_COLON_literal",
	}

	for _, id := range tests {
		enc := EncodeID(id)
		dec, err := DecodeID(enc)
		if err != nil {
			t.Errorf("DecodeID(EncodeID(%q)=%q) failed: %v", id, enc, err)
			continue
		}
		if dec != id {
			t.Errorf("DecodeID(EncodeID(%q)) = %q, want %q", id, dec, id)
		}
	}
}

func TestSplitTableID(t *testing.T) {
	var tests = []struct {
		in, table, id string
	}{
		{"user:1", "user", "1"},
		{"november", "", "november"},
		{"a:b:c", "a", "b:c"},
		{":leading", "", "leading"},
	}

	for _, tt := range tests {
		table, id := SplitTableID(tt.in)
		if table != tt.table || id != tt.id {
			t.Errorf("SplitTableID(%q) = %q, %q; want %q, %q", tt.in, table, id, tt.table, tt.id)
		}
	}
}

func TestDocPath(t *testing.T) {
	var tests = []struct{ dataDir, id, want string }{
		{"data", "user:1", "data/user/1.json"},
		{"data", "november", "data/november.json"},
		{"data", "user:a b", "data/user/a_SPACE_b.json"},
	}

	for _, tt := range tests {
		got := DocPath(tt.dataDir, tt.id)
		if got != tt.want {
			t.Errorf("DocPath(%q, %q) = %q, want %q", tt.dataDir, tt.id, got, tt.want)
		}
	}
}

func TestParseDocPathRoundtrip(t *testing.T) {
	var tests = []string{"user:1", "november", "user:a b", "tbl:weird?id"}

	for _, id := range tests {
		p := DocPath("data", id)
		got, err := ParseDocPath("data", p)
		if err != nil {
			t.Fatalf("ParseDocPath(%q) failed: %v", p, err)
		}
		if got != id {
			t.Errorf("ParseDocPath(DocPath(%q)) = %q, want %q", id, got, id)
		}
	}
}

func TestDecodeIDInvalid(t *testing.T) {
	_, err := DecodeID("hello_NOPE_world")
	if err == nil {
		t.Error("DecodeID with unknown token should fail")
	}
	var derr *DecodeError
	if !asDecodeError(err, &derr) {
		t.Errorf("expected *DecodeError, got %T", err)
	}
}

func asDecodeError(err error, target **DecodeError) bool {
	de, ok := err.(*DecodeError)
	if ok {
		*target = de
	}
	return ok
}
