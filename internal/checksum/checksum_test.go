package checksum

import "testing"

func TestSumIsStable(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	if a != b {
		t.Errorf("Sum not deterministic: %q vs %q", a, b)
	}
	if a == Sum([]byte("hello!")) {
		t.Error("different content produced the same digest")
	}
}

func TestMatch(t *testing.T) {
	data := []byte("payload")
	if !Match(data, Sum(data)) {
		t.Error("digest of same content should match")
	}
	if Match(data, Sum([]byte("other"))) {
		t.Error("digest of other content should not match")
	}
	if Match(data, "") {
		t.Error("empty digest must never match")
	}
}
