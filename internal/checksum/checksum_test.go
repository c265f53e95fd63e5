package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Sum([]byte("abc")); got != want {
		t.Errorf("Sum = %q, want %q", got, want)
	}
}

func TestIfMatchRoundTrip(t *testing.T) {
	sum := Sum([]byte("x"))
	cases := map[string]string{
		ETag(sum):         sum,
		"W/" + ETag(sum):  sum,
		sum:               sum,
		"  " + ETag(sum):  sum,
		"*":               "",
		"":                "",
	}
	for in, want := range cases {
		if got := FromIfMatch(in); got != want {
			t.Errorf("FromIfMatch(%q) = %q, want %q", in, got, want)
		}
	}
}
