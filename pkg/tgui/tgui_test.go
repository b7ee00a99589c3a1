package tgui

import "testing"

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"milk", 10, "milk"},
		{"milk", 4, "milk"},
		{"buy milk", 3, "buy…"},
		{"ខ្ញុំ", 2, "ខ្…"},
		{"anything", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestHTMLBuilders(t *testing.T) {
	t.Parallel()
	got := Lines(
		Line(B("Usage"), Raw(" "), Code("/delete <id>")),
		"",
		JoinH(" ", I("a&b"), "", Esc("<x>")),
	)
	want := "<b>Usage</b> <code>/delete &lt;id&gt;</code>\n\n<i>a&amp;b</i> &lt;x&gt;"
	if got.String() != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}
