package sanitize

import "testing"

func TestLabel(t *testing.T) {
	cases := []struct{ in, want string }{
		{in: "  Zona   Sul ", want: "Zona Sul"},
		{in: "<b>centro</b>", want: "centro"},
		{in: "&lt;script&gt;alert(1)&lt;/script&gt;litoral", want: "alert(1)litoral"},
		{in: "alto\tpadrão\n", want: "alto padrão"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		if got := Label(tc.in); got != tc.want {
			t.Errorf("Label(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTextKeepsInnerWhitespace(t *testing.T) {
	if got := Text("  line one\nline <i>two</i> "); got != "line one\nline two" {
		t.Fatalf("unexpected %q", got)
	}
}
