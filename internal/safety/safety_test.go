package safety

import "testing"

func TestSanitize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "plain filename", in: "hello.txt", want: "hello.txt", ok: true},
		{name: "leading slash stripped", in: "/hello.txt", want: "hello.txt", ok: true},
		{name: "many leading slashes stripped", in: "///hello.txt", want: "hello.txt", ok: true},
		{name: "nested path allowed", in: "a/b/c.txt", want: "a/b/c.txt", ok: true},
		{name: "traversal rejected", in: "../etc/passwd", want: "", ok: false},
		{name: "traversal after slash strip rejected", in: "/../../etc/shadow", want: "", ok: false},
		{name: "dotdot substring rejected even mid-token", in: "foo..bar", want: "", ok: false},
		{name: "empty string allowed", in: "", want: "", ok: true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := Sanitize(c.in)
			if ok != c.ok {
				t.Fatalf("ok = %v, want %v", ok, c.ok)
			}
			if ok && got != c.want {
				t.Fatalf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{"hello.txt", "/a/b.txt", "///x", "", "no/leading/slash"}
	for _, in := range inputs {
		first, ok := Sanitize(in)
		if !ok {
			continue
		}
		second, ok2 := Sanitize(first)
		if !ok2 || second != first {
			t.Fatalf("sanitize(sanitize(%q)) = (%q, %v), want (%q, true)", in, second, ok2, first)
		}
	}
}

func TestSanitizeNeverLeadsWithSlashOrContainsDotDot(t *testing.T) {
	inputs := []string{"/a", "//b", "../c", "/../d", "e..f", "g/h", ""}
	for _, in := range inputs {
		got, ok := Sanitize(in)
		if !ok {
			continue
		}
		if len(got) > 0 && got[0] == '/' {
			t.Fatalf("sanitize(%q) = %q starts with /", in, got)
		}
		if containsDotDot(got) {
			t.Fatalf("sanitize(%q) = %q contains ..", in, got)
		}
	}
}

func containsDotDot(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '.' && s[i+1] == '.' {
			return true
		}
	}
	return false
}
