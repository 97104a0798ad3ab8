package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/services":                 "/services",
		"/whoami":                   "/whoami",
		"/update-service/01ABC":     "/update-service/:key",
		"/delete-service/01ABC":     "/delete-service/:key",
		"/images/01abc-logo.png":    "/images/:key",
		"/delete-favorite/https%3A": "/delete-favorite/:key",
		"/messages?limit=10":        "/messages",
		"/update-service/":          "/update-service/",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
