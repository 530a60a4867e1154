package renderer

import (
	"strings"
	"testing"
)

func TestInterceptClick(t *testing.T) {
	tests := []struct {
		href string
		want bool
	}{
		{href: "about.html", want: true},
		{href: "./docs/page.html", want: true},
		{href: "/contact.html", want: true},
		{href: "https://example.com", want: false},
		{href: "HTTP://example.com", want: false},
		{href: "//cdn.example.com/x", want: false},
		{href: "#section", want: false},
		{href: "mailto:hi@example.com", want: false},
		{href: "javascript:void(0)", want: false},
		{href: "tel:+123", want: false},
		{href: "", want: false},
		{href: "   ", want: false},
	}
	for _, tc := range tests {
		msg, ok := InterceptClick(tc.href)
		if ok != tc.want {
			t.Fatalf("InterceptClick(%q) intercepted = %v, want %v", tc.href, ok, tc.want)
		}
		if ok && (msg.Type != MessageNavigate || msg.Path != tc.href) {
			t.Fatalf("unexpected message for %q: %#v", tc.href, msg)
		}
	}
}

func TestParseMessageClosedSet(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"NAVIGATE","path":"about.html"}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if msg.Path != "about.html" {
		t.Fatalf("unexpected path %q", msg.Path)
	}
	for _, raw := range []string{`{"type":"EVAL","path":"x"}`, `{"path":"x"}`, `not json`} {
		if _, err := ParseMessage([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestInjectNavigationPlacement(t *testing.T) {
	got := InjectNavigation("<html><body><p>x</p></body></html>")
	scriptIdx := strings.Index(got, "data-sitedrop-nav")
	bodyIdx := strings.LastIndex(got, "</body>")
	if scriptIdx < 0 || scriptIdx > bodyIdx {
		t.Fatalf("expected script before </body>: %s", got)
	}
	if got := InjectNavigation("<p>fragment</p>"); !strings.HasSuffix(got, NavigationScript) {
		t.Fatalf("expected script appended to fragment")
	}
}

func TestNavigationScriptMatchesGoRule(t *testing.T) {
	if !strings.Contains(NavigationScript, `/^(?:[a-zA-Z][a-zA-Z0-9+.\-]*:|\/\/|#)/`) {
		t.Fatalf("navigation script href rule drifted from IsRelativeHref")
	}
	if !strings.Contains(NavigationScript, `type: "NAVIGATE"`) {
		t.Fatalf("navigation script must post NAVIGATE messages")
	}
}
