package renderer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MessageNavigate is the only message a rendered surface sends to its host.
const MessageNavigate = "NAVIGATE"

// Message is the structured payload posted from the surface to the host.
type Message struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

var nonRelativeHrefRe = regexp.MustCompile(`^(?:[a-zA-Z][a-zA-Z0-9+.\-]*:|//|#)`)

// NavigationScript intercepts clicks on relative anchors inside the surface
// and posts a NAVIGATE message to the host instead of navigating. The href
// test must stay in sync with IsRelativeHref.
const NavigationScript = `<script data-sitedrop-nav>
(function () {
  var external = /^(?:[a-zA-Z][a-zA-Z0-9+.\-]*:|\/\/|#)/;
  document.addEventListener("click", function (event) {
    var el = event.target;
    while (el && !(el.tagName && el.tagName.toUpperCase() === "A")) {
      el = el.parentElement;
    }
    if (!el) { return; }
    var href = el.getAttribute("href");
    if (!href) { return; }
    href = href.trim();
    if (href === "" || external.test(href)) { return; }
    event.preventDefault();
    window.parent.postMessage({ type: "NAVIGATE", path: href }, "*");
  }, true);
})();
</script>
`

// IsRelativeHref reports whether a click on an anchor with href stays inside
// the site. Schemes (including mailto: and javascript:), protocol-relative
// URLs and fragments are left to the browser.
func IsRelativeHref(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" {
		return false
	}
	return !nonRelativeHrefRe.MatchString(href)
}

// InterceptClick returns the message the surface emits for a click on an
// anchor with href, if any.
func InterceptClick(href string) (Message, bool) {
	if !IsRelativeHref(href) {
		return Message{}, false
	}
	return Message{Type: MessageNavigate, Path: strings.TrimSpace(href)}, true
}

// ParseMessage decodes a surface message, rejecting anything outside the
// closed message set.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode surface message: %w", err)
	}
	if msg.Type != MessageNavigate {
		return Message{}, fmt.Errorf("unsupported surface message type %q", msg.Type)
	}
	return msg, nil
}

// InjectNavigation places the navigation script before the closing body tag,
// or appends it when there is none.
func InjectNavigation(document string) string {
	return injectBeforeBodyEnd(document, NavigationScript)
}
