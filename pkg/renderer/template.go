package renderer

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

type notFoundTemplateData struct {
	Back    string
	Display string
}

// The back-link is relative so the navigation script routes it through the
// host; the surface has no real URL to navigate to.
var notFoundTemplate = template.Must(template.New("not-found").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>404 - Page not found</title>
  <style>
    body { font-family: system-ui, sans-serif; display: flex; min-height: 100vh; margin: 0; align-items: center; justify-content: center; }
    main { text-align: center; }
    code { background: #f2f2f2; padding: 0.1em 0.3em; border-radius: 3px; }
  </style>
</head>
<body>
  <main>
    <h1>404</h1>
    <p>The page <code>{{.Display}}</code> does not exist on this site.</p>
    <p><a href="{{.Back}}">Back to home</a></p>
  </main>
</body>
</html>
`))

func renderNotFound(path string) (string, error) {
	display := path
	if display == "" {
		display = "/"
	}
	var buf bytes.Buffer
	if err := notFoundTemplate.Execute(&buf, notFoundTemplateData{Back: IndexPath, Display: display}); err != nil {
		return "", fmt.Errorf("execute not-found template: %w", err)
	}
	return strings.ReplaceAll(buf.String(), "\r\n", "\n"), nil
}
