package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/benedict2310/sitedrop/internal/config"
	"github.com/benedict2310/sitedrop/internal/transport"
)

type recordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
}

type scriptedTransport struct {
	handle   func(call int, req recordedRequest) (*http.Response, error)
	requests []recordedRequest
	closed   bool
}

func (s *scriptedTransport) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
	}
	call := len(s.requests)
	s.requests = append(s.requests, recordedRequest{
		Method:  req.Method,
		Path:    req.URL.Path,
		Query:   req.URL.RawQuery,
		Headers: req.Header.Clone(),
		Body:    body,
	})
	if s.handle == nil {
		return nil, errors.New("unexpected transport call")
	}
	return s.handle(call, s.requests[call])
}

func (s *scriptedTransport) Close() error {
	s.closed = true
	return nil
}

type commandResult struct {
	out        string
	errOut     string
	err        error
	configPath string
	info       config.ContextInfo
}

// runCommandWithTransport runs args against the test config with every
// remote call going to tr.
func runCommandWithTransport(t *testing.T, args []string, tr *scriptedTransport) (string, string, error) {
	t.Helper()
	res := runCommandWithConfig(t, writeTestConfigFile(t, "staging"), args, "", tr)
	return res.out, res.errOut, res.err
}

func runCommandWithConfig(t *testing.T, configPath string, args []string, stdin string, tr *scriptedTransport) commandResult {
	t.Helper()

	t.Setenv(config.EnvConfigPath, configPath)
	res := commandResult{configPath: configPath}

	prevFactory := buildTransportForContext
	buildTransportForContext = func(info config.ContextInfo, cfg transport.HTTPConfig) (transport.Transport, error) {
		res.info = info
		return tr, nil
	}
	t.Cleanup(func() {
		buildTransportForContext = prevFactory
	})

	cmd := NewRootCmd("test")
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetArgs(args)

	res.err = cmd.Execute()
	res.out = out.String()
	res.errOut = errOut.String()
	return res
}

func jsonHTTPResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func writeSiteFixture(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	files := map[string]string{
		"index.html":    `<html><head><link rel="stylesheet" href="css/site.css"></head><body><a href="about.html">About</a></body></html>`,
		"about.html":    `<h1>About</h1><a href="./index.html">Home</a>`,
		"css/site.css":  "body { margin: 0; }\n",
		"logo.png":      "png",
		"sitedrop.yaml": "name: Portfolio\nsubdomain: my-portfolio\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}
