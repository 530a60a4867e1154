package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benedict2310/sitedrop/internal/client"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// EnvPassword supplies a password non-interactively.
const EnvPassword = "SITEDROP_PASSWORD"

func runtimeAndClientFromCommand(cmd *cobra.Command) (*commandRuntime, *client.APIClient, error) {
	rt, err := runtimeFromCommand(cmd)
	if err != nil {
		return nil, nil, err
	}
	if rt.Transport == nil {
		return nil, nil, fmt.Errorf("internal: transport is not initialized")
	}
	return rt, client.NewWithAuth(rt.Transport, rt.ResolvedContext.Token), nil
}

// authenticatedClientFromCommand fails early when the context has no session.
func authenticatedClientFromCommand(cmd *cobra.Command) (*commandRuntime, *client.APIClient, error) {
	rt, api, err := runtimeAndClientFromCommand(cmd)
	if err != nil {
		return nil, nil, err
	}
	if rt.ResolvedContext.Token == "" {
		name := rt.ResolvedContext.Name
		if name == "" {
			name = rt.ResolvedContext.Server
		}
		return nil, nil, fmt.Errorf("not logged in to %q (run sitedrop login)", name)
	}
	return rt, api, nil
}

// Terminal seams, replaced in tests.
var (
	stdinIsTerminal      = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readTerminalPassword = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
)

// readPassword takes the first line of in when fromStdin is set, then
// $SITEDROP_PASSWORD, then an echo-free prompt on an interactive terminal.
func readPassword(in io.Reader, prompt io.Writer, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("read password from stdin: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", fmt.Errorf("password from stdin is empty")
		}
		return line, nil
	}
	if v := os.Getenv(EnvPassword); v != "" {
		return v, nil
	}
	if !stdinIsTerminal() {
		return "", fmt.Errorf("password is required: pipe it with --password-stdin or set %s", EnvPassword)
	}
	fmt.Fprint(prompt, "Password: ")
	pw, err := readTerminalPassword()
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read password from terminal: %w", err)
	}
	if len(pw) == 0 {
		return "", fmt.Errorf("password is empty")
	}
	return string(pw), nil
}

// publicURL joins a server base with a site path such as /s/<subdomain>.
func publicURL(server, path string) string {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if server == "" {
		return path
	}
	return server + path
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "<none>"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
