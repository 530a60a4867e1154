package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/benedict2310/sitedrop/internal/blob"
	"github.com/benedict2310/sitedrop/pkg/loader"
	"github.com/benedict2310/sitedrop/pkg/model"
	"github.com/benedict2310/sitedrop/pkg/renderer"
	"github.com/spf13/cobra"
)

// loadLocalView loads a site directory and normalizes it the way the server
// would store it.
func loadLocalView(dir string) (*loader.Site, model.View, error) {
	site, err := loader.LoadSite(dir)
	if err != nil {
		return nil, model.View{}, err
	}
	view, err := model.Normalize(model.Deployment{
		Name:   site.Manifest.Name,
		Status: model.StatusLive,
		Files:  site.Files,
	})
	if err != nil {
		return nil, model.View{}, fmt.Errorf("normalize site %s: %w", site.RootDir, err)
	}
	return site, view, nil
}

func newRenderCmd() *cobra.Command {
	var from string
	var path string
	var out string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one page of a local site into a self-contained HTML document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(from) == "" {
				fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
				return usageError(fmt.Errorf("required flag(s) \"from\" not set"))
			}

			_, view, err := loadLocalView(from)
			if err != nil {
				return err
			}
			doc, err := renderer.Render(view, path, blob.DataURLArena{})
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), doc.HTML)
				return err
			}
			if dir := filepath.Dir(out); dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create output directory %s: %w", dir, err)
				}
			}
			if err := os.WriteFile(out, []byte(doc.HTML), 0o644); err != nil {
				return fmt.Errorf("write rendered page %s: %w", out, err)
			}
			if doc.NotFound {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %q matches no page; wrote the not-found document\n", doc.Path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rendered %s to %s\n", renderedName(doc), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&from, "from", "f", "", "Source site directory")
	cmd.Flags().StringVarP(&path, "path", "p", renderer.IndexPath, "In-site path to render")
	cmd.Flags().StringVarP(&out, "output", "o", "-", "Output file (- for stdout)")

	return cmd
}

func renderedName(doc renderer.Document) string {
	if doc.Entry != "" {
		return doc.Entry
	}
	return doc.Path
}
