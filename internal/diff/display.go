package diff

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/benedict2310/sitedrop/internal/output"
	"github.com/benedict2310/sitedrop/pkg/model"
)

type DisplayOptions struct {
	Color bool
}

func AutoColor(w io.Writer) bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

var groups = []struct {
	fileType model.FileType
	title    string
}{
	{model.FileTypeHTML, "PAGES"},
	{model.FileTypeCSS, "STYLES"},
	{model.FileTypeJS, "SCRIPTS"},
}

func WriteTable(w io.Writer, result Result, opts DisplayOptions) error {
	grouped := map[model.FileType][]FileChange{}
	for _, change := range result.Changes {
		grouped[change.Type] = append(grouped[change.Type], change)
	}

	printedAny := false
	for _, g := range groups {
		changes := grouped[g.fileType]
		if len(changes) == 0 {
			continue
		}
		if printedAny {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s:\n", g.title)
		rows := make([][]string, 0, len(changes))
		for _, change := range changes {
			rows = append(rows, []string{
				colorize(string(change.ChangeType), change.ChangeType, opts.Color),
				change.Name,
				sizeDelta(change),
				shortHash(change.OldHash),
				shortHash(change.NewHash),
			})
		}
		if err := output.WriteTable(w, []string{"CHANGE", "FILE", "SIZE", "OLD_HASH", "NEW_HASH"}, rows); err != nil {
			return err
		}
		printedAny = true
	}

	if !printedAny {
		fmt.Fprintln(w, "No changes detected.")
	}
	fmt.Fprintf(w, "%d added, %d modified, %d removed, %d unchanged\n",
		result.Summary.Added, result.Summary.Modified, result.Summary.Removed, result.Summary.Unchanged)
	return nil
}

func sizeDelta(c FileChange) string {
	switch c.ChangeType {
	case ChangeAdded:
		return "+" + strconv.Itoa(c.NewBytes) + "B"
	case ChangeRemoved:
		return "-" + strconv.Itoa(c.OldBytes) + "B"
	}
	d := c.NewBytes - c.OldBytes
	if d >= 0 {
		return "+" + strconv.Itoa(d) + "B"
	}
	return strconv.Itoa(d) + "B"
}

func shortHash(hash string) string {
	v := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hash)), "sha256:")
	if v == "" {
		return "-"
	}
	if len(v) > 8 {
		return v[:8]
	}
	return v
}

func colorize(v string, changeType ChangeType, enabled bool) string {
	if !enabled {
		return v
	}
	var color string
	switch changeType {
	case ChangeAdded:
		color = "32"
	case ChangeModified:
		color = "33"
	case ChangeRemoved:
		color = "31"
	default:
		return v
	}
	return "\x1b[" + color + "m" + v + "\x1b[0m"
}
