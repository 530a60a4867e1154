package loader

import (
	"fmt"

	"github.com/benedict2310/sitedrop/pkg/model"
)

// ValidateSite checks that a loaded site can be deployed as is.
func ValidateSite(site *Site) error {
	if site == nil {
		return fmt.Errorf("site is nil")
	}
	if len(site.Files) == 0 {
		return fmt.Errorf("no html, css or js files found in %s", site.RootDir)
	}
	if err := model.ValidateFiles(site.Files); err != nil {
		return err
	}
	for _, f := range site.Files {
		if f.Type == model.FileTypeHTML {
			return nil
		}
	}
	return fmt.Errorf("site %s has no html file to serve", site.RootDir)
}
