// Package loader reads a local site directory into deployable files.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/benedict2310/sitedrop/pkg/model"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the optional per-site settings file at the directory root.
const ManifestFile = "sitedrop.yaml"

// MaxFileBytes bounds a single loaded file.
const MaxFileBytes = 5 << 20

type Manifest struct {
	Name      string   `yaml:"name"`
	Subdomain string   `yaml:"subdomain,omitempty"`
	Exclude   []string `yaml:"exclude,omitempty"`
}

// Site is a loaded site directory. Skipped lists relative paths that were
// present but are not html, css or js.
type Site struct {
	RootDir  string
	Manifest Manifest
	Files    []model.File
	Skipped  []string
}

// LoadSite walks dirPath and collects every html, css and js file. Hidden
// entries, the manifest and manifest exclusions are ignored.
func LoadSite(dirPath string) (*Site, error) {
	root, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("resolve site path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat site directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("site path is not a directory: %s", root)
	}

	manifest, err := loadManifest(root)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(manifest.Name) == "" {
		manifest.Name = filepath.Base(root)
	}

	site := &Site{RootDir: root, Manifest: manifest}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if strings.HasPrefix(d.Name(), ".") || excluded(manifest.Exclude, rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || rel == ManifestFile {
			return nil
		}
		if !supportedExt(rel) {
			site.Skipped = append(site.Skipped, rel)
			return nil
		}

		f, err := readFile(path, rel)
		if err != nil {
			return err
		}
		site.Files = append(site.Files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk site directory %s: %w", root, err)
	}

	sort.Slice(site.Files, func(i, j int) bool {
		return site.Files[i].Name < site.Files[j].Name
	})
	sort.Strings(site.Skipped)

	if err := ValidateSite(site); err != nil {
		return nil, err
	}
	return site, nil
}

// LoadFiles reads individual files, naming each by its base name.
func LoadFiles(paths []string) ([]model.File, error) {
	files := make([]model.File, 0, len(paths))
	for _, path := range paths {
		if err := mustFile(path); err != nil {
			return nil, err
		}
		name := filepath.Base(path)
		if !supportedExt(name) {
			return nil, fmt.Errorf("unsupported file %s (expected .html, .htm, .css or .js)", path)
		}
		f, err := readFile(path, name)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if err := model.ValidateFiles(files); err != nil {
		return nil, err
	}
	return files, nil
}

func loadManifest(root string) (Manifest, error) {
	var manifest Manifest
	path := filepath.Join(root, ManifestFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return manifest, nil
		}
		return manifest, fmt.Errorf("check manifest %s: %w", path, err)
	}
	if err := decodeYAMLFile(path, &manifest); err != nil {
		return manifest, err
	}
	manifest.Name = strings.TrimSpace(manifest.Name)
	manifest.Subdomain = strings.TrimSpace(manifest.Subdomain)
	for _, pattern := range manifest.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return manifest, fmt.Errorf("manifest %s: invalid exclude pattern %q: %w", path, pattern, err)
		}
	}
	return manifest, nil
}

func excluded(patterns []string, rel string) bool {
	base := filepath.Base(rel)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func supportedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm", ".css", ".js", ".mjs":
		return true
	}
	return false
}

func readFile(path, name string) (model.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.File{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > MaxFileBytes {
		return model.File{}, fmt.Errorf("file %s is %d bytes, limit is %d", path, info.Size(), MaxFileBytes)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return model.File{}, fmt.Errorf("read site file %s: %w", path, err)
	}
	return model.File{
		Name:    name,
		Content: normalizeLineEndings(string(content)),
		Type:    model.InferFileType(name),
	}, nil
}

func decodeYAMLFile(path string, out any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read yaml file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(content, out); err != nil {
		return fmt.Errorf("parse yaml file %s: %w", path, err)
	}

	return nil
}

func mustFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("required file missing: %s", path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("required file is a directory: %s", path)
	}
	return nil
}

func normalizeLineEndings(content string) string {
	return strings.ReplaceAll(content, "\r\n", "\n")
}
