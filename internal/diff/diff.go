// Package diff compares a local set of site files with a deployed one.
package diff

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/benedict2310/sitedrop/pkg/model"
)

type record struct {
	file model.File
	hash string
}

// Compute reports what replacing remote with local would change. Names are
// compared after model.NormalizePath; file types are inferred when blank.
func Compute(local, remote []model.File) (Result, error) {
	localByName, err := index(local)
	if err != nil {
		return Result{}, fmt.Errorf("index local files: %w", err)
	}
	remoteByName, err := index(remote)
	if err != nil {
		return Result{}, fmt.Errorf("index remote files: %w", err)
	}

	names := make([]string, 0, len(localByName)+len(remoteByName))
	for name := range localByName {
		names = append(names, name)
	}
	for name := range remoteByName {
		if _, ok := localByName[name]; !ok {
			names = append(names, name)
		}
	}

	out := Result{Changes: make([]FileChange, 0, len(names))}
	for _, name := range names {
		next, hasLocal := localByName[name]
		prev, hasRemote := remoteByName[name]

		switch {
		case hasLocal && !hasRemote:
			out.Summary.Added++
			out.Changes = append(out.Changes, FileChange{
				Name:       name,
				Type:       next.file.Type,
				ChangeType: ChangeAdded,
				NewHash:    next.hash,
				NewBytes:   len(next.file.Content),
			})
		case !hasLocal && hasRemote:
			out.Summary.Removed++
			out.Changes = append(out.Changes, FileChange{
				Name:       name,
				Type:       prev.file.Type,
				ChangeType: ChangeRemoved,
				OldHash:    prev.hash,
				OldBytes:   len(prev.file.Content),
			})
		case next.hash != prev.hash:
			out.Summary.Modified++
			out.Changes = append(out.Changes, FileChange{
				Name:       name,
				Type:       next.file.Type,
				ChangeType: ChangeModified,
				OldHash:    prev.hash,
				NewHash:    next.hash,
				OldBytes:   len(prev.file.Content),
				NewBytes:   len(next.file.Content),
			})
		default:
			out.Summary.Unchanged++
		}
	}

	sort.Slice(out.Changes, func(i, j int) bool {
		a, b := out.Changes[i], out.Changes[j]
		if typeOrder(a.Type) != typeOrder(b.Type) {
			return typeOrder(a.Type) < typeOrder(b.Type)
		}
		return a.Name < b.Name
	})
	return out, nil
}

// FilesOf returns the files a deployment serves, mapping legacy records onto
// their fixed file names.
func FilesOf(d model.Deployment) []model.File {
	view, err := model.Normalize(d)
	if err != nil {
		return nil
	}
	return view.Files
}

func index(files []model.File) (map[string]record, error) {
	out := make(map[string]record, len(files))
	for _, f := range files {
		name := model.NormalizePath(f.Name)
		if name == "" {
			return nil, fmt.Errorf("file name is empty")
		}
		if _, ok := out[name]; ok {
			return nil, fmt.Errorf("duplicate file %q", name)
		}
		if f.Type == "" {
			f.Type = model.InferFileType(name)
		}
		sum := sha256.Sum256([]byte(f.Content))
		out[name] = record{file: f, hash: "sha256:" + hex.EncodeToString(sum[:])}
	}
	return out, nil
}

func typeOrder(t model.FileType) int {
	switch t {
	case model.FileTypeHTML:
		return 0
	case model.FileTypeCSS:
		return 1
	case model.FileTypeJS:
		return 2
	default:
		return 3
	}
}
