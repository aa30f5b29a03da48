package indexer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/docindex-mcp/pkg/types"
)

// DefaultExtensions are the document types indexed when no filter is given
var DefaultExtensions = []string{
	".pdf", ".doc", ".docx", ".ppt", ".pptx", ".xls", ".xlsx",
	".txt", ".md", ".html", ".htm", ".csv", ".json", ".xml",
	".rtf", ".odt", ".epub",
	".png", ".jpg", ".jpeg", ".bmp", ".tif", ".tiff", ".gif", ".webp",
}

// Discover lists the files under root whose extension is in extensions,
// sorted lexically. A nil or empty extensions uses DefaultExtensions. Hidden
// files and directories are skipped. Only the top level is listed unless
// recursive is set.
func Discover(root string, recursive bool, extensions []string) ([]string, error) {
	if err := CheckRoot(root); err != nil {
		return nil, err
	}

	allowed := extensionSet(extensions)
	var files []string

	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, &types.DiscoveryError{Root: root, Err: fmt.Errorf("%w: %v", types.ErrPathNotReadable, err)}
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() || isHidden(entry.Name()) {
				continue
			}
			if matchExtension(entry.Name(), allowed) {
				files = append(files, filepath.Join(root, entry.Name()))
			}
		}
		sort.Strings(files)
		return files, nil
	}

	// WalkDir does not follow a symlinked root, so walk its target and report
	// paths under root.
	walkRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, &types.DiscoveryError{Root: root, Err: fmt.Errorf("%w: %v", types.ErrPathNotReadable, err)}
	}

	err = filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == walkRoot {
				return err
			}
			// Skip unreadable subtrees
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != walkRoot && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || isHidden(d.Name()) {
			return nil
		}
		if matchExtension(d.Name(), allowed) {
			rel, err := filepath.Rel(walkRoot, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.Join(root, rel))
		}
		return nil
	})
	if err != nil {
		return nil, &types.DiscoveryError{Root: root, Err: fmt.Errorf("%w: %v", types.ErrPathNotReadable, err)}
	}

	sort.Strings(files)
	return files, nil
}

// CheckRoot verifies that root exists and is a directory. Failures are
// returned as *types.DiscoveryError.
func CheckRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &types.DiscoveryError{Root: root, Err: types.ErrPathNotFound}
		}
		return &types.DiscoveryError{Root: root, Err: fmt.Errorf("%w: %v", types.ErrPathNotReadable, err)}
	}
	if !info.IsDir() {
		return &types.DiscoveryError{Root: root, Err: types.ErrNotDirectory}
	}
	return nil
}

// NormalizeExtensions lowercases extensions and adds a leading dot where
// missing. Empty entries are dropped.
func NormalizeExtensions(extensions []string) []string {
	out := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

func extensionSet(extensions []string) map[string]struct{} {
	normalized := NormalizeExtensions(extensions)
	if len(normalized) == 0 {
		normalized = DefaultExtensions
	}
	set := make(map[string]struct{}, len(normalized))
	for _, ext := range normalized {
		set[ext] = struct{}{}
	}
	return set
}

func matchExtension(name string, allowed map[string]struct{}) bool {
	_, ok := allowed[strings.ToLower(filepath.Ext(name))]
	return ok
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
