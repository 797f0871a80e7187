// internal/firmware/bundle.go
package firmware

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// extractBundle unpacks a ZIP archive into destDir, preserving the
// archive's directory structure. Entries escaping destDir are refused.
func extractBundle(bundlePath, destDir string) error {
	reader, err := zip.OpenReader(bundlePath)
	if err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		target := filepath.Join(destDir, filepath.FromSlash(entry.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("bundle entry %q escapes extraction directory", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("create directory for %s: %w", target, err)
		}

		if err := extractFile(entry, target); err != nil {
			return err
		}
	}

	return nil
}

func extractFile(entry *zip.File, target string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open bundle entry %s: %w", entry.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	return nil
}

// findManifestFiles walks the extracted tree looking for each
// manifest entry by file name, at any nesting depth. The first match
// wins when a name appears more than once.
func findManifestFiles(root string, manifest []ManifestEntry) (map[string]string, []string) {
	wanted := make(map[string]bool, len(manifest))
	for _, entry := range manifest {
		wanted[entry.FileName] = true
	}

	found := make(map[string]string)
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := d.Name()
		if wanted[name] {
			if _, ok := found[name]; !ok {
				found[name] = path
			}
		}
		return nil
	})

	var missing []string
	for _, entry := range manifest {
		if _, ok := found[entry.FileName]; !ok {
			missing = append(missing, entry.FileName)
		}
	}

	return found, missing
}
