// internal/firmware/tool.go
package firmware

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// toolBinary is the flashing tool's executable name for this platform.
func toolBinary() string {
	if runtime.GOOS == "windows" {
		return "sftool.exe"
	}
	return "sftool"
}

// LocateTool finds the external flashing tool. Search order: the
// explicit override path, directories next to the running binary
// (., tools/, bin/, resources/), the system PATH, then conventional
// package locations. On non-Windows platforms a found tool missing
// its executable bit is chmod'ed before being returned.
func LocateTool(override string) (string, error) {
	name := toolBinary()

	var candidates []string
	if override != "" {
		candidates = append(candidates, override)
	}

	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, name),
			filepath.Join(dir, "tools", name),
			filepath.Join(dir, "bin", name),
			filepath.Join(dir, "resources", name),
		)
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return ensureExecutable(c, info)
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	if runtime.GOOS != "windows" {
		for _, c := range []string{
			filepath.Join("/usr/local/bin", name),
			filepath.Join("/opt/sifli/bin", name),
		} {
			if info, err := os.Stat(c); err == nil && !info.IsDir() {
				return ensureExecutable(c, info)
			}
		}
	}

	return "", fmt.Errorf("flashing tool %s not found", name)
}

func ensureExecutable(path string, info os.FileInfo) (string, error) {
	if runtime.GOOS == "windows" {
		return path, nil
	}
	if info.Mode()&0111 != 0 {
		return path, nil
	}
	if err := os.Chmod(path, info.Mode()|0755); err != nil {
		return "", fmt.Errorf("make %s executable: %w", path, err)
	}
	return path, nil
}
