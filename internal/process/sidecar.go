package process

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveSidecar finds the executable for name.
//
// Absolute and relative paths are used as given. A bare name is looked up
// next to the running executable, first as-is and then with the platform
// triple suffix ("mfer-node-linux-amd64") that bundlers append, before
// falling back to $PATH.
func ResolveSidecar(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrSidecarNotFound)
	}

	if strings.ContainsRune(name, os.PathSeparator) {
		path, err := filepath.Abs(name)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", name, err)
		}
		if !isExecutable(path) {
			return "", fmt.Errorf("%w: %s", ErrSidecarNotFound, path)
		}
		return path, nil
	}

	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		for _, candidate := range sidecarCandidates(name) {
			path := filepath.Join(dir, candidate)
			if isExecutable(path) {
				return path, nil
			}
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrSidecarNotFound, name, err)
	}
	return path, nil
}

// sidecarCandidates lists the file names tried next to the executable.
func sidecarCandidates(name string) []string {
	triple := fmt.Sprintf("%s-%s-%s", name, runtime.GOOS, runtime.GOARCH)
	candidates := []string{name, triple}
	if runtime.GOOS == "windows" {
		candidates = append(candidates, name+".exe", triple+".exe")
	}
	return candidates
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return runtime.GOOS == "windows" || info.Mode().Perm()&0o111 != 0
}
