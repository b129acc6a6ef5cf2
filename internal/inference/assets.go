package inference

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/docrect-mcp/internal/scanerr"
)

// modelExtensions are tried in order when resolving a model file.
var modelExtensions = []string{".onnx", ".ort"}

// ModelPath resolves the file for id inside dir.
func ModelPath(dir string, id ModelID) (string, error) {
	for _, ext := range modelExtensions {
		path := filepath.Join(dir, string(id)+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", scanerr.Newf(scanerr.ErrInitialization, "resolve "+string(id),
		"model file not found: %s (tried %s)", filepath.Join(dir, string(id)), strings.Join(modelExtensions, ", "))
}

// DefaultBundleDir returns the "models" directory next to the running
// binary, following symlinks.
func DefaultBundleDir() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	exeDir := filepath.Dir(exePath)

	if realExePath, err := filepath.EvalSymlinks(exePath); err == nil {
		exeDir = filepath.Dir(realExePath)
	}
	return filepath.Join(exeDir, "models"), nil
}

// InstallModels copies model files (model_*.onnx / model_*.ort) from the
// root of bundle into dir. Files already present with the same size are
// left alone, so repeated runs are cheap. It returns the names it wrote.
func InstallModels(bundle fs.FS, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, scanerr.New(scanerr.ErrInitialization, "install models", err)
	}

	entries, err := fs.ReadDir(bundle, ".")
	if err != nil {
		return nil, scanerr.New(scanerr.ErrInitialization, "read model bundle", err)
	}

	var installed []string
	for _, entry := range entries {
		if entry.IsDir() || !isModelFile(entry.Name()) {
			continue
		}

		dstPath := filepath.Join(dir, entry.Name())

		if info, err := os.Stat(dstPath); err == nil {
			if bundled, err := entry.Info(); err == nil && info.Size() == bundled.Size() {
				continue
			}
		}

		data, err := fs.ReadFile(bundle, entry.Name())
		if err != nil {
			return installed, scanerr.New(scanerr.ErrInitialization, "read bundled "+entry.Name(), err)
		}

		// Write to a temp name first so a crash mid-copy never leaves a
		// truncated model that a later size check could mistake for valid.
		tmp := dstPath + ".tmp"
		if err := os.WriteFile(tmp, data, 0644); err != nil {
			return installed, scanerr.New(scanerr.ErrInitialization, "write "+dstPath, err)
		}
		if err := os.Rename(tmp, dstPath); err != nil {
			_ = os.Remove(tmp)
			return installed, scanerr.New(scanerr.ErrInitialization, "write "+dstPath, err)
		}
		installed = append(installed, entry.Name())
	}

	return installed, nil
}

func isModelFile(name string) bool {
	if !strings.HasPrefix(name, "model_") {
		return false
	}
	ext := filepath.Ext(name)
	for _, want := range modelExtensions {
		if ext == want {
			return true
		}
	}
	return false
}
