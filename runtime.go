package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// resolveModelFiles validates the weights path and locates the onnxruntime
// shared library, returning absolute paths for both.
func resolveModelFiles(weightsPath, libPath string) (string, string, error) {
	absWeights, err := filepath.Abs(filepath.Clean(weightsPath))
	if err != nil {
		return "", "", fmt.Errorf("resolve weights path: %w", err)
	}
	if _, err := os.Stat(absWeights); os.IsNotExist(err) {
		return "", "", fmt.Errorf("model file not found: %s", absWeights)
	}

	if libPath == "" {
		libPath = defaultLibraryPath()
	}
	if _, err := os.Stat(libPath); os.IsNotExist(err) {
		return "", "", fmt.Errorf("onnxruntime library not found: %s", libPath)
	}

	return absWeights, libPath, nil
}

// defaultLibraryPath is the onnxruntime build for this platform under ./lib.
func defaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join("lib", "onnxruntime.dll")
	case "darwin":
		return filepath.Join("lib", "libonnxruntime.dylib")
	default:
		if runtime.GOARCH == "arm64" {
			return filepath.Join("lib", "libonnxruntime_arm64.so")
		}
		return filepath.Join("lib", "libonnxruntime.so")
	}
}
