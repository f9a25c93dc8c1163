package vad

import (
	"os"
	"path/filepath"
	"runtime"
)

// Model files and an optional bundled onnxruntime live under data/ next to
// the binary, or under lib/<GOOS_GOARCH>/ for packaged builds.
const (
	modelDataDir  = "data"
	bundledLibDir = "lib"
)

// runtimeLibNames returns candidate filenames for the onnxruntime shared
// library on the current OS. Linux releases ship versioned .so files; the
// first existing candidate wins.
func runtimeLibNames() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"libonnxruntime.dylib"}
	case "windows":
		return []string{"onnxruntime.dll"}
	default:
		return []string{"libonnxruntime.so.1.23.2", "libonnxruntime.so"}
	}
}

// dataDirLibName is the runtime filename when dropped straight into data/
// (e.g. onnxruntime_arm64.dylib, onnxruntime_amd64.so).
func dataDirLibName() string {
	switch runtime.GOOS {
	case "darwin":
		return "onnxruntime_" + runtime.GOARCH + ".dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "onnxruntime_" + runtime.GOARCH + ".so"
	}
}

// candidateBaseDirs lists directories to search: working directory first,
// then the directory of the running executable.
func candidateBaseDirs() []string {
	cwd, _ := os.Getwd()
	exe, err := os.Executable()
	if err != nil {
		return []string{cwd}
	}
	exeDir := filepath.Dir(exe)
	if exeDir == cwd {
		return []string{cwd}
	}
	return []string{cwd, exeDir}
}

// resolveRuntimeLib returns the first bundled onnxruntime library found, or
// "" when none exists and the system default should be used.
func resolveRuntimeLib(baseDirs []string) string {
	platform := runtime.GOOS + "_" + runtime.GOARCH
	dataName := dataDirLibName()
	for _, base := range baseDirs {
		if base == "" {
			continue
		}
		p := filepath.Join(base, modelDataDir, dataName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, base := range baseDirs {
		if base == "" {
			continue
		}
		for _, name := range runtimeLibNames() {
			p := filepath.Join(base, bundledLibDir, platform, name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}
