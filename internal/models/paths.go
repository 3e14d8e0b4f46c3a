// Package models names the model artifacts and resolves where they live.
package models

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Model file names.
const (
	LayoutDEIM        = "deim-s-1024x1024.onnx"
	Recognition30     = "parseq-ndl-16x256-30.onnx"
	Recognition50     = "parseq-ndl-16x384-50.onnx"
	Recognition100    = "parseq-ndl-16x768-100.onnx"
	CharsetNDL        = "ndl_charset.txt"
	DefaultModelsDir  = "models"
	EnvModelsDir      = "YOMITORI_MODELS_DIR"
	ModelVersion      = "1.0.0"
	versionFileSuffix = ".version"
)

// Model type directories.
const (
	TypeLayout      = "layout"
	TypeRecognition = "recognition"
	TypeCharsets    = "charsets"
)

// Info describes one model artifact.
type Info struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	Description string `json:"description"`
	// InputWidth is the fixed recognizer input width, 0 for other models.
	InputWidth int `json:"input_width,omitempty"`
	// MaxChars is the recognizer capacity, 0 for other models.
	MaxChars int `json:"max_chars,omitempty"`
}

// Catalog lists every artifact the pipeline loads.
func Catalog() []Info {
	return []Info{
		{Name: "layout", Type: TypeLayout, Filename: LayoutDEIM, Description: "DEIM-S text region detector, 1024x1024 input"},
		{Name: "recognition30", Type: TypeRecognition, Filename: Recognition30, Description: "PARSeq recognizer, up to 30 characters", InputWidth: 256, MaxChars: 30},
		{Name: "recognition50", Type: TypeRecognition, Filename: Recognition50, Description: "PARSeq recognizer, up to 50 characters", InputWidth: 384, MaxChars: 50},
		{Name: "recognition100", Type: TypeRecognition, Filename: Recognition100, Description: "PARSeq recognizer, up to 100 characters", InputWidth: 768, MaxChars: 100},
		{Name: "charset", Type: TypeCharsets, Filename: CharsetNDL, Description: "Recognizer output vocabulary"},
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}

// GetModelsDir returns the models directory.
// Priority: 1. explicit modelsDir, 2. environment variable, 3. project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if root, err := findProjectRoot(); err == nil {
		return filepath.Join(root, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolveModelPath prefers models/<type>/<file> and falls back to the flat
// models/<file> layout when the organized path does not exist.
func ResolveModelPath(modelsDir, modelType, filename string) string {
	base := GetModelsDir(modelsDir)
	if modelType != "" {
		organized := filepath.Join(base, modelType, filename)
		if _, err := os.Stat(organized); err == nil {
			return organized
		}
		flat := filepath.Join(base, filename)
		if _, err := os.Stat(flat); err == nil {
			return flat
		}
		return organized
	}
	return filepath.Join(base, filename)
}

// LayoutModelPath returns the detector model path.
func LayoutModelPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeLayout, LayoutDEIM)
}

// RecognitionModelPath returns the recognizer model path for a filename.
func RecognitionModelPath(modelsDir, filename string) string {
	return ResolveModelPath(modelsDir, TypeRecognition, filename)
}

// CharsetPath returns the charset file path.
func CharsetPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeCharsets, CharsetNDL)
}

// Status reports whether an artifact is present on disk.
type Status struct {
	Info
	Path      string `json:"path"`
	Available bool   `json:"available"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	// Version is read from a sidecar <file>.version when present.
	Version string `json:"version,omitempty"`
	// Stale is set when the sidecar version differs from ModelVersion.
	Stale bool `json:"stale,omitempty"`
}

// Inspect reports the availability of every catalog entry.
func Inspect(modelsDir string) []Status {
	catalog := Catalog()
	out := make([]Status, 0, len(catalog))
	for _, info := range catalog {
		st := Status{Info: info, Path: ResolveModelPath(modelsDir, info.Type, info.Filename)}
		if fi, err := os.Stat(st.Path); err == nil && !fi.IsDir() {
			st.Available = true
			st.SizeBytes = fi.Size()
		}
		if b, err := os.ReadFile(st.Path + versionFileSuffix); err == nil {
			st.Version = string(bytes.TrimSpace(b))
			st.Stale = st.Version != ModelVersion
		}
		out = append(out, st)
	}
	return out
}

// VerifyRequired returns an error naming every missing artifact among the
// given catalog names.
func VerifyRequired(modelsDir string, names ...string) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var missing []error
	for _, st := range Inspect(modelsDir) {
		if want[st.Name] && !st.Available {
			missing = append(missing, fmt.Errorf("%s model not found at %s", st.Name, st.Path))
		}
	}
	return errors.Join(missing...)
}
