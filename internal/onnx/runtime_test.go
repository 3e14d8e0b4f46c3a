package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryName(t *testing.T) {
	tests := []struct {
		goos    string
		want    string
		wantErr bool
	}{
		{"linux", "libonnxruntime.so", false},
		{"darwin", "libonnxruntime.dylib", false},
		{"windows", "onnxruntime.dll", false},
		{"plan9", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			got, err := LibraryName(tt.goos)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCandidateLibraryPathsOrder(t *testing.T) {
	t.Setenv(EnvLibraryPath, "/env/libonnxruntime.so")

	paths := CandidateLibraryPaths("/explicit/libonnxruntime.so", true)
	require.GreaterOrEqual(t, len(paths), 3)
	assert.Equal(t, "/explicit/libonnxruntime.so", paths[0])
	assert.Equal(t, "/env/libonnxruntime.so", paths[1])
	assert.Equal(t, "/opt/onnxruntime/gpu/lib/libonnxruntime.so", paths[2])

	cpu := CandidateLibraryPaths("", false)
	assert.NotContains(t, cpu, "/opt/onnxruntime/gpu/lib/libonnxruntime.so")
}

func TestValidateGPUConfig(t *testing.T) {
	assert.NoError(t, ValidateGPUConfig(DefaultGPUConfig()))

	cfg := DefaultGPUConfig()
	cfg.UseGPU = true
	assert.NoError(t, ValidateGPUConfig(cfg))

	cfg.DeviceID = -1
	assert.Error(t, ValidateGPUConfig(cfg))

	cfg.DeviceID = 0
	cfg.ArenaExtendStrategy = "bogus"
	assert.Error(t, ValidateGPUConfig(cfg))

	cfg.ArenaExtendStrategy = ""
	cfg.CUDNNConvAlgoSearch = "FAST"
	assert.Error(t, ValidateGPUConfig(cfg))
}

func TestNewSessionMissingModel(t *testing.T) {
	_, err := NewSession(SessionConfig{})
	assert.Error(t, err)

	_, err = NewSession(SessionConfig{ModelPath: "/nonexistent/model.onnx"})
	assert.Error(t, err)
}
