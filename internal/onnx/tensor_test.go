package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageTensor(t *testing.T) {
	tests := []struct {
		name    string
		data    []float32
		wantErr bool
	}{
		{"nil data", nil, true},
		{"too short", make([]float32, 10), true},
		{"too long", make([]float32, 100), true},
		{"valid", make([]float32, 60), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ten, err := NewImageTensor(tt.data, 3, 4, 5)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 3, 4, 5}, ten.Shape)
			assert.NoError(t, ValidateNCHW(ten.Shape))
			assert.NoError(t, ten.Validate())
		})
	}
}

func TestTensorValidate(t *testing.T) {
	assert.Error(t, Tensor{}.Validate())
	assert.Error(t, Tensor{Shape: []int64{1, -1}}.Validate())
	assert.Error(t, Tensor{Data: make([]float32, 5), Shape: []int64{1, 2, 3}}.Validate())
	assert.NoError(t, Tensor{Data: make([]float32, 6), Shape: []int64{1, 2, 3}}.Validate())
	assert.NoError(t, Tensor{Data: nil, Shape: []int64{1, 0, 6}}.Validate())
}

func TestTensorElements(t *testing.T) {
	assert.Equal(t, 0, Tensor{}.Elements())
	assert.Equal(t, 30, Tensor{Shape: []int64{1, 5, 6}}.Elements())
	assert.Equal(t, 0, Tensor{Shape: []int64{1, 0, 6}}.Elements())
}

func TestValidateNCHW(t *testing.T) {
	assert.Error(t, ValidateNCHW([]int64{1, 3, 4}))
	assert.Error(t, ValidateNCHW([]int64{1, 0, 4, 4}))
	assert.NoError(t, ValidateNCHW([]int64{1, 3, 16, 256}))
}

func TestTensorStats(t *testing.T) {
	minV, maxV, mean := Tensor{Data: []float32{-1, 0, 4}}.Stats()
	assert.InDelta(t, -1, minV, 1e-6)
	assert.InDelta(t, 4, maxV, 1e-6)
	assert.InDelta(t, 1, mean, 1e-6)

	minV, maxV, mean = Tensor{}.Stats()
	assert.Zero(t, minV)
	assert.Zero(t, maxV)
	assert.Zero(t, mean)
}
