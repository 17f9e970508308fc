package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("通常のベクトルは単位長になる", func(t *testing.T) {
		v := []float32{3, 4}
		normalized := Normalize(v)

		assert.InDelta(t, 1.0, Norm(normalized), 1e-6)
		assert.InDelta(t, 0.6, float64(normalized[0]), 1e-6)
		assert.InDelta(t, 0.8, float64(normalized[1]), 1e-6)
	})

	t.Run("ゼロベクトルはそのまま返す", func(t *testing.T) {
		v := []float32{0, 0, 0}
		normalized := Normalize(v)

		assert.Equal(t, []float32{0, 0, 0}, normalized)
	})

	t.Run("入力ベクトルを変更しない", func(t *testing.T) {
		v := []float32{3, 4}
		_ = Normalize(v)

		assert.Equal(t, []float32{3, 4}, v)
	})
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{name: "同一方向は1.0", a: []float32{1, 2, 3}, b: []float32{2, 4, 6}, want: 1.0},
		{name: "直交は0.0", a: []float32{1, 0}, b: []float32{0, 1}, want: 0.0},
		{name: "逆方向は-1.0", a: []float32{1, 1}, b: []float32{-1, -1}, want: -1.0},
		{name: "ゼロベクトルは0.0", a: []float32{0, 0}, b: []float32{1, 1}, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}

	t.Run("次元が一致しない場合はエラー", func(t *testing.T) {
		_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
		require.Error(t, err)
	})
}

func TestNorm(t *testing.T) {
	assert.InDelta(t, 5.0, Norm([]float32{3, 4}), 1e-6)
	assert.InDelta(t, 0.0, Norm([]float32{0, 0, 0}), 1e-6)
	assert.InDelta(t, math.Sqrt(3), Norm([]float32{1, 1, 1}), 1e-6)
}
