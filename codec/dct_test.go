// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package codec

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// naiveDCT is the textbook 2-D DCT-II with JPEG normalization
func naiveDCT(in *block) block {
	var out block
	c := func(k int) float64 {
		if k == 0 {
			return 1 / math.Sqrt2
		}
		return 1
	}
	for u := 0; u < 8; u++ {
		for v := 0; v < 8; v++ {
			sum := 0.0
			for y := 0; y < 8; y++ {
				for x := 0; x < 8; x++ {
					sum += in[8*y+x] *
						math.Cos(float64(2*y+1)*float64(u)*math.Pi/16) *
						math.Cos(float64(2*x+1)*float64(v)*math.Pi/16)
				}
			}
			out[8*u+v] = sum * c(u) * c(v) / 4
		}
	}
	return out
}

func TestFDCT_MatchesReference(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	for n := 0; n < 20; n++ {
		var b block
		for i := range b {
			b[i] = float64(rng.IntN(256) - 128)
		}
		want := naiveDCT(&b)
		fdct(&b)
		for i := range b {
			u, v := i/8, i%8
			got := b[i] / (8 * aanScale[u] * aanScale[v])
			assert.InDelta(t, want[i], got, 1e-3, "coefficient %d", i)
		}
	}
}

func TestQuantize_FlatBlock(t *testing.T) {
	t.Parallel()

	q := scaledQuant(90)
	d := newDivisors(&q[quantIndexLuminance])
	var b block
	for i := range b {
		b[i] = 100 - 128
	}
	var zz [blockSize]int32
	quantize(&b, &d, &zz)

	// 8 * -28 / 3, rounded half away from zero
	assert.Equal(t, int32(-75), zz[0])
	for k := 1; k < blockSize; k++ {
		assert.Zero(t, zz[k], "AC %d", k)
	}
}

func TestQualityScale(t *testing.T) {
	t.Parallel()

	tests := []struct {
		quality int
		want    int
	}{
		{quality: 0, want: 5000},
		{quality: 1, want: 5000},
		{quality: 25, want: 200},
		{quality: 50, want: 100},
		{quality: 90, want: 20},
		{quality: 100, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, qualityScale(tt.quality), "quality %d", tt.quality)
	}
}

func TestScaledQuant(t *testing.T) {
	t.Parallel()

	q90 := scaledQuant(90)
	assert.Equal(t, byte(3), q90[quantIndexLuminance][0])
	assert.Equal(t, byte(2), q90[quantIndexLuminance][1])
	assert.Equal(t, byte(3), q90[quantIndexChrominance][0])
	assert.Equal(t, byte(20), q90[quantIndexChrominance][63])

	q100 := scaledQuant(100)
	for i := range q100 {
		for _, v := range q100[i] {
			require.Equal(t, byte(1), v)
		}
	}

	q0 := scaledQuant(0)
	for i := range q0 {
		for _, v := range q0[i] {
			require.Equal(t, byte(255), v)
		}
	}
}

func TestUnzig_IsPermutation(t *testing.T) {
	t.Parallel()

	var seen [blockSize]bool
	for _, n := range unzig {
		require.False(t, seen[n])
		seen[n] = true
	}
}
