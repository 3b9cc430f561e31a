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

import "math"

// block holds 64 samples or coefficients in natural order
type block [blockSize]float64

// aanScale holds the AAN per-frequency scale factors:
// aanScale[0] = 1, aanScale[k] = cos(k*pi/16)*sqrt(2).
var aanScale = [8]float64{
	1.0, 1.387039845, 1.306562965, 1.175875602,
	1.0, 0.785694958, 0.541196100, 0.275899379,
}

// divisors folds quantization and AAN output scaling into one divisor per
// natural-order coefficient.
type divisors [blockSize]float64

func newDivisors(q *[blockSize]byte) divisors {
	var d divisors
	for zig, n := range unzig {
		u, v := n/8, n%8
		d[n] = float64(q[zig]) * aanScale[u] * aanScale[v] * 8
	}
	return d
}

// fdct runs the AAN forward DCT in place over rows then columns. Outputs
// are scaled by 8*aanScale[u]*aanScale[v].
func fdct(b *block) {
	for i := 0; i < 8; i++ {
		fdct1D(b, i*8, 1)
	}
	for i := 0; i < 8; i++ {
		fdct1D(b, i, 8)
	}
}

func fdct1D(b *block, off, stride int) {
	p := func(k int) *float64 { return &b[off+k*stride] }

	tmp0 := *p(0) + *p(7)
	tmp7 := *p(0) - *p(7)
	tmp1 := *p(1) + *p(6)
	tmp6 := *p(1) - *p(6)
	tmp2 := *p(2) + *p(5)
	tmp5 := *p(2) - *p(5)
	tmp3 := *p(3) + *p(4)
	tmp4 := *p(3) - *p(4)

	// Even part
	tmp10 := tmp0 + tmp3
	tmp13 := tmp0 - tmp3
	tmp11 := tmp1 + tmp2
	tmp12 := tmp1 - tmp2

	*p(0) = tmp10 + tmp11
	*p(4) = tmp10 - tmp11

	z1 := (tmp12 + tmp13) * 0.707106781
	*p(2) = tmp13 + z1
	*p(6) = tmp13 - z1

	// Odd part
	tmp10 = tmp4 + tmp5
	tmp11 = tmp5 + tmp6
	tmp12 = tmp6 + tmp7

	z5 := (tmp10 - tmp12) * 0.382683433
	z2 := 0.541196100*tmp10 + z5
	z4 := 1.306562965*tmp12 + z5
	z3 := tmp11 * 0.707106781

	z11 := tmp7 + z3
	z13 := tmp7 - z3

	*p(5) = z13 + z2
	*p(3) = z13 - z2
	*p(1) = z11 + z4
	*p(7) = z11 - z4
}

// quantize transforms b (centered samples) and writes the quantized
// coefficients to out in zig-zag order.
func quantize(b *block, d *divisors, out *[blockSize]int32) {
	fdct(b)
	for zig, n := range unzig {
		out[zig] = int32(math.Round(b[n] / d[n]))
	}
}
