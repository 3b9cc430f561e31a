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
	"math/bits"

	"github.com/ZaparooProject/go-snaplink/internal/bitpack"
)

// entropyCoder Huffman-codes quantized blocks with one DC predictor per
// channel. Channel 0 uses the luminance tables, the others chrominance.
type entropyCoder struct {
	w    *bitpack.Writer
	pred [3]int32
}

func (c *entropyCoder) reset() {
	c.pred = [3]int32{}
}

func (c *entropyCoder) emitHuff(h huffIndex, value int32) {
	x := theHuffmanLUT[h][value]
	c.w.Write(x&(1<<24-1), int(x>>24))
}

// emitHuffRLE codes (runLength, size(value)) then the mantissa bits of
// value, negative values in one's complement.
func (c *entropyCoder) emitHuffRLE(h huffIndex, runLength, value int32) {
	a, b := value, value
	if a < 0 {
		a, b = -value, value-1
	}
	nBits := bits.Len32(uint32(a))
	c.emitHuff(h, runLength<<4|int32(nBits))
	if nBits > 0 {
		c.w.Write(uint32(b)&(1<<nBits-1), nBits)
	}
}

// encodeBlock writes one zig-zag ordered block for channel ch
func (c *entropyCoder) encodeBlock(ch int, zz *[blockSize]int32) {
	dcTable, acTable := huffIndexLuminanceDC, huffIndexLuminanceAC
	if ch > 0 {
		dcTable, acTable = huffIndexChrominanceDC, huffIndexChrominanceAC
	}

	c.emitHuffRLE(dcTable, 0, zz[0]-c.pred[ch])
	c.pred[ch] = zz[0]

	runLength := int32(0)
	for k := 1; k < blockSize; k++ {
		if zz[k] == 0 {
			runLength++
			continue
		}
		for runLength > 15 {
			c.emitHuff(acTable, 0xf0)
			runLength -= 16
		}
		c.emitHuffRLE(acTable, runLength, zz[k])
		runLength = 0
	}
	if runLength > 0 {
		c.emitHuff(acTable, 0x00)
	}
}
