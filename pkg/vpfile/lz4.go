/*
Copyright 2026 The Modvault Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package vpfile

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4Magic is the 4-byte magic marking an LZ4-framed VP entry payload.
const LZ4Magic = "LZ41"

const lz4TrailerSize = 12

// MaybeDecompress returns b unchanged if it does not begin with the LZ41
// magic. Otherwise it parses the 12-byte trailer (block-table offset,
// uncompressed file size, block size) and decompresses the sequence of
// LZ4 blocks that precede the trailer.
func MaybeDecompress(b []byte) ([]byte, error) {
	if len(b) < 4 || string(b[0:4]) != LZ4Magic {
		return b, nil
	}
	if len(b) < 4+lz4TrailerSize {
		return nil, &MalformedContainer{Reason: "LZ41 payload shorter than trailer"}
	}
	trailer := b[len(b)-lz4TrailerSize:]
	blockTableOffset := binary.LittleEndian.Uint32(trailer[0:4])
	fileSize := binary.LittleEndian.Uint32(trailer[4:8])
	blockSize := binary.LittleEndian.Uint32(trailer[8:12])
	if blockSize == 0 {
		return nil, &MalformedContainer{Reason: "LZ41 trailer has zero block size"}
	}

	body := b[4 : len(b)-lz4TrailerSize]
	if int(blockTableOffset) > len(body) {
		return nil, &MalformedContainer{Reason: "LZ41 block table offset out of range"}
	}
	compressed := body[:blockTableOffset]
	tableBytes := body[blockTableOffset:]
	if len(tableBytes)%4 != 0 {
		return nil, &MalformedContainer{Reason: "LZ41 block size table misaligned"}
	}

	out := make([]byte, 0, fileSize)
	pos := 0
	remaining := int(fileSize)
	for i := 0; i*4 < len(tableBytes); i++ {
		if remaining <= 0 {
			break
		}
		compSize := int(binary.LittleEndian.Uint32(tableBytes[i*4 : i*4+4]))
		if pos+compSize > len(compressed) {
			return nil, &MalformedContainer{Reason: "LZ41 block extends past compressed data"}
		}
		want := int(blockSize)
		if remaining < want {
			want = remaining
		}
		dst := make([]byte, want)
		n, err := lz4.UncompressBlock(compressed[pos:pos+compSize], dst)
		if err != nil {
			return nil, fmt.Errorf("vpfile: lz4 block decode: %w", err)
		}
		out = append(out, dst[:n]...)
		pos += compSize
		remaining -= n
	}
	if len(out) != int(fileSize) {
		return nil, &MalformedContainer{Reason: "LZ41 decompressed size mismatch"}
	}
	return out, nil
}

// CompressLZ4 wraps raw bytes into the LZ41 format MaybeDecompress expects,
// chunking into blockSize-sized blocks. It exists for tests exercising the
// maybe_decompress(lz4_wrap(bytes)) == bytes round-trip law; VP creation
// itself is out of scope (spec.md §1 non-goals).
func CompressLZ4(raw []byte, blockSize uint32) ([]byte, error) {
	if blockSize == 0 {
		blockSize = 1 << 16
	}
	var compressed []byte
	var table []byte
	for off := 0; off < len(raw); off += int(blockSize) {
		end := off + int(blockSize)
		if end > len(raw) {
			end = len(raw)
		}
		chunk := raw[off:end]
		dst := make([]byte, lz4.CompressBlockBound(len(chunk)))
		var c lz4.Compressor
		n, err := c.CompressBlock(chunk, dst)
		if err != nil {
			return nil, fmt.Errorf("vpfile: lz4 block encode: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("vpfile: lz4 block encode: dst buffer undersized for chunk of %d bytes", len(chunk))
		}
		compressed = append(compressed, dst[:n]...)
		sizeBuf := make([]byte, 4)
		binary.LittleEndian.PutUint32(sizeBuf, uint32(n))
		table = append(table, sizeBuf...)
	}

	out := make([]byte, 0, 4+len(compressed)+len(table)+lz4TrailerSize)
	out = append(out, LZ4Magic...)
	out = append(out, compressed...)
	blockTableOffset := uint32(len(compressed))
	out = append(out, table...)

	trailer := make([]byte, lz4TrailerSize)
	binary.LittleEndian.PutUint32(trailer[0:4], blockTableOffset)
	binary.LittleEndian.PutUint32(trailer[4:8], uint32(len(raw)))
	binary.LittleEndian.PutUint32(trailer[8:12], blockSize)
	out = append(out, trailer...)
	return out, nil
}
