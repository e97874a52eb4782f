// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vmproto

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// compressThreshold is the smallest payload worth probing. Control
// messages (Hello, Done, Progress) sit well below it and always
// travel raw.
const compressThreshold = 512

// zstdRatioMin is the minimum zstd compression ratio that justifies
// zstd over LZ4. Below it LZ4's far cheaper decode wins; below
// lz4RatioMin nothing wins and the payload travels raw.
const (
	zstdRatioMin = 1.5
	lz4RatioMin  = 1.1
)

// zstdEncoder and zstdDecoder are shared across frames. Both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("vmproto: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("vmproto: zstd decoder initialization failed: " + err.Error())
	}
}

// compressPayload probes payload and returns the wire form plus the
// flag bits describing it. The compressed form carries the uvarint
// uncompressed length first, so the reader can allocate exactly once.
func compressPayload(payload []byte) ([]byte, uint8) {
	if len(payload) < compressThreshold {
		return payload, 0
	}

	zc := zstdEncoder.EncodeAll(payload, nil)
	ratio := float64(len(payload)) / float64(len(zc))

	switch {
	case ratio >= zstdRatioMin:
		return prependLength(zc, len(payload)), FlagZstd

	case ratio >= lz4RatioMin:
		bound := lz4.CompressBlockBound(len(payload))
		dst := make([]byte, bound)
		written, err := lz4.CompressBlock(payload, dst, nil)
		// CompressBlock returns 0 for incompressible input. The zstd
		// probe said the data compresses, but LZ4 finds fewer matches
		// than zstd; fall back to raw rather than ship a bigger frame.
		if err != nil || written == 0 || written >= len(payload) {
			return payload, 0
		}
		return prependLength(dst[:written], len(payload)), FlagLZ4

	default:
		return payload, 0
	}
}

// decompressPayload reverses compressPayload according to flags.
func decompressPayload(payload []byte, flags uint8) ([]byte, error) {
	switch flags {
	case 0:
		return payload, nil

	case FlagLZ4:
		size, body, err := splitLength(payload)
		if err != nil {
			return nil, err
		}
		dst := make([]byte, size)
		read, err := lz4.UncompressBlock(body, dst)
		if err != nil {
			return nil, fmt.Errorf("vmproto: lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("vmproto: lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return dst, nil

	case FlagZstd:
		size, body, err := splitLength(payload)
		if err != nil {
			return nil, err
		}
		result, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("vmproto: zstd decompress: %w", err)
		}
		if len(result) != size {
			return nil, fmt.Errorf("vmproto: zstd decompress: got %d bytes, expected %d", len(result), size)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("vmproto: unknown frame flags 0x%02x", flags)
	}
}

// prependLength builds the compressed wire form: uvarint uncompressed
// length, then the compressed bytes.
func prependLength(compressed []byte, uncompressedSize int) []byte {
	prefix := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(prefix, uint64(uncompressedSize))
	out := make([]byte, 0, n+len(compressed))
	out = append(out, prefix[:n]...)
	return append(out, compressed...)
}

// splitLength parses the uvarint uncompressed-length prefix. The
// declared size is untrusted; it is capped at MaxFrameSize before any
// allocation.
func splitLength(payload []byte) (int, []byte, error) {
	size, n := binary.Uvarint(payload)
	if n <= 0 {
		return 0, nil, fmt.Errorf("vmproto: malformed length prefix")
	}
	if size > MaxFrameSize {
		return 0, nil, fmt.Errorf("%w: declared uncompressed size %d", ErrFrameTooLarge, size)
	}
	return int(size), payload[n:], nil
}
