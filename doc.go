// Copyright 2015 Ulrich Kunitz. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xz supports the compression and decompression of xz files:
// Stream Header/Footer, an Index of per-block records, and one or more
// Blocks each carrying a filter chain (Delta/BCJ ahead of LZMA2) and a
// checksum (CRC32, CRC64, SHA256 or none). NewWriterConfig's Workers
// field switches between a single growing block and a pipeline of
// independent, concurrently compressed blocks; NewReaderConfig mirrors
// that on decode when the source supports random access.
package xz
