// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/farc

package farc

import "hash/crc32"

// HashName returns the FARC name checksum: CRC-32 (IEEE) over the name
// encoded as UTF-16LE. Names are hashed exactly as stored, without case
// folding or separator rewriting.
func HashName(name string) uint32 {
	var (
		buf [256]byte
		crc uint32
	)

	n := 0
	for _, r := range name {
		if n+4 > len(buf) {
			crc = crc32.Update(crc, crc32.IEEETable, buf[:n])
			n = 0
		}

		if r >= 0x10000 {
			r -= 0x10000
			hi := 0xD800 + (r>>10)&0x3FF
			lo := 0xDC00 + r&0x3FF
			buf[n], buf[n+1] = byte(hi), byte(hi>>8)
			buf[n+2], buf[n+3] = byte(lo), byte(lo>>8)
			n += 4
			continue
		}

		buf[n], buf[n+1] = byte(r), byte(r>>8)
		n += 2
	}

	return crc32.Update(crc, crc32.IEEETable, buf[:n])
}
