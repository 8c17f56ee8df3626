package base

import "hash/crc32"

// castagnoliTable is the CRC32C (Castagnoli) polynomial table, matching the
// teacher's internal/crc package (which wraps the same stdlib table).
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the CRC32C checksum of b.
func CRC32C(b []byte) uint32 {
	return crc32.Checksum(b, castagnoliTable)
}

// maskDelta is added (mod 2^32) after right-rotating a raw CRC by 15 bits, so
// that a stored checksum never collides with a plain, unmasked CRC embedded
// elsewhere in the file.
const maskDelta = 0xa282ead8

// MaskCRC returns a masked representation of crc. Masked checksums are
// stored on disk rather than raw checksums, as described in §4.1.
func MaskCRC(crc uint32) uint32 {
	return rotateRight(crc, 15) + maskDelta
}

// UnmaskCRC is the inverse of MaskCRC.
func UnmaskCRC(masked uint32) uint32 {
	rot := masked - maskDelta
	return rotateLeft(rot, 15)
}

func rotateRight(x uint32, n uint) uint32 {
	return (x >> n) | (x << (32 - n))
}

func rotateLeft(x uint32, n uint) uint32 {
	return (x << n) | (x >> (32 - n))
}
