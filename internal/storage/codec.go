package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/dreamware/pooldb/internal/pool"
)

// Shard blob format
const (
	// Header: Magic(4) + Version(1) + Flags(1) + RowCount(4) + Checksum(4) + Reserved(2)
	ShardMagic      = "PLDB"
	ShardVersion    = uint8(1)
	ShardHeaderSize = 16

	// Row prefix: Key(8) + Sorted(1) + ValueCount(4), then ValueCount float64 bits
	rowHeaderSize = 13
	valueSize     = 8
)

var (
	errBadMagic    = errors.New("invalid shard magic")
	errTruncated   = errors.New("shard data truncated")
	errTrailing    = errors.New("trailing bytes after last row")
	errChecksum    = errors.New("checksum mismatch")
	errSortedFlag  = errors.New("invalid sorted flag")
	errUnsupported = errors.New("unsupported shard version")
)

// ShardHeader is the fixed-size prefix of every shard blob.
type ShardHeader struct {
	Magic    [4]byte
	Version  uint8
	Flags    uint8
	RowCount uint32
	Checksum uint32 // CRC-32 (IEEE) of the row data
	Reserved uint16
}

func encodeHeader(h ShardHeader) []byte {
	buf := make([]byte, ShardHeaderSize)
	copy(buf[0:4], h.Magic[:])
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint32(buf[6:10], h.RowCount)
	binary.BigEndian.PutUint32(buf[10:14], h.Checksum)
	binary.BigEndian.PutUint16(buf[14:16], h.Reserved)
	return buf
}

func decodeHeader(data []byte) (ShardHeader, error) {
	if len(data) < ShardHeaderSize {
		return ShardHeader{}, fmt.Errorf("%w: header is %d bytes", errTruncated, len(data))
	}
	var h ShardHeader
	copy(h.Magic[:], data[0:4])
	h.Version = data[4]
	h.Flags = data[5]
	h.RowCount = binary.BigEndian.Uint32(data[6:10])
	h.Checksum = binary.BigEndian.Uint32(data[10:14])
	h.Reserved = binary.BigEndian.Uint16(data[14:16])
	return h, nil
}

// Encode serializes every row of the table. Floats are written as their
// IEEE-754 bits so a round trip is exact.
func Encode(table *pool.Table) []byte {
	rows := table.Rows()

	size := 0
	for _, r := range rows {
		size += rowHeaderSize + len(r.Values)*valueSize
	}
	body := make([]byte, size)
	off := 0
	for _, r := range rows {
		binary.BigEndian.PutUint64(body[off:], uint64(r.Key))
		if r.Sorted {
			body[off+8] = 1
		}
		binary.BigEndian.PutUint32(body[off+9:], uint32(len(r.Values)))
		off += rowHeaderSize
		for _, v := range r.Values {
			binary.BigEndian.PutUint64(body[off:], math.Float64bits(v))
			off += valueSize
		}
	}

	header := ShardHeader{
		Version:  ShardVersion,
		RowCount: uint32(len(rows)),
		Checksum: crc32.ChecksumIEEE(body),
	}
	copy(header.Magic[:], ShardMagic)

	out := make([]byte, 0, ShardHeaderSize+len(body))
	out = append(out, encodeHeader(header)...)
	return append(out, body...)
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (*pool.Table, error) {
	header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if string(header.Magic[:]) != ShardMagic {
		return nil, errBadMagic
	}
	if header.Version != ShardVersion {
		return nil, fmt.Errorf("%w: %d", errUnsupported, header.Version)
	}

	body := data[ShardHeaderSize:]
	if sum := crc32.ChecksumIEEE(body); sum != header.Checksum {
		return nil, fmt.Errorf("%w: got %08x, header says %08x", errChecksum, sum, header.Checksum)
	}

	if int(header.RowCount) > len(body)/rowHeaderSize {
		return nil, fmt.Errorf("%w: %d rows in %d bytes", errTruncated, header.RowCount, len(body))
	}
	rows := make([]pool.Row, 0, header.RowCount)
	off := 0
	for i := uint32(0); i < header.RowCount; i++ {
		if len(body)-off < rowHeaderSize {
			return nil, fmt.Errorf("%w: row %d", errTruncated, i)
		}
		key := int64(binary.BigEndian.Uint64(body[off:]))
		flag := body[off+8]
		if flag > 1 {
			return nil, fmt.Errorf("%w %d for pool %d", errSortedFlag, flag, key)
		}
		n := int(binary.BigEndian.Uint32(body[off+9:]))
		off += rowHeaderSize
		if (len(body)-off)/valueSize < n {
			return nil, fmt.Errorf("%w: pool %d wants %d values", errTruncated, key, n)
		}
		values := make([]float64, n)
		for j := range values {
			values[j] = math.Float64frombits(binary.BigEndian.Uint64(body[off:]))
			off += valueSize
		}
		rows = append(rows, pool.Row{Key: key, Values: values, Sorted: flag == 1})
	}
	if off != len(body) {
		return nil, errTrailing
	}

	return pool.Restore(rows)
}
