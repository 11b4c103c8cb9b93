package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// maxSeqLen caps decoded sequence lengths so a corrupt length cannot force a huge allocation.
const maxSeqLen = 1 << 20

// DataWriter appends bincode-style values: little-endian fixed-width integers,
// u64 lengths for strings and sequences, u8 tags for options and bools.
type DataWriter struct {
	buf []byte
}

func NewDataWriter() *DataWriter {
	return &DataWriter{buf: make([]byte, 0, 64)}
}

func (dw *DataWriter) WriteUint8(v uint8) {
	dw.buf = append(dw.buf, v)
}

func (dw *DataWriter) WriteBool(v bool) {
	if v {
		dw.WriteUint8(1)
		return
	}
	dw.WriteUint8(0)
}

func (dw *DataWriter) WriteUint32(v uint32) {
	dw.buf = binary.LittleEndian.AppendUint32(dw.buf, v)
}

func (dw *DataWriter) WriteUint64(v uint64) {
	dw.buf = binary.LittleEndian.AppendUint64(dw.buf, v)
}

func (dw *DataWriter) WriteFloat32(v float32) {
	dw.WriteUint32(math.Float32bits(v))
}

func (dw *DataWriter) WriteLen(n int) {
	dw.WriteUint64(uint64(n))
}

func (dw *DataWriter) WriteString(s string) {
	dw.WriteLen(len(s))
	dw.buf = append(dw.buf, s...)
}

func (dw *DataWriter) Bytes() []byte {
	return dw.buf
}

func (dw *DataWriter) Len() int {
	return len(dw.buf)
}

func (dw *DataWriter) Reset() {
	dw.buf = dw.buf[:0]
}

// DataReader is the decoding counterpart of DataWriter. It reads exactly the
// bytes it needs, so it can consume an unframed value from a live stream.
type DataReader struct {
	r       io.Reader
	scratch [8]byte
}

func NewDataReader(r io.Reader) *DataReader {
	return &DataReader{r: r}
}

func (dr *DataReader) fill(n int) ([]byte, error) {
	b := dr.scratch[:n]
	if _, err := io.ReadFull(dr.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (dr *DataReader) ReadUint8() (uint8, error) {
	b, err := dr.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (dr *DataReader) ReadBool() (bool, error) {
	v, err := dr.ReadUint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool byte %d", v)
	}
}

func (dr *DataReader) ReadUint32() (uint32, error) {
	b, err := dr.fill(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (dr *DataReader) ReadUint64() (uint64, error) {
	b, err := dr.fill(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (dr *DataReader) ReadFloat32() (float32, error) {
	v, err := dr.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (dr *DataReader) ReadLen() (int, error) {
	n, err := dr.ReadUint64()
	if err != nil {
		return 0, err
	}
	if n > maxSeqLen {
		return 0, fmt.Errorf("sequence length %d exceeds %d", n, maxSeqLen)
	}
	return int(n), nil
}

func (dr *DataReader) ReadString() (string, error) {
	n, err := dr.ReadLen()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(dr.r, b); err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("string is not valid utf-8")
	}
	return string(b), nil
}
