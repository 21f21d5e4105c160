package serial

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ghartrid/voltree/internal/apierr"
)

type writer struct {
	buf bytes.Buffer
}

func (w *writer) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) i64(v int64) { w.u64(uint64(v)) }

func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf.Write(b)
}

func (w *writer) fixed(b []byte) { w.buf.Write(b) }

func (w *writer) str(s string) { w.bytes([]byte(s)) }

func (w *writer) time(t time.Time) { w.i64(t.UnixNano()) }

type reader struct {
	data []byte
	pos  int
}

func newReader(data []byte) *reader { return &reader{data: data} }

func (r *reader) need(n int) error {
	if r.pos+n > len(r.data) {
		return fmt.Errorf("%w: truncated at offset %d, need %d more bytes", apierr.ErrFormat, r.pos, n)
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) boolean() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) i64() (int64, error) {
	v, err := r.u64()
	return int64(v), err
}

func (r *reader) bytesN() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

func (r *reader) fixedN(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *reader) str() (string, error) {
	b, err := r.bytesN()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) when() (time.Time, error) {
	v, err := r.i64()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, v).UTC(), nil
}
