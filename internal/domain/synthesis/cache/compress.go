package cache

import (
	"bytes"
	"compress/gzip"
	"io"
)

// maybeCompress gzips payloads at or above the floor. Payloads that do not
// shrink are kept raw.
func maybeCompress(data []byte, floor int) ([]byte, bool) {
	if floor <= 0 || len(data) < floor {
		return data, false
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return data, false
	}
	if err := zw.Close(); err != nil {
		return data, false
	}
	if buf.Len() >= len(data) {
		return data, false
	}
	return buf.Bytes(), true
}

func decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
