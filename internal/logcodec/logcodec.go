// Package logcodec frames individual log-file payloads with an
// optional compression algorithm. It is the concrete home for
// github.com/golang/snappy and github.com/pierrec/lz4 named in
// SPEC_FULL.md §1b: sidb's CompressAlgorithm applied narrowly to the
// shared append-only log, never to record pages (whose fixed, directly
// addressed layout the compression would break).
package logcodec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4"

	"github.com/jmcarbo/reldb/internal/config"
)

// frame layout: [1 byte algorithm tag][4 bytes uvarint-free length][payload]
const (
	tagNone   byte = 0
	tagSnappy byte = 1
	tagLZ4    byte = 2
)

func tagFor(alg config.CompressAlgorithm) byte {
	switch alg {
	case config.CompressSnappy:
		return tagSnappy
	case config.CompressLZ4:
		return tagLZ4
	default:
		return tagNone
	}
}

// Encode compresses payload per alg and prepends a small self-describing
// header so Decode never needs out-of-band knowledge of which algorithm
// produced a given log entry.
func Encode(alg config.CompressAlgorithm, payload []byte) ([]byte, error) {
	tag := tagFor(alg)
	var body []byte
	switch tag {
	case tagSnappy:
		body = snappy.Encode(nil, payload)
	case tagLZ4:
		buf := &bytes.Buffer{}
		w := lz4.NewWriter(buf)
		w.NoChecksum = true
		if _, err := w.Write(payload); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 flush: %w", err)
		}
		body = buf.Bytes()
	default:
		body = payload
	}
	out := make([]byte, 0, 5+len(body))
	out = append(out, tag)
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(body)))
	out = append(out, lenBuf...)
	out = append(out, body...)
	return out, nil
}

// Decode reads one frame from the front of buf and returns the
// decompressed payload plus the number of bytes consumed.
func Decode(buf []byte) (payload []byte, consumed int, err error) {
	if len(buf) < 5 {
		return nil, 0, fmt.Errorf("log frame truncated: %d bytes", len(buf))
	}
	tag := buf[0]
	bodyLen := int(binary.LittleEndian.Uint32(buf[1:5]))
	if len(buf) < 5+bodyLen {
		return nil, 0, fmt.Errorf("log frame body truncated: want %d have %d", bodyLen, len(buf)-5)
	}
	body := buf[5 : 5+bodyLen]
	switch tag {
	case tagSnappy:
		payload, err = snappy.Decode(nil, body)
		if err != nil {
			return nil, 0, fmt.Errorf("snappy decompress: %w", err)
		}
	case tagLZ4:
		out := &bytes.Buffer{}
		r := lz4.NewReader(bytes.NewReader(body))
		if _, err = out.ReadFrom(r); err != nil {
			return nil, 0, fmt.Errorf("lz4 decompress: %w", err)
		}
		payload = out.Bytes()
	default:
		payload = append([]byte(nil), body...)
	}
	return payload, 5 + bodyLen, nil
}
