package fqueue

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// recordHeaderSize is the fixed-width self-delimiting prefix written ahead
// of every record body: a little-endian uint32 body length followed by a
// little-endian uint32 CRC32 (IEEE) of the body.
const recordHeaderSize = 8

// maxRecordSize bounds the body length read from a record header. A
// corrupted length field could otherwise make decodeRecord try to allocate
// and read an arbitrary amount of memory before the CRC check ever runs.
const maxRecordSize = 64 << 20

// encodeRecord frames body as a single appendable byte slice.
func encodeRecord(body []byte) []byte {
	frame := make([]byte, recordHeaderSize+len(body))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(body))
	copy(frame[recordHeaderSize:], body)
	return frame
}

// decodeRecord reads one frame from r, which must be positioned at the
// start of a record. It returns errEOF when fewer bytes are available than
// the frame needs (the writer hasn't finished appending yet, or this is
// genuinely the end of written data), and errCorrupt when the header's
// length exceeds maxRecordSize or a full frame is available but the body's
// CRC doesn't match.
func decodeRecord(r io.Reader) ([]byte, error) {
	header := make([]byte, recordHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, errEOF
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	wantCRC := binary.LittleEndian.Uint32(header[4:8])

	if length > maxRecordSize {
		return nil, errCorrupt
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errEOF
	}

	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, errCorrupt
	}

	return body, nil
}

// compressPayload deflates b. Used when Options.Compression is
// CompressionDeflate, the default.
func compressPayload(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("new deflate writer: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return nil, fmt.Errorf("deflate payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close deflate writer: %w", err)
	}
	return buf.Bytes(), nil
}

// decompressPayload inflates b. A malformed deflate stream is reported to
// the caller as a plain error - getOnce treats it the same as a CRC
// failure, since the framing passed its own integrity check but the
// content it wraps is not what Put produced.
func decompressPayload(b []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(b))
	defer func() { _ = r.Close() }()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflate payload: %w", err)
	}
	return out, nil
}

func (q *Queue) decompress(body []byte) ([]byte, error) {
	if q.opts.Compression == CompressionNone {
		return body, nil
	}
	return decompressPayload(body)
}

func (q *Queue) compress(payload []byte) ([]byte, error) {
	if q.opts.Compression == CompressionNone {
		return payload, nil
	}
	return compressPayload(payload)
}
