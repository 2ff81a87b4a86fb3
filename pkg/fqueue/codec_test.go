package fqueue

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRecord_RoundTripsEncodeRecord(t *testing.T) {
	t.Parallel()

	for _, body := range [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("hello, fqueue"),
		bytes.Repeat([]byte{0x42}, 4096),
	} {
		frame := encodeRecord(body)
		got, err := decodeRecord(bytes.NewReader(frame))
		require.NoError(t, err)
		require.Equal(t, body, got)
	}
}

func TestDecodeRecord_ShortReadIsEOF(t *testing.T) {
	t.Parallel()

	frame := encodeRecord([]byte("hello"))

	_, err := decodeRecord(bytes.NewReader(frame[:3])) // partial header
	require.ErrorIs(t, err, errEOF)

	_, err = decodeRecord(bytes.NewReader(frame[:len(frame)-2])) // partial body
	require.ErrorIs(t, err, errEOF)

	_, err = decodeRecord(bytes.NewReader(nil))
	require.ErrorIs(t, err, errEOF)
}

func TestDecodeRecord_CRCMismatchIsCorrupt(t *testing.T) {
	t.Parallel()

	frame := encodeRecord([]byte("hello"))
	frame[len(frame)-1] ^= 0xFF // flip a body bit without touching the header

	_, err := decodeRecord(bytes.NewReader(frame))
	require.ErrorIs(t, err, errCorrupt)
}

func TestDecodeRecord_ImplausibleLengthIsCorrupt(t *testing.T) {
	t.Parallel()

	header := bytes.Repeat([]byte{0xFF}, recordHeaderSize)
	_, err := decodeRecord(bytes.NewReader(header))
	require.ErrorIs(t, err, errCorrupt)
}

func TestCompressPayload_RoundTrips(t *testing.T) {
	t.Parallel()

	for _, payload := range [][]byte{
		[]byte(""),
		[]byte("a"),
		bytes.Repeat([]byte("fqueue"), 1000),
	} {
		compressed, err := compressPayload(payload)
		require.NoError(t, err)

		got, err := decompressPayload(compressed)
		require.NoError(t, err)
		require.Equal(t, payload, got)
	}
}

func TestDecompressPayload_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := decompressPayload([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.Error(t, err)
	require.False(t, errors.Is(err, errEOF))
}
