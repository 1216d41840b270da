// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wireformat implements the single binary encoding used for both
// on-disk block/transaction records and the payloads of peer-to-peer
// messages: length-prefixed byte strings, little-endian fixed-width
// integers, and bounded deserialization throughout (nothing here ever
// allocates more than the caller's declared maximum before validating a
// length prefix). Values carry no type tags of their own; peerprotocol
// prefixes each message with its Command tag.
package wireformat

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ErrSerializationFailed wraps any I/O or bounds failure while encoding or
// decoding a wire value.
var ErrSerializationFailed = errors.New("serialization failed")

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeBytesFixed(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

// writeBytesLenPrefixed writes an 8-byte LE length prefix followed by b.
func writeBytesLenPrefixed(w io.Writer, b []byte) error {
	if err := writeUint64(w, uint64(len(b))); err != nil {
		return err
	}
	return writeBytesFixed(w, b)
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readBytesFixed(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// readBytesLenPrefixed reads an 8-byte LE length prefix and then that many
// bytes, refusing to allocate more than maxLen regardless of what the
// prefix claims.
func readBytesLenPrefixed(r io.Reader, maxLen uint64) ([]byte, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	if n > maxLen {
		return nil, errors.Wrapf(ErrSerializationFailed,
			"length-prefixed field claims %d bytes, exceeds bound %d", n, maxLen)
	}
	return readBytesFixed(r, int(n))
}
