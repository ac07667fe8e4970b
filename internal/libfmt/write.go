package libfmt

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/hashicorp/go-msgpack/codec"
)

var msgpackHandle = &codec.MsgpackHandle{}

// Write serializes metadata and bitcode into path as a version-1 .slib
// file: magic, version, 24 reserved bytes, the MessagePack metadata blob
// length-prefixed, then the bitcode blob length-prefixed. Mirrors
// LibraryFormat.write field-for-field.
func Write(path string, metadata Metadata, bitcode []byte) error {
	var metaBuf bytes.Buffer
	enc := codec.NewEncoder(&metaBuf, msgpackHandle)
	if err := enc.Encode(metadata); err != nil {
		return err
	}
	metaBlob := metaBuf.Bytes()

	var out bytes.Buffer
	out.Write(Magic[:])
	writeUint32(&out, Version)
	out.Write(make([]byte, 24)) // reserved spares, always zero.
	writeUint64(&out, uint64(len(metaBlob)))
	out.Write(metaBlob)
	writeUint64(&out, uint64(len(bitcode)))
	out.Write(bitcode)

	return os.WriteFile(path, out.Bytes(), 0o644)
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
