package libfmt

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/hashicorp/go-msgpack/codec"
)

// readExact reads exactly size bytes from f, returning a FormatError
// tagged with the right truncation code (CE3510 for the metadata section,
// CE3511 for the bitcode section) when fewer bytes are available.
func readExact(f io.Reader, size int, path, section string) ([]byte, error) {
	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if n != size {
		code := "CE3510"
		if section == "bitcode" {
			code = "CE3511"
		}
		return nil, &FormatError{Code: code, Fields: map[string]any{
			"path": path, "expected": size, "actual": n,
		}}
	}
	return buf, nil
}

// readHeaderAndMetadata reads and validates the magic/version/reserved
// header, then decodes the MessagePack metadata blob. Shared by Read and
// ReadMetadataOnly, mirroring _read_header_and_metadata.
func readHeaderAndMetadata(f io.Reader, path string) (Metadata, error) {
	var meta Metadata

	magic, err := readExact(f, 16, path, "metadata")
	if err != nil {
		return meta, err
	}
	if !bytes.Equal(magic, Magic[:]) {
		return meta, &FormatError{Code: "CE3508", Fields: map[string]any{"path": path}}
	}

	rest, err := readExact(f, 28, path, "metadata")
	if err != nil {
		return meta, err
	}
	version := binary.LittleEndian.Uint32(rest[0:4])
	if version != Version {
		return meta, &FormatError{Code: "CE3509", Fields: map[string]any{
			"path": path, "version": version, "supported": Version,
		}}
	}

	metaLenBytes, err := readExact(f, 8, path, "metadata")
	if err != nil {
		return meta, err
	}
	metaLen := binary.LittleEndian.Uint64(metaLenBytes)

	metaBlob, err := readExact(f, int(metaLen), path, "metadata")
	if err != nil {
		return meta, err
	}

	dec := codec.NewDecoder(bytes.NewReader(metaBlob), msgpackHandle)
	if err := dec.Decode(&meta); err != nil {
		return meta, &FormatError{Code: "CE3512", Fields: map[string]any{
			"path": path, "reason": err.Error(),
		}}
	}
	return meta, nil
}

// Read loads a .slib file's metadata and raw bitcode. Errors are
// *FormatError for every CE3508-CE3513 condition, a plain error
// otherwise.
func Read(path string) (Metadata, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, nil, err
	}
	defer f.Close()

	meta, err := readHeaderAndMetadata(f, path)
	if err != nil {
		return meta, nil, err
	}

	bcLenBytes, err := readExact(f, 8, path, "bitcode")
	if err != nil {
		return meta, nil, err
	}
	bcLen := binary.LittleEndian.Uint64(bcLenBytes)

	bitcode, err := readExact(f, int(bcLen), path, "bitcode")
	if err != nil {
		return meta, nil, err
	}

	if info, err := os.Stat(path); err == nil && info.Size() > MaxFileSize {
		return meta, nil, &FormatError{Code: "CE3513", Fields: map[string]any{
			"path": path, "size": info.Size(), "max_size": MaxFileSize,
		}}
	}

	return meta, bitcode, nil
}

// ReadMetadataOnly decodes just the metadata header, skipping the
// bitcode entirely -- the fast path spec §6's library-metadata query
// flag uses, grounded on LibraryFormat.read_metadata_only.
func ReadMetadataOnly(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()
	return readHeaderAndMetadata(f, path)
}
