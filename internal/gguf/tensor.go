package gguf

import (
	"fmt"
	"os"
)

// TensorByName returns the directory record for the given name.
func (f *File) TensorByName(name string) (TensorInfo, bool) {
	for _, t := range f.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return TensorInfo{}, false
}

// TensorRaw returns the packed payload bytes for a directory record. On a
// mapped file the slice is zero-copy and must not outlive the File;
// otherwise the payload is read from disk.
func (f *File) TensorRaw(info TensorInfo) ([]byte, error) {
	n, err := info.Elements()
	if err != nil {
		return nil, err
	}
	byteSize, err := info.Type.ByteSize(n)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", info.Name, err)
	}

	off := int64(f.DataOffset + info.Offset)
	if f.Data != nil {
		if int64(len(f.Data)) < off+int64(byteSize) {
			return nil, fmt.Errorf("tensor %s: payload past end of file", info.Name)
		}
		return f.Data[off : off+int64(byteSize)], nil
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	buf := make([]byte, byteSize)
	if _, err := file.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("read tensor %s: %w", info.Name, err)
	}
	return buf, nil
}
