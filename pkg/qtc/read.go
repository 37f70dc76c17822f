package qtc

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"golang.org/x/sys/unix"

	"github.com/samcharles93/quantkit/pkg/blockq"
	"github.com/samcharles93/quantkit/pkg/tensorq"
)

// File is a parsed read-only view of a container. Tensor payloads are
// zero-copy slices of the underlying bytes, which may be an mmap; the
// caller must not retain them past Close.
type File struct {
	data    []byte
	hdr     header
	entries []entry
	names   []string
	byName  map[string]int
	mmapped bool
}

// Read parses a container held in memory. Compressed containers are
// decompressed transparently. Structural damage is rejected with
// ErrCorruptFile; use Verify to enumerate every problem in a damaged file.
func Read(data []byte) (*File, error) {
	if IsCompressed(data) {
		plain, err := Decompress(data)
		if err != nil {
			return nil, err
		}
		data = plain
	}
	return parse(data, false)
}

// Open maps a container file read-only. If mmap is unavailable the file is
// read into memory instead. Close releases the mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < headerSize || size64 > int64(int(^uint(0)>>1)) {
		return nil, ErrCorruptFile
	}
	size := int(size64)

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		if IsCompressed(data) {
			// Compressed containers cannot be used in place.
			plain, derr := Decompress(data)
			_ = unix.Munmap(data)
			if derr != nil {
				return nil, derr
			}
			return parse(plain, false)
		}
		qf, perr := parse(data, true)
		if perr != nil {
			_ = unix.Munmap(data)
			return nil, perr
		}
		return qf, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return Read(data)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

func parse(data []byte, mmapped bool) (*File, error) {
	hdr, ok := decodeHeader(data)
	if !ok {
		return nil, ErrInvalidMagic
	}
	if hdr.Version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, hdr.Version)
	}
	if hdr.TensorCount == 0 {
		return nil, fmt.Errorf("%w: empty directory", ErrCorruptFile)
	}

	dirOff := alignUp(headerSize+int(hdr.MetaLen), dirAlign)
	stringsOff := dirOff + int(hdr.TensorCount)*entrySize
	stringsEnd := stringsOff + int(hdr.StringsLen)
	if int(hdr.MetaLen) > len(data) || stringsEnd > len(data) || stringsEnd < stringsOff {
		return nil, fmt.Errorf("%w: directory out of bounds", ErrCorruptFile)
	}

	entries := make([]entry, hdr.TensorCount)
	names := make([]string, hdr.TensorCount)
	byName := make(map[string]int, hdr.TensorCount)
	for i := range entries {
		e := decodeEntry(data[dirOff+i*entrySize:])

		nameEnd := uint64(e.NameOff) + uint64(e.NameLen)
		if nameEnd > uint64(hdr.StringsLen) || e.NameLen == 0 {
			return nil, fmt.Errorf("%w: entry %d name out of bounds", ErrCorruptFile, i)
		}
		name := string(data[stringsOff+int(e.NameOff) : stringsOff+int(nameEnd)])

		if e.Rank == 0 || e.Rank > MaxRank {
			return nil, fmt.Errorf("%w: %s: rank %d", ErrCorruptFile, name, e.Rank)
		}
		dataEnd := e.DataOff + e.DataLen
		if dataEnd < e.DataOff || dataEnd > uint64(len(data)) || e.DataOff < uint64(stringsEnd) {
			return nil, fmt.Errorf("%w: %s: data out of bounds", ErrCorruptFile, name)
		}
		auxEnd := e.AuxOff + e.AuxLen
		if auxEnd < e.AuxOff || auxEnd > uint64(len(data)) {
			return nil, fmt.Errorf("%w: %s: aux out of bounds", ErrCorruptFile, name)
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate tensor %s", ErrCorruptFile, name)
		}

		entries[i] = e
		names[i] = name
		byName[name] = i
	}

	return &File{
		data:    data,
		hdr:     hdr,
		entries: entries,
		names:   names,
		byName:  byName,
		mmapped: mmapped,
	}, nil
}

// Close releases any mmap backing. The File must not be used afterwards.
func (f *File) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.data)
	}
	f.data = nil
	f.entries = nil
	f.names = nil
	f.byName = nil
	f.mmapped = false
	return err
}

func (f *File) Count() int      { return len(f.entries) }
func (f *File) Names() []string { return append([]string(nil), f.names...) }

// MetadataRaw returns the stored JSON blob.
func (f *File) MetadataRaw() []byte {
	return f.data[headerSize : headerSize+int(f.hdr.MetaLen)]
}

// Metadata unmarshals the metadata blob into v.
func (f *File) Metadata(v any) error {
	if f.hdr.MetaLen == 0 {
		return nil
	}
	if err := json.Unmarshal(f.MetadataRaw(), v); err != nil {
		return fmt.Errorf("qtc: metadata: %w", err)
	}
	return nil
}

// Info returns the directory description of tensor i.
func (f *File) Info(i int) (tensorq.Info, error) {
	if i < 0 || i >= len(f.entries) {
		return tensorq.Info{}, fmt.Errorf("%w: index %d", ErrTensorNotFound, i)
	}
	e := f.entries[i]
	dims := make([]uint64, e.Rank)
	copy(dims, e.Dims[:e.Rank])
	return tensorq.Info{
		Name:   f.names[i],
		Scheme: blockq.Scheme(e.Scheme),
		Dims:   dims,
	}, nil
}

// Data returns the payload bytes of tensor i without copying.
func (f *File) Data(i int) ([]byte, error) {
	if i < 0 || i >= len(f.entries) {
		return nil, fmt.Errorf("%w: index %d", ErrTensorNotFound, i)
	}
	e := f.entries[i]
	return f.data[e.DataOff : e.DataOff+e.DataLen], nil
}

// Lookup returns the directory index of the named tensor.
func (f *File) Lookup(name string) (int, bool) {
	i, ok := f.byName[name]
	return i, ok
}

// Tensor materialises tensor i over the mapped payload without copying it.
// The tensor shares the file's lifetime.
func (f *File) Tensor(i int) (*tensorq.Tensor, error) {
	info, err := f.Info(i)
	if err != nil {
		return nil, err
	}
	raw, err := f.Data(i)
	if err != nil {
		return nil, err
	}
	return tensorq.NewOwned(info, raw)
}

// TensorByName is Tensor keyed by directory name.
func (f *File) TensorByName(name string) (*tensorq.Tensor, error) {
	i, ok := f.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return f.Tensor(i)
}
