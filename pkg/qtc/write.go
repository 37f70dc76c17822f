package qtc

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/samcharles93/quantkit/pkg/tensorq"
)

// Write assembles a container from the given tensors and metadata. The
// metadata value is marshalled to JSON and stored opaquely; nil stores an
// empty object. Tensors are written sorted by name so the same inputs
// always produce byte-identical output.
//
// Layout: header | metadata | directory entries | strings | padded payloads.
func Write(tensors []*tensorq.Tensor, meta any) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("qtc: at least one tensor required")
	}

	sorted := make([]*tensorq.Tensor, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })

	seen := make(map[string]struct{}, len(sorted))
	for _, t := range sorted {
		if t.Name() == "" {
			return nil, errors.New("qtc: tensor name must be non-empty")
		}
		if _, dup := seen[t.Name()]; dup {
			return nil, fmt.Errorf("qtc: duplicate tensor name %q", t.Name())
		}
		seen[t.Name()] = struct{}{}
		if len(t.Dims()) > MaxRank {
			return nil, fmt.Errorf("qtc: %s: rank %d exceeds %d", t.Name(), len(t.Dims()), MaxRank)
		}
	}

	if meta == nil {
		meta = struct{}{}
	}
	metaBlob, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("qtc: marshal metadata: %w", err)
	}

	var strTab []byte
	entries := make([]entry, len(sorted))
	for i, t := range sorted {
		name := []byte(t.Name())
		entries[i].NameOff = uint32(len(strTab))
		entries[i].NameLen = uint32(len(name))
		strTab = append(strTab, name...)

		entries[i].Scheme = uint32(t.Scheme())
		dims := t.Dims()
		entries[i].Rank = uint32(len(dims))
		copy(entries[i].Dims[:], dims)
		entries[i].BlockSize = uint32(t.Scheme().BlockSize())
		entries[i].DataLen = uint64(len(t.Raw()))
	}

	dirOff := alignUp(headerSize+len(metaBlob), dirAlign)
	stringsOff := dirOff + len(entries)*entrySize
	dataOff := alignUp(stringsOff+len(strTab), dataAlign)

	total := dataOff
	for i, t := range sorted {
		entries[i].DataOff = uint64(total)
		total = alignUp(total+len(t.Raw()), dataAlign)
	}
	// No trailing pad after the last payload.
	last := len(sorted) - 1
	total = int(entries[last].DataOff) + len(sorted[last].Raw())

	out := make([]byte, total)
	encodeHeader(out, header{
		Version:     CurrentVersion,
		TensorCount: uint32(len(entries)),
		MetaLen:     uint32(len(metaBlob)),
		StringsLen:  uint32(len(strTab)),
	})
	copy(out[headerSize:], metaBlob)
	for i := range entries {
		encodeEntry(out[dirOff+i*entrySize:], entries[i])
	}
	copy(out[stringsOff:], strTab)
	for i, t := range sorted {
		copy(out[entries[i].DataOff:], t.Raw())
	}
	return out, nil
}

// WriteFile writes the container to path and its manifest sidecar next to
// it, returning the manifest.
func WriteFile(path, model string, tensors []*tensorq.Tensor, meta any) (*Manifest, error) {
	data, err := Write(tensors, meta)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("qtc: write %s: %w", path, err)
	}
	man := NewManifest(model, data)
	if err := WriteManifest(ManifestPath(path), man); err != nil {
		return nil, err
	}
	return man, nil
}
