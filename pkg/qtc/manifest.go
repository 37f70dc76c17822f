package qtc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/samcharles93/quantkit/pkg/blockq"
)

// Manifest is the JSON sidecar written next to a container. It carries
// enough to identify the file and cheaply check its integrity without
// parsing the directory.
type Manifest struct {
	ID          string    `json:"id"`
	Model       string    `json:"model,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Version     uint32    `json:"version"`
	TensorCount uint32    `json:"tensor_count"`
	Schemes     []string  `json:"schemes"`
	SizeBytes   int64     `json:"size_bytes"`
	SHA256      string    `json:"sha256"`
}

// ManifestPath returns the sidecar path for a container path.
func ManifestPath(path string) string { return path + ".manifest.json" }

// NewManifest summarises container bytes. The bytes are trusted to be a
// well-formed container; damaged files still get a manifest describing
// whatever the header claims, so Verify can report the disagreement.
func NewManifest(model string, data []byte) *Manifest {
	sum := sha256.Sum256(data)
	m := &Manifest{
		ID:        uuid.NewString(),
		Model:     model,
		CreatedAt: time.Now().UTC(),
		SizeBytes: int64(len(data)),
		SHA256:    hex.EncodeToString(sum[:]),
	}
	hdrBytes := data
	if IsCompressed(data) {
		if plain, err := Decompress(data); err == nil {
			hdrBytes = plain
		}
	}
	if hdr, ok := decodeHeader(hdrBytes); ok {
		m.Version = hdr.Version
		m.TensorCount = hdr.TensorCount
	}
	if f, err := Read(data); err == nil {
		present := make(map[string]struct{})
		for i := range f.entries {
			present[blockq.Scheme(f.entries[i].Scheme).String()] = struct{}{}
		}
		for s := range present {
			m.Schemes = append(m.Schemes, s)
		}
		sort.Strings(m.Schemes)
	}
	return m
}

// WriteManifest writes m as indented JSON.
func WriteManifest(path string, m *Manifest) error {
	blob, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("qtc: marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, append(blob, '\n'), 0o644); err != nil {
		return fmt.Errorf("qtc: write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest sidecar.
func ReadManifest(path string) (*Manifest, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("qtc: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil, fmt.Errorf("qtc: parse manifest %s: %w", path, err)
	}
	return &m, nil
}
