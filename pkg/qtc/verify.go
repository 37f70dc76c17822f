package qtc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/goccy/go-json"

	"github.com/samcharles93/quantkit/pkg/blockq"
)

// FindingCode classifies a verification problem.
type FindingCode string

const (
	FindingBadMagic         FindingCode = "bad_magic"
	FindingBadVersion       FindingCode = "bad_version"
	FindingTruncated        FindingCode = "truncated"
	FindingBadMetadata      FindingCode = "bad_metadata"
	FindingBadName          FindingCode = "bad_name"
	FindingDuplicateName    FindingCode = "duplicate_name"
	FindingBadShape         FindingCode = "bad_shape"
	FindingBadScheme        FindingCode = "bad_scheme"
	FindingBadBlockSize     FindingCode = "bad_block_size"
	FindingBadPayloadSize   FindingCode = "bad_payload_size"
	FindingOutOfBounds      FindingCode = "out_of_bounds"
	FindingOverlap          FindingCode = "overlap"
	FindingManifestMismatch FindingCode = "manifest_mismatch"
)

// Finding is one verification problem. Tensor is empty for file-level
// findings; Overlap findings name both tensors in Detail.
type Finding struct {
	Code   FindingCode
	Tensor string
	Detail string
}

func (f Finding) String() string {
	if f.Tensor == "" {
		return fmt.Sprintf("%s: %s", f.Code, f.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", f.Code, f.Tensor, f.Detail)
}

type dataRange struct {
	name     string
	off, end uint64
}

// Verify inspects container bytes and reports every problem it can find
// rather than stopping at the first. A nil manifest skips the sidecar
// checks. An empty result means the file is clean.
func Verify(data []byte, man *Manifest) []Finding {
	var out []Finding

	if IsCompressed(data) {
		plain, err := Decompress(data)
		if err != nil {
			return append(out, Finding{Code: FindingTruncated, Detail: fmt.Sprintf("compressed container: %v", err)})
		}
		// Manifest hashes cover the stored (compressed) bytes.
		if man != nil {
			out = append(out, verifyManifest(data, man)...)
			man = nil
		}
		data = plain
	}

	if len(data) < headerSize {
		return append(out, Finding{Code: FindingTruncated, Detail: fmt.Sprintf("file is %d bytes, header needs %d", len(data), headerSize)})
	}
	hdr, ok := decodeHeader(data)
	if !ok {
		return append(out, Finding{Code: FindingBadMagic, Detail: fmt.Sprintf("want %q", Magic)})
	}
	if hdr.Version != CurrentVersion {
		// Later versions may relayout the directory, so nothing after the
		// header can be trusted.
		return append(out, Finding{Code: FindingBadVersion, Detail: fmt.Sprintf("version %d, support %d", hdr.Version, CurrentVersion)})
	}

	if man != nil {
		out = append(out, verifyManifest(data, man)...)
		if man.TensorCount != 0 && man.TensorCount != hdr.TensorCount {
			out = append(out, Finding{
				Code:   FindingManifestMismatch,
				Detail: fmt.Sprintf("manifest lists %d tensors, header %d", man.TensorCount, hdr.TensorCount),
			})
		}
	}

	if hdr.TensorCount == 0 {
		out = append(out, Finding{Code: FindingTruncated, Detail: "empty tensor directory"})
		return out
	}

	dirOff := alignUp(headerSize+int(hdr.MetaLen), dirAlign)
	stringsOff := dirOff + int(hdr.TensorCount)*entrySize
	stringsEnd := stringsOff + int(hdr.StringsLen)
	if headerSize+int(hdr.MetaLen) > len(data) {
		out = append(out, Finding{Code: FindingTruncated, Detail: "metadata extends past end of file"})
		return out
	}
	if stringsEnd > len(data) || stringsEnd < stringsOff {
		out = append(out, Finding{Code: FindingTruncated, Detail: "tensor directory extends past end of file"})
		return out
	}

	if hdr.MetaLen > 0 && !json.Valid(data[headerSize:headerSize+int(hdr.MetaLen)]) {
		out = append(out, Finding{Code: FindingBadMetadata, Detail: "metadata blob is not valid JSON"})
	}

	seen := make(map[string]struct{}, hdr.TensorCount)
	var ranges []dataRange
	for i := 0; i < int(hdr.TensorCount); i++ {
		e := decodeEntry(data[dirOff+i*entrySize:])
		name := fmt.Sprintf("#%d", i)

		nameEnd := uint64(e.NameOff) + uint64(e.NameLen)
		switch {
		case e.NameLen == 0:
			out = append(out, Finding{Code: FindingBadName, Tensor: name, Detail: "empty name"})
		case nameEnd > uint64(hdr.StringsLen):
			out = append(out, Finding{Code: FindingBadName, Tensor: name, Detail: "name outside strings table"})
		default:
			name = string(data[stringsOff+int(e.NameOff) : stringsOff+int(nameEnd)])
			if _, dup := seen[name]; dup {
				out = append(out, Finding{Code: FindingDuplicateName, Tensor: name, Detail: "name appears more than once"})
			}
			seen[name] = struct{}{}
		}

		scheme := blockq.Scheme(e.Scheme)
		elems := uint64(1)
		shapeOK := true
		if e.Rank == 0 || e.Rank > MaxRank {
			out = append(out, Finding{Code: FindingBadShape, Tensor: name, Detail: fmt.Sprintf("rank %d outside [1,%d]", e.Rank, MaxRank)})
			shapeOK = false
		} else {
			const maxElems = uint64(^uint(0) >> 1)
			for d := uint32(0); d < e.Rank; d++ {
				if e.Dims[d] == 0 {
					out = append(out, Finding{Code: FindingBadShape, Tensor: name, Detail: fmt.Sprintf("dimension %d is zero", d)})
					shapeOK = false
					continue
				}
				// The product must not wrap before the size comparison.
				if shapeOK && e.Dims[d] > maxElems/elems {
					out = append(out, Finding{Code: FindingBadShape, Tensor: name, Detail: "element count overflows"})
					shapeOK = false
					continue
				}
				if shapeOK {
					elems *= e.Dims[d]
				}
			}
		}

		if !scheme.Supported() {
			out = append(out, Finding{Code: FindingBadScheme, Tensor: name, Detail: fmt.Sprintf("unknown scheme tag %d", e.Scheme)})
		} else {
			if int(e.BlockSize) != scheme.BlockSize() {
				out = append(out, Finding{Code: FindingBadBlockSize, Tensor: name,
					Detail: fmt.Sprintf("entry says %d, %s uses %d", e.BlockSize, scheme, scheme.BlockSize())})
			}
			if shapeOK {
				want, err := scheme.DataSize(int(elems))
				if err != nil {
					out = append(out, Finding{Code: FindingBadPayloadSize, Tensor: name, Detail: err.Error()})
				} else if uint64(want) != e.DataLen {
					out = append(out, Finding{Code: FindingBadPayloadSize, Tensor: name,
						Detail: fmt.Sprintf("%d elements as %s need %d bytes, entry has %d", elems, scheme, want, e.DataLen)})
				}
			}
		}

		dataEnd := e.DataOff + e.DataLen
		switch {
		case dataEnd < e.DataOff:
			out = append(out, Finding{Code: FindingOutOfBounds, Tensor: name, Detail: "data offset overflow"})
		case dataEnd > uint64(len(data)):
			out = append(out, Finding{Code: FindingOutOfBounds, Tensor: name, Detail: "data extends past end of file"})
		case e.DataOff < uint64(stringsEnd):
			out = append(out, Finding{Code: FindingOutOfBounds, Tensor: name, Detail: "data overlaps directory"})
		default:
			if e.DataLen > 0 {
				ranges = append(ranges, dataRange{name: name, off: e.DataOff, end: dataEnd})
			}
		}

		auxEnd := e.AuxOff + e.AuxLen
		switch {
		case auxEnd < e.AuxOff:
			out = append(out, Finding{Code: FindingOutOfBounds, Tensor: name, Detail: "aux offset overflow"})
		case auxEnd > uint64(len(data)):
			out = append(out, Finding{Code: FindingOutOfBounds, Tensor: name, Detail: "aux extends past end of file"})
		default:
			if e.AuxLen > 0 {
				ranges = append(ranges, dataRange{name: name + " (aux)", off: e.AuxOff, end: auxEnd})
			}
		}
	}

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].off < ranges[j].off })
	for i := 1; i < len(ranges); i++ {
		prev, cur := ranges[i-1], ranges[i]
		if cur.off < prev.end {
			out = append(out, Finding{
				Code:   FindingOverlap,
				Tensor: cur.name,
				Detail: fmt.Sprintf("payload [%d,%d) overlaps %s [%d,%d)", cur.off, cur.end, prev.name, prev.off, prev.end),
			})
		}
	}

	return out
}

func verifyManifest(data []byte, man *Manifest) []Finding {
	var out []Finding
	if man.SizeBytes != 0 && man.SizeBytes != int64(len(data)) {
		out = append(out, Finding{
			Code:   FindingManifestMismatch,
			Detail: fmt.Sprintf("manifest records %d bytes, file has %d", man.SizeBytes, len(data)),
		})
	}
	if man.SHA256 != "" {
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != man.SHA256 {
			out = append(out, Finding{
				Code:   FindingManifestMismatch,
				Detail: fmt.Sprintf("content hash %s does not match manifest %s", got, man.SHA256),
			})
		}
	}
	return out
}
