package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/vexsearch/vex/coarse"
	"github.com/vexsearch/vex/distance"
	"github.com/vexsearch/vex/index"
	"github.com/vexsearch/vex/ivf"
	"github.com/vexsearch/vex/quantization"
)

// maxLabelLen caps a single label read from disk. Anything larger is taken
// as corruption rather than a legitimate label.
const maxLabelLen = 1 << 20

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// WriteIndex serializes idx to w: header, codebooks, the per-cluster
// posting section (zstd-compressed), and a trailing CRC32 over everything.
func WriteIndex(w io.Writer, idx *index.Index) (int64, error) {
	cw := NewChecksumWriter(w)
	bw := &binaryWriter{w: cw}

	header := FileHeader{
		Magic:         MagicNumber,
		Version:       Version,
		Metric:        uint8(idx.Metric()),
		Compressed:    1,
		Dimension:     uint32(idx.Dimension()),
		NumClusters:   uint32(idx.Router().NumClusters()),
		NumSubvectors: uint32(idx.Quantizer().NumSubvectors()),
		NumCentroids:  uint32(idx.Quantizer().NumCentroids()),
		Count:         uint64(idx.Count()),
	}
	if err := binary.Write(cw, binary.LittleEndian, &header); err != nil {
		return cw.BytesWritten(), err
	}

	if err := bw.writeFloat32Slice(idx.Router().Centroids()); err != nil {
		return cw.BytesWritten(), err
	}
	if err := bw.writeFloat32Slice(idx.Quantizer().Codebooks()); err != nil {
		return cw.BytesWritten(), err
	}

	postings, err := encodePostings(idx.Store())
	if err != nil {
		return cw.BytesWritten(), err
	}
	compressed := zstdEncoder.EncodeAll(postings, nil)

	if err := binary.Write(cw, binary.LittleEndian, uint64(len(postings))); err != nil {
		return cw.BytesWritten(), err
	}
	if err := binary.Write(cw, binary.LittleEndian, uint64(len(compressed))); err != nil {
		return cw.BytesWritten(), err
	}
	if _, err := cw.Write(compressed); err != nil {
		return cw.BytesWritten(), err
	}

	// Trailing checksum covers header and payload. Written to the raw
	// writer so it is not folded into itself.
	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], cw.Sum())
	if _, err := w.Write(trailer[:]); err != nil {
		return cw.BytesWritten(), err
	}

	return cw.BytesWritten() + 4, nil
}

// encodePostings lays out the posting section contiguously per cluster:
// count, raw code bytes, ordinals, then length-prefixed labels.
func encodePostings(store *ivf.Store) ([]byte, error) {
	var buf bytes.Buffer
	bw := &binaryWriter{w: &buf}

	for c := 0; c < store.NumClusters(); c++ {
		n, err := store.ClusterLen(c)
		if err != nil {
			return nil, err
		}
		if err := bw.writeUint32(uint32(n)); err != nil {
			return nil, err
		}

		it, err := store.Iterate(c)
		if err != nil {
			return nil, err
		}

		for p, ok := it.Next(); ok; p, ok = it.Next() {
			if _, err := buf.Write(p.Code); err != nil {
				return nil, err
			}
		}

		it.Reset()
		for p, ok := it.Next(); ok; p, ok = it.Next() {
			if err := bw.writeUint32(p.Ord); err != nil {
				return nil, err
			}
		}

		it.Reset()
		for p, ok := it.Next(); ok; p, ok = it.Next() {
			if err := bw.writeString(p.Label); err != nil {
				return nil, err
			}
		}
	}

	return buf.Bytes(), nil
}

// ReadIndex deserializes an index from r, verifying the checksum and every
// structural invariant before returning it. Any failure yields an error
// wrapping ErrCorruptIndex; no partially validated index ever escapes.
func ReadIndex(r io.Reader) (*index.Index, error) {
	cr := NewChecksumReader(r)

	var header FileHeader
	if err := binary.Read(cr, binary.LittleEndian, &header); err != nil {
		return nil, corrupt("reading header: %v", err)
	}

	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: %w: got 0x%08x", ErrCorruptIndex, ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: %w: got 0x%08x", ErrCorruptIndex, ErrInvalidVersion, header.Version)
	}

	metric := distance.Metric(header.Metric)
	if !metric.Valid() {
		return nil, corrupt("unknown metric %d", header.Metric)
	}

	dim := int(header.Dimension)
	clusters := int(header.NumClusters)
	m := int(header.NumSubvectors)
	kSub := int(header.NumCentroids)

	switch {
	case dim <= 0 || clusters <= 0 || m <= 0:
		return nil, corrupt("non-positive geometry: dim=%d clusters=%d m=%d", dim, clusters, m)
	case dim%m != 0:
		return nil, corrupt("dimension %d not divisible by %d subvectors", dim, m)
	case kSub < 1 || kSub > quantization.MaxCentroids:
		return nil, corrupt("centroid count %d outside [1, %d]", kSub, quantization.MaxCentroids)
	}

	br := &binaryReader{r: cr}

	coarseFloats, err := br.readFloat32Slice(clusters * dim)
	if err != nil {
		return nil, corrupt("reading coarse codebook: %v", err)
	}
	codebooks, err := br.readFloat32Slice(m * kSub * (dim / m))
	if err != nil {
		return nil, corrupt("reading PQ codebooks: %v", err)
	}

	postings, err := readPostingSection(cr, header.Compressed == 1)
	if err != nil {
		return nil, err
	}

	// Verify the trailing checksum before trusting any of the payload
	// beyond structural parsing.
	computed := cr.Sum()
	var trailer [4]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return nil, corrupt("reading checksum trailer: %v", err)
	}
	if stored := binary.LittleEndian.Uint32(trailer[:]); stored != computed {
		return nil, corrupt("checksum mismatch: stored 0x%08x, computed 0x%08x", stored, computed)
	}

	router, err := coarse.NewRouter(dim, coarseFloats)
	if err != nil {
		return nil, corrupt("rebuilding router: %v", err)
	}
	pq, err := quantization.NewFromCodebooks(dim, m, kSub, codebooks)
	if err != nil {
		return nil, corrupt("rebuilding quantizer: %v", err)
	}

	store, err := decodePostings(postings, clusters, m, header.Count)
	if err != nil {
		return nil, err
	}

	idx, err := index.New(metric, router, pq, store)
	if err != nil {
		return nil, corrupt("assembling index: %v", err)
	}
	if err := idx.Validate(); err != nil {
		return nil, corrupt("validating postings: %v", err)
	}

	return idx, nil
}

func readPostingSection(r io.Reader, compressed bool) ([]byte, error) {
	var rawLen, compLen uint64
	if err := binary.Read(r, binary.LittleEndian, &rawLen); err != nil {
		return nil, corrupt("reading posting section size: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &compLen); err != nil {
		return nil, corrupt("reading posting section size: %v", err)
	}

	// Bound section sizes before allocating: a corrupted length field must
	// not translate into a multi-gigabyte allocation.
	const maxSection = 1 << 31
	if rawLen > maxSection || compLen > maxSection {
		return nil, corrupt("posting section sizes %d/%d exceed limit", rawLen, compLen)
	}

	if !compressed {
		if compLen != rawLen {
			return nil, corrupt("uncompressed section with mismatched lengths %d/%d", rawLen, compLen)
		}
		raw := make([]byte, rawLen)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, corrupt("reading posting section: %v", err)
		}
		return raw, nil
	}

	buf := make([]byte, compLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, corrupt("reading posting section: %v", err)
	}

	raw, err := zstdDecoder.DecodeAll(buf, make([]byte, 0, rawLen))
	if err != nil {
		return nil, corrupt("decompressing posting section: %v", err)
	}
	if uint64(len(raw)) != rawLen {
		return nil, corrupt("posting section decompressed to %d bytes, expected %d", len(raw), rawLen)
	}

	return raw, nil
}

func decodePostings(payload []byte, clusters, codeSize int, count uint64) (*ivf.Store, error) {
	store, err := ivf.NewStore(clusters, codeSize)
	if err != nil {
		return nil, corrupt("creating store: %v", err)
	}

	pr := bytes.NewReader(payload)
	br := &binaryReader{r: pr}
	var total uint64

	for c := 0; c < clusters; c++ {
		n, err := br.readUint32()
		if err != nil {
			return nil, corrupt("reading cluster %d size: %v", c, err)
		}
		total += uint64(n)
		if total > count {
			return nil, corrupt("cluster sizes exceed declared count %d", count)
		}

		// The header's count is attacker-controlled too, so the real
		// bound is the payload itself: every posting needs at least its
		// code, an ordinal, and a label length prefix. Checked before
		// allocating so a lying size field cannot demand gigabytes.
		if need := uint64(n) * uint64(codeSize+8); need > uint64(pr.Len()) {
			return nil, corrupt("cluster %d declares %d postings, %d bytes remain", c, n, pr.Len())
		}

		codes := make([]byte, int(n)*codeSize)
		if _, err := io.ReadFull(br.r, codes); err != nil {
			return nil, corrupt("reading cluster %d codes: %v", c, err)
		}

		ords := make([]uint32, n)
		for i := range ords {
			if ords[i], err = br.readUint32(); err != nil {
				return nil, corrupt("reading cluster %d ordinals: %v", c, err)
			}
			if uint64(ords[i]) >= count {
				return nil, corrupt("cluster %d ordinal %d exceeds count %d", c, ords[i], count)
			}
		}

		for i := 0; i < int(n); i++ {
			label, err := br.readString(maxLabelLen)
			if err != nil {
				return nil, corrupt("reading cluster %d labels: %v", c, err)
			}
			code := codes[i*codeSize : (i+1)*codeSize]
			if err := store.AddWithOrd(c, code, label, ords[i]); err != nil {
				return nil, corrupt("restoring cluster %d posting %d: %v", c, i, err)
			}
		}
	}

	if total != count {
		return nil, corrupt("postings on disk: %d, header declares %d", total, count)
	}

	return store, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptIndex, fmt.Sprintf(format, args...))
}
