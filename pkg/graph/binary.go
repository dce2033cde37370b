package graph

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"unsafe"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/osm"
)

const (
	magicBytes  = "CHROUTER"
	version     = uint32(2)
	maxVertices = 50_000_000
	maxArcs     = 500_000_000
	maxTagSets  = 50_000_000
)

const (
	flagForward byte = 1 << iota
	flagBackward
)

// fileHeader is the uncompressed binary header. The body that follows is a
// single zstd stream ending with a CRC32 of the uncompressed body.
type fileHeader struct {
	Magic       [8]byte
	Version     uint32
	NumVertices uint32
	NumArcs     uint32
	NumTagSets  uint32
	NumEdges    uint32
}

// WriteBinary serializes a graph and its tag store to path. The file is
// written to a temporary sibling and renamed into place.
func WriteBinary(path string, g *Graph, tags *TagStore) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath) // clean up on error
	}()

	if tags == nil {
		tags = NewTagStore()
	}

	n := g.NumVertices()
	firstOut := make([]uint32, n+1)
	for u := uint32(0); u < n; u++ {
		firstOut[u+1] = firstOut[u] + uint32(len(g.vertices[u].Arcs))
	}
	numArcs := firstOut[n]

	hdr := fileHeader{
		Version:     version,
		NumVertices: n,
		NumArcs:     numArcs,
		NumTagSets:  uint32(tags.Len()),
		NumEdges:    uint32(len(g.edges)),
	}
	copy(hdr.Magic[:], magicBytes)
	if err := binary.Write(f, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	crcWriter := crc32Writer{w: enc, hash: crc32.NewIEEE()}
	w := &crcWriter

	// Vertex data.
	coords := make([]float64, 0, 2*n)
	levels := make([]uint32, n)
	for u := uint32(0); u < n; u++ {
		v := &g.vertices[u]
		coords = append(coords, v.Coord[0], v.Coord[1])
		levels[u] = v.Level
	}
	if err := writeFloat64Slice(w, coords); err != nil {
		return fmt.Errorf("write coords: %w", err)
	}
	if err := writeUint32Slice(w, levels); err != nil {
		return fmt.Errorf("write levels: %w", err)
	}

	// Arcs, flattened to CSR.
	head := make([]uint32, 0, numArcs)
	weight := make([]float64, 0, numArcs)
	flags := make([]byte, 0, numArcs)
	contracted := make([]uint32, 0, numArcs)
	tagIDs := make([]uint32, 0, numArcs)
	for u := uint32(0); u < n; u++ {
		for _, a := range g.vertices[u].Arcs {
			head = append(head, a.To)
			weight = append(weight, a.Weight)
			flags = append(flags, packFlags(a.Forward, a.Backward))
			contracted = append(contracted, a.Contracted)
			tagIDs = append(tagIDs, a.Tags)
		}
	}
	if err := writeUint32Slice(w, firstOut); err != nil {
		return fmt.Errorf("write firstOut: %w", err)
	}
	if err := writeUint32Slice(w, head); err != nil {
		return fmt.Errorf("write head: %w", err)
	}
	if err := writeFloat64Slice(w, weight); err != nil {
		return fmt.Errorf("write weight: %w", err)
	}
	if _, err := w.Write(flags); err != nil {
		return fmt.Errorf("write flags: %w", err)
	}
	if err := writeUint32Slice(w, contracted); err != nil {
		return fmt.Errorf("write contracted: %w", err)
	}
	if err := writeUint32Slice(w, tagIDs); err != nil {
		return fmt.Errorf("write tags: %w", err)
	}

	// Atomic edges.
	edgeEnds := make([]uint32, 0, 2*len(g.edges))
	edgeWeight := make([]float64, 0, len(g.edges))
	edgeFlags := make([]byte, 0, len(g.edges))
	edgeTags := make([]uint32, 0, len(g.edges))
	for _, e := range g.edges {
		edgeEnds = append(edgeEnds, e.From, e.To)
		edgeWeight = append(edgeWeight, e.Weight)
		edgeFlags = append(edgeFlags, packFlags(e.Forward, e.Backward))
		edgeTags = append(edgeTags, e.Tags)
	}
	if err := writeUint32Slice(w, edgeEnds); err != nil {
		return fmt.Errorf("write edge ends: %w", err)
	}
	if err := writeFloat64Slice(w, edgeWeight); err != nil {
		return fmt.Errorf("write edge weight: %w", err)
	}
	if _, err := w.Write(edgeFlags); err != nil {
		return fmt.Errorf("write edge flags: %w", err)
	}
	if err := writeUint32Slice(w, edgeTags); err != nil {
		return fmt.Errorf("write edge tags: %w", err)
	}

	// Tag sets.
	for i := 0; i < tags.Len(); i++ {
		set, _ := tags.Get(uint32(i))
		if err := writeTags(w, set); err != nil {
			return fmt.Errorf("write tag set %d: %w", i, err)
		}
	}

	// CRC32 trailer, inside the compressed stream but outside the checksum.
	if err := binary.Write(enc, binary.LittleEndian, crcWriter.hash.Sum32()); err != nil {
		return fmt.Errorf("write CRC32: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}

// ReadBinary deserializes a graph and its tag store from path.
func ReadBinary(path string) (*Graph, *TagStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)

	var hdr fileHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if string(hdr.Magic[:]) != magicBytes {
		return nil, nil, fmt.Errorf("invalid magic bytes: %q", hdr.Magic)
	}
	if hdr.Version != version {
		return nil, nil, fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	if hdr.NumVertices > maxVertices {
		return nil, nil, fmt.Errorf("NumVertices %d exceeds limit %d", hdr.NumVertices, maxVertices)
	}
	if hdr.NumArcs > maxArcs {
		return nil, nil, fmt.Errorf("NumArcs %d exceeds limit %d", hdr.NumArcs, maxArcs)
	}
	if hdr.NumEdges > maxArcs {
		return nil, nil, fmt.Errorf("NumEdges %d exceeds limit %d", hdr.NumEdges, maxArcs)
	}
	if hdr.NumTagSets > maxTagSets {
		return nil, nil, fmt.Errorf("NumTagSets %d exceeds limit %d", hdr.NumTagSets, maxTagSets)
	}

	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	crcReader := crc32Reader{r: dec, hash: crc32.NewIEEE()}
	r := &crcReader

	n := int(hdr.NumVertices)
	m := int(hdr.NumArcs)

	coords, err := readFloat64Slice(r, 2*n)
	if err != nil {
		return nil, nil, fmt.Errorf("read coords: %w", err)
	}
	levels, err := readUint32Slice(r, n)
	if err != nil {
		return nil, nil, fmt.Errorf("read levels: %w", err)
	}
	firstOut, err := readUint32Slice(r, n+1)
	if err != nil {
		return nil, nil, fmt.Errorf("read firstOut: %w", err)
	}
	head, err := readUint32Slice(r, m)
	if err != nil {
		return nil, nil, fmt.Errorf("read head: %w", err)
	}
	weight, err := readFloat64Slice(r, m)
	if err != nil {
		return nil, nil, fmt.Errorf("read weight: %w", err)
	}
	flags := make([]byte, m)
	if _, err := io.ReadFull(r, flags); err != nil {
		return nil, nil, fmt.Errorf("read flags: %w", err)
	}
	contracted, err := readUint32Slice(r, m)
	if err != nil {
		return nil, nil, fmt.Errorf("read contracted: %w", err)
	}
	tagIDs, err := readUint32Slice(r, m)
	if err != nil {
		return nil, nil, fmt.Errorf("read tags: %w", err)
	}

	k := int(hdr.NumEdges)
	edgeEnds, err := readUint32Slice(r, 2*k)
	if err != nil {
		return nil, nil, fmt.Errorf("read edge ends: %w", err)
	}
	edgeWeight, err := readFloat64Slice(r, k)
	if err != nil {
		return nil, nil, fmt.Errorf("read edge weight: %w", err)
	}
	edgeFlags := make([]byte, k)
	if _, err := io.ReadFull(r, edgeFlags); err != nil {
		return nil, nil, fmt.Errorf("read edge flags: %w", err)
	}
	edgeTags, err := readUint32Slice(r, k)
	if err != nil {
		return nil, nil, fmt.Errorf("read edge tags: %w", err)
	}

	tags := NewTagStore()
	for i := uint32(0); i < hdr.NumTagSets; i++ {
		set, err := readTags(r)
		if err != nil {
			return nil, nil, fmt.Errorf("read tag set %d: %w", i, err)
		}
		tags.sets = append(tags.sets, set)
		tags.index[tagKey(set)] = i
	}

	expectedCRC := crcReader.hash.Sum32()
	var storedCRC uint32
	if err := binary.Read(dec, binary.LittleEndian, &storedCRC); err != nil {
		return nil, nil, fmt.Errorf("read CRC32: %w", err)
	}
	if storedCRC != expectedCRC {
		return nil, nil, fmt.Errorf("CRC32 mismatch: stored=%08x computed=%08x", storedCRC, expectedCRC)
	}

	if err := validateCSR(firstOut, head, hdr.NumVertices); err != nil {
		return nil, nil, fmt.Errorf("arc CSR invalid: %w", err)
	}

	g := New(n)
	for u := 0; u < n; u++ {
		id := g.AddVertex([2]float64{coords[2*u], coords[2*u+1]})
		g.vertices[id].Level = levels[u]
		start, end := firstOut[u], firstOut[u+1]
		if start == end {
			continue
		}
		arcs := make([]Arc, 0, end-start)
		for e := start; e < end; e++ {
			arcs = append(arcs, Arc{
				To:         head[e],
				Weight:     weight[e],
				Forward:    flags[e]&flagForward != 0,
				Backward:   flags[e]&flagBackward != 0,
				Contracted: contracted[e],
				Tags:       tagIDs[e],
			})
		}
		g.vertices[id].Arcs = arcs
	}
	g.numArcs = m

	g.edges = make([]Edge, k)
	for i := range g.edges {
		from, to := edgeEnds[2*i], edgeEnds[2*i+1]
		if from >= hdr.NumVertices || to >= hdr.NumVertices {
			return nil, nil, fmt.Errorf("edge %d: endpoint out of range", i)
		}
		g.edges[i] = Edge{
			From:     from,
			To:       to,
			Weight:   edgeWeight[i],
			Forward:  edgeFlags[i]&flagForward != 0,
			Backward: edgeFlags[i]&flagBackward != 0,
			Tags:     edgeTags[i],
		}
	}

	return g, tags, nil
}

// validateCSR checks CSR invariants.
func validateCSR(firstOut, head []uint32, numNodes uint32) error {
	if uint32(len(firstOut)) != numNodes+1 {
		return fmt.Errorf("FirstOut length %d != NumNodes+1 %d", len(firstOut), numNodes+1)
	}
	numEdges := firstOut[numNodes]
	if uint32(len(head)) != numEdges {
		return fmt.Errorf("Head length %d != FirstOut[NumNodes] %d", len(head), numEdges)
	}
	for i := uint32(1); i <= numNodes; i++ {
		if firstOut[i] < firstOut[i-1] {
			return fmt.Errorf("FirstOut not monotonic at %d: %d < %d", i, firstOut[i], firstOut[i-1])
		}
	}
	for i, h := range head {
		if h >= numNodes {
			return fmt.Errorf("Head[%d]=%d >= NumNodes=%d", i, h, numNodes)
		}
	}
	return nil
}

func packFlags(forward, backward bool) byte {
	var fl byte
	if forward {
		fl |= flagForward
	}
	if backward {
		fl |= flagBackward
	}
	return fl
}

func writeTags(w io.Writer, tags osm.Tags) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(tags))); err != nil {
		return err
	}
	for _, t := range tags {
		if err := writeString(w, t.Key); err != nil {
			return err
		}
		if err := writeString(w, t.Value); err != nil {
			return err
		}
	}
	return nil
}

func readTags(r io.Reader) (osm.Tags, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if count > 1<<16 {
		return nil, fmt.Errorf("tag count %d exceeds limit", count)
	}
	tags := make(osm.Tags, 0, count)
	for i := uint32(0); i < count; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readString(r)
		if err != nil {
			return nil, err
		}
		tags = append(tags, osm.Tag{Key: k, Value: v})
	}
	return tags, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > 1<<20 {
		return "", fmt.Errorf("string length %d exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// Zero-copy I/O helpers using unsafe.Slice.

func writeUint32Slice(w io.Writer, s []uint32) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
	_, err := w.Write(b)
	return err
}

func writeFloat64Slice(w io.Writer, s []float64) error {
	if len(s) == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
	_, err := w.Write(b)
	return err
}

func readUint32Slice(r io.Reader, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]uint32, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*4)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

func readFloat64Slice(r io.Reader, n int) ([]float64, error) {
	if n == 0 {
		return nil, nil
	}
	s := make([]float64, n)
	b := unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*8)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return s, nil
}

// CRC32 wrapping writers/readers.

type crc32Writer struct {
	w    io.Writer
	hash crc32Hash
}

type crc32Hash interface {
	Write([]byte) (int, error)
	Sum32() uint32
}

func (cw *crc32Writer) Write(p []byte) (int, error) {
	cw.hash.Write(p)
	return cw.w.Write(p)
}

type crc32Reader struct {
	r    io.Reader
	hash crc32Hash
}

func (cr *crc32Reader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	return n, err
}
