package hnsw

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// serializeMagic and serializeVersion tag the blob stored in a
// `_sharc_hnsw_<table>_<column>` shadow table (§3/§4.6), so a
// version mismatch or a non-HNSW blob fails fast instead of silently
// misparsing.
const (
	serializeMagic   uint32 = 0x53484e57 // "SHNW"
	serializeVersion uint32 = 1
)

// Serialize encodes the graph into a flat byte-isomorphic format: magic,
// version, config, entry point, max level, node count, then one record
// per node in ascending id order (id, tombstone flag, vector, per-layer
// neighbor lists), so the same graph always yields the same bytes.
// Loading them restores the config, nodes, vectors, tombstone flags,
// neighbor lists and entry point; the pending-mutation counters, the
// level multiplier override and the random seed are not stored.
func (g *Graph) Serialize() []byte {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var buf []byte
	var tmp [8]byte

	putU32 := func(v uint32) {
		binary.BigEndian.PutUint32(tmp[:4], v)
		buf = append(buf, tmp[:4]...)
	}
	putI64 := func(v int64) {
		binary.BigEndian.PutUint64(tmp[:8], uint64(v))
		buf = append(buf, tmp[:8]...)
	}
	putF32 := func(v float32) {
		binary.BigEndian.PutUint32(tmp[:4], math.Float32bits(v))
		buf = append(buf, tmp[:4]...)
	}

	putU32(serializeMagic)
	putU32(serializeVersion)
	putU32(uint32(g.cfg.Dimensions))
	putU32(uint32(g.cfg.Metric))
	putU32(uint32(g.cfg.M))
	putU32(uint32(g.cfg.M0))
	putU32(uint32(g.cfg.EfConstruction))
	if g.cfg.UseSimpleSelection {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	putI64(g.entryPoint)
	putU32(uint32(g.maxLevel))
	putU32(uint32(len(g.nodes)))

	ids := make([]int64, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		n := g.nodes[id]
		putI64(n.id)
		if n.tombstone {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		for _, v := range n.vec {
			putF32(v)
		}
		putU32(uint32(len(n.neighbors)))
		for _, layer := range n.neighbors {
			putU32(uint32(len(layer)))
			for _, nb := range layer {
				putI64(nb)
			}
		}
	}
	return buf
}

// Deserialize reconstructs a graph from bytes written by Serialize.
func Deserialize(buf []byte) (*Graph, error) {
	r := &byteReader{buf: buf}
	magic := r.u32()
	version := r.u32()
	if r.err == nil && magic != serializeMagic {
		return nil, fmt.Errorf("hnsw: bad magic %#x, want %#x", magic, serializeMagic)
	}
	if r.err == nil && version != serializeVersion {
		return nil, fmt.Errorf("hnsw: unsupported serialization version %d", version)
	}
	dims := int(r.u32())
	metric := Metric(r.u32())
	m := int(r.u32())
	m0 := int(r.u32())
	efc := int(r.u32())
	useSimple := r.byte() == 1
	entryPoint := r.i64()
	maxLevel := int(r.u32())
	nodeCount := int(r.u32())
	if r.err != nil {
		return nil, r.err
	}

	g := New(Config{
		Dimensions:         dims,
		Metric:             metric,
		M:                  m,
		M0:                 m0,
		EfConstruction:     efc,
		UseSimpleSelection: useSimple,
	})
	g.nodes = make(map[int64]*node, nodeCount)
	g.entryPoint = entryPoint
	g.maxLevel = maxLevel

	for i := 0; i < nodeCount; i++ {
		id := r.i64()
		tomb := r.byte() == 1
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = r.f32()
		}
		layerCount := int(r.u32())
		neighbors := make([][]int64, layerCount)
		for l := 0; l < layerCount; l++ {
			count := int(r.u32())
			layer := make([]int64, count)
			for k := range layer {
				layer[k] = r.i64()
			}
			neighbors[l] = layer
		}
		if r.err != nil {
			return nil, r.err
		}
		g.nodes[id] = &node{id: id, vec: vec, neighbors: neighbors, tombstone: tomb}
	}
	return g, nil
}

// byteReader sequentially decodes fixed-width fields, latching the first
// error (typically a truncated buffer) so callers can check once at the
// end instead of threading errors through every call.
type byteReader struct {
	buf []byte
	off int
	err error
}

func (r *byteReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("hnsw: truncated graph data at offset %d", r.off)
		return false
	}
	return true
}

func (r *byteReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *byteReader) i64() int64 {
	if !r.need(8) {
		return 0
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.off:]))
	r.off += 8
	return v
}

func (r *byteReader) f32() float32 {
	if !r.need(4) {
		return 0
	}
	v := math.Float32frombits(binary.BigEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v
}

func (r *byteReader) byte() byte {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}
