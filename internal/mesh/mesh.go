// Package mesh holds the in-memory triangle mesh produced by a generation
// pipeline and serializes it to the downloadable file formats.
package mesh

import (
	"errors"
	"fmt"
	"math"

	"github.com/unixpickle/model3d/model3d"
)

var (
	// ErrEmptyMesh is returned when a mesh has no faces to export.
	ErrEmptyMesh = errors.New("mesh has no faces")
	// ErrIndexOutOfRange is returned when a face references a missing vertex.
	ErrIndexOutOfRange = errors.New("face index out of range")
)

// Mesh is an indexed triangle mesh.
type Mesh struct {
	Vertices [][3]float32 `json:"vertices"`
	Faces    [][3]uint32  `json:"faces"`
}

// Validate checks that the mesh can be exported.
func (m *Mesh) Validate() error {
	if m == nil || len(m.Faces) == 0 {
		return ErrEmptyMesh
	}
	for i, v := range m.Vertices {
		for _, c := range v {
			if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
				return fmt.Errorf("vertex %d is not finite", i)
			}
		}
	}
	n := uint32(len(m.Vertices))
	for i, f := range m.Faces {
		if f[0] >= n || f[1] >= n || f[2] >= n {
			return fmt.Errorf("face %d %v with %d vertices: %w", i, f, n, ErrIndexOutOfRange)
		}
	}
	return nil
}

// Triangles expands the indexed faces into model3d triangles.
func (m *Mesh) Triangles() []*model3d.Triangle {
	tris := make([]*model3d.Triangle, 0, len(m.Faces))
	for _, f := range m.Faces {
		tris = append(tris, &model3d.Triangle{
			coord(m.Vertices[f[0]]),
			coord(m.Vertices[f[1]]),
			coord(m.Vertices[f[2]]),
		})
	}
	return tris
}

// FromTriangles builds an indexed mesh from model3d triangles, sharing
// vertices with identical coordinates.
func FromTriangles(tris []*model3d.Triangle) *Mesh {
	m := &Mesh{Faces: make([][3]uint32, 0, len(tris))}
	index := make(map[model3d.Coord3D]uint32, len(tris)/2+3)
	for _, t := range tris {
		var face [3]uint32
		for i, c := range t {
			idx, ok := index[c]
			if !ok {
				idx = uint32(len(m.Vertices))
				index[c] = idx
				m.Vertices = append(m.Vertices, [3]float32{float32(c.X), float32(c.Y), float32(c.Z)})
			}
			face[i] = idx
		}
		m.Faces = append(m.Faces, face)
	}
	return m
}

// Bounds returns the per-axis minimum and maximum vertex coordinates.
func (m *Mesh) Bounds() (lo, hi [3]float32) {
	if len(m.Vertices) == 0 {
		return lo, hi
	}
	lo, hi = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		for i := range v {
			if v[i] < lo[i] {
				lo[i] = v[i]
			}
			if v[i] > hi[i] {
				hi[i] = v[i]
			}
		}
	}
	return lo, hi
}

func coord(v [3]float32) model3d.Coord3D {
	return model3d.XYZ(float64(v[0]), float64(v[1]), float64(v[2]))
}
