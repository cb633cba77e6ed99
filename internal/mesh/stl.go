package mesh

import (
	"io"

	"github.com/unixpickle/model3d/model3d"
)

// WriteSTL writes the mesh as a binary STL file. A mesh without faces
// yields a header-only file with a zero facet count.
func (m *Mesh) WriteSTL(w io.Writer) error {
	if m == nil {
		return ErrEmptyMesh
	}
	if len(m.Faces) == 0 {
		return model3d.WriteSTL(w, nil)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	return model3d.WriteSTL(w, m.Triangles())
}
