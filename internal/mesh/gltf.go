package mesh

import (
	"io"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// WriteGLB writes the mesh as a glTF 2.0 binary asset holding a single node
// in the default scene.
func (m *Mesh) WriteGLB(w io.Writer) error {
	if err := m.Validate(); err != nil {
		return err
	}
	doc := gltf.NewDocument()
	doc.Asset.Generator = "text2mesh"

	indices := make([]uint32, 0, len(m.Faces)*3)
	for _, f := range m.Faces {
		indices = append(indices, f[0], f[1], f[2])
	}
	pos := modeler.WritePosition(doc, m.Vertices)
	idx := modeler.WriteIndices(doc, indices)
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name: "model",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(idx),
			Attributes: map[string]int{gltf.POSITION: pos},
			Mode:       gltf.PrimitiveTriangles,
		}},
	})
	doc.Nodes = append(doc.Nodes, &gltf.Node{Name: "model", Mesh: gltf.Index(len(doc.Meshes) - 1)})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)

	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	return enc.Encode(doc)
}
