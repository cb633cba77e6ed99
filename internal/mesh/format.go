package mesh

import (
	"bytes"
	"fmt"
)

// Format names and MIME types of the export branch.
const (
	FormatSTL = "stl"

	MIMESTL  = "model/stl"
	MIMEGLTF = "model/gltf-binary"
)

// IsSTL reports whether format selects the STL branch. Every other value,
// including the empty string, selects glTF-binary.
func IsSTL(format string) bool { return format == FormatSTL }

// MIMEType returns the content type served for format.
func MIMEType(format string) string {
	if IsSTL(format) {
		return MIMESTL
	}
	return MIMEGLTF
}

// Export serializes m for the requested format and returns the bytes and
// their MIME type.
func Export(m *Mesh, format string) ([]byte, string, error) {
	var buf bytes.Buffer
	if IsSTL(format) {
		if err := m.WriteSTL(&buf); err != nil {
			return nil, "", fmt.Errorf("export stl: %w", err)
		}
		return buf.Bytes(), MIMESTL, nil
	}
	if err := m.WriteGLB(&buf); err != nil {
		return nil, "", fmt.Errorf("export gltf-binary: %w", err)
	}
	return buf.Bytes(), MIMEGLTF, nil
}
