// Package mesh loads the OBJ model and flattens it into the vertex and
// index slices the upload layer consumes. Vertices are deduplicated by
// structural equality so identical corners share one buffer slot.
package mesh

import (
	"io"
	"os"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/vkngwrapper/core/v3/core1_0"
	vkngmath "github.com/vkngwrapper/math"
)

// Vertex is the interleaved layout the pipeline's vertex input declares.
// The field order must match the attribute descriptions below.
type Vertex struct {
	Position vkngmath.Vec3[float32]
	Color    vkngmath.Vec3[float32]
	TexCoord vkngmath.Vec2[float32]
}

// BindingDescriptions declares the single interleaved vertex buffer.
func BindingDescriptions() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

// AttributeDescriptions declares position, color, and UV attributes at
// locations 0-2.
func AttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
	}
}

// Mesh is a flat triangle list: Indices holds three entries per triangle
// referencing slots in Vertices.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Decode parses an OBJ stream (with its material stream), fan-triangulates
// every face, and deduplicates structurally identical vertices.
func Decode(objReader, mtlReader io.Reader) (*Mesh, error) {
	decoder, err := obj.DecodeReader(objReader, mtlReader)
	if err != nil {
		return nil, errors.Wrap(err, "decode obj")
	}

	m := &Mesh{}
	unique := make(map[Vertex]uint32)

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				m.addCorner(decoder, unique, face, 0)
				m.addCorner(decoder, unique, face, i-1)
				m.addCorner(decoder, unique, face, i)
			}
		}
	}

	return m, nil
}

// Load reads and decodes the mesh and material files from disk.
func Load(objPath, mtlPath string) (*Mesh, error) {
	objFile, err := os.Open(objPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open mesh %s", objPath)
	}
	defer objFile.Close()

	mtlFile, err := os.Open(mtlPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open material %s", mtlPath)
	}
	defer mtlFile.Close()

	return Decode(objFile, mtlFile)
}

// addCorner appends one face corner to the index list, reusing an existing
// vertex slot when an identical (position, color, UV) vertex was already
// seen anywhere in the stream.
func (m *Mesh) addCorner(decoder *obj.Decoder, unique map[Vertex]uint32, face obj.Face, corner int) {
	vertInd := face.Vertices[corner]

	vert := Vertex{
		Position: vkngmath.Vec3[float32]{
			X: decoder.Vertices[vertInd*3],
			Y: decoder.Vertices[vertInd*3+1],
			Z: decoder.Vertices[vertInd*3+2],
		},
		Color: vkngmath.Vec3[float32]{X: 1, Y: 1, Z: 1},
	}

	uvInd := face.Uvs[corner]
	// OBJ puts the V origin at the bottom; Vulkan samples top-down.
	vert.TexCoord = vkngmath.Vec2[float32]{
		X: decoder.Uvs[uvInd*2],
		Y: 1.0 - decoder.Uvs[uvInd*2+1],
	}

	index, exists := unique[vert]
	if !exists {
		index = uint32(len(m.Vertices))
		m.Vertices = append(m.Vertices, vert)
		unique[vert] = index
	}

	m.Indices = append(m.Indices, index)
}
