package mesh

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testMaterial = `newmtl mat
Kd 1.0 1.0 1.0
`

func decodeString(t *testing.T, objSource string) *Mesh {
	m, err := Decode(strings.NewReader(objSource), strings.NewReader(testMaterial))
	require.NoError(t, err)
	return m
}

func TestDecodeFanTriangulatesQuads(t *testing.T) {
	m := decodeString(t, `mtllib test.mtl
o quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
usemtl mat
f 1/1 2/2 3/3 4/4
`)

	// A quad fans into two triangles sharing the corner slots.
	require.Len(t, m.Vertices, 4)
	require.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.Indices)
}

func TestDecodeDeduplicatesAcrossFaces(t *testing.T) {
	m := decodeString(t, `mtllib test.mtl
o tris
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
usemtl mat
f 1/1 2/2 3/3
f 1/1 3/3 4/4
`)

	require.Len(t, m.Vertices, 4)
	require.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.Indices)
}

func TestDecodeDistinctUVsStayDistinct(t *testing.T) {
	// Same position referenced with two different UVs must occupy two
	// vertex slots.
	m := decodeString(t, `mtllib test.mtl
o tris
v 0 0 0
v 1 0 0
v 1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0.5 0.5
usemtl mat
f 1/1 2/2 3/3
f 1/4 2/2 3/3
`)

	require.Len(t, m.Vertices, 4)
	require.Equal(t, []uint32{0, 1, 2, 3, 1, 2}, m.Indices)
}

func TestDecodeFlipsV(t *testing.T) {
	m := decodeString(t, `mtllib test.mtl
o tri
v 0 0 0
v 1 0 0
v 1 1 0
vt 0 0
vt 1 0
vt 1 0.25
usemtl mat
f 1/1 2/2 3/3
`)

	require.Len(t, m.Vertices, 3)
	require.InDelta(t, 1.0, m.Vertices[0].TexCoord.Y, 1e-6)
	require.InDelta(t, 0.75, m.Vertices[2].TexCoord.Y, 1e-6)
}
