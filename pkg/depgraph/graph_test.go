package depgraph_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domwxyz/aptr/pkg/depgraph"
	"github.com/domwxyz/aptr/pkg/filesystem"
	"github.com/domwxyz/aptr/pkg/types"
)

func newGraph(t *testing.T) (*depgraph.Graph, types.FS) {
	t.Helper()
	fs := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/var/lib/aptr", 0o755))
	return depgraph.New(fs, "/var/lib/aptr/depends.list"), fs
}

func TestAddEdge_ParentsOf(t *testing.T) {
	g, _ := newGraph(t)

	require.NoError(t, g.AddEdge("libfoo", "app1"))
	require.NoError(t, g.AddEdge("libfoo", "app2"))

	parents, err := g.ParentsOf("libfoo")
	require.NoError(t, err)
	assert.Equal(t, []string{"app1", "app2"}, parents)
}

func TestAddEdge_Idempotent(t *testing.T) {
	g, _ := newGraph(t)

	require.NoError(t, g.AddEdge("libfoo", "app1"))
	require.NoError(t, g.AddEdge("libfoo", "app1"))

	edges, err := g.Edges()
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestRemoveEdge(t *testing.T) {
	g, _ := newGraph(t)
	require.NoError(t, g.AddEdge("libfoo", "app1"))
	require.NoError(t, g.AddEdge("libfoo", "app2"))

	require.NoError(t, g.RemoveEdge("libfoo", "app1"))

	parents, err := g.ParentsOf("libfoo")
	require.NoError(t, err)
	assert.Equal(t, []string{"app2"}, parents)

	// Removing a missing edge is a no-op.
	require.NoError(t, g.RemoveEdge("libfoo", "ghost"))
}

func TestSoleDependents(t *testing.T) {
	g, _ := newGraph(t)
	require.NoError(t, g.AddEdge("libshared", "app1"))
	require.NoError(t, g.AddEdge("libshared", "app2"))
	require.NoError(t, g.AddEdge("libonly", "app1"))

	// libonly is held solely by app1; libshared is not.
	sole, err := g.SoleDependents("app1")
	require.NoError(t, err)
	assert.Equal(t, []string{"libonly"}, sole)

	sole, err = g.SoleDependents("app2")
	require.NoError(t, err)
	assert.Empty(t, sole)
}

func TestDependenciesOf(t *testing.T) {
	g, _ := newGraph(t)
	require.NoError(t, g.AddEdge("liba", "app"))
	require.NoError(t, g.AddEdge("libb", "app"))
	require.NoError(t, g.AddEdge("libc", "other"))

	deps, err := g.DependenciesOf("app")
	require.NoError(t, err)
	assert.Equal(t, []string{"liba", "libb"}, deps)
}

func TestPersistence_FileShape(t *testing.T) {
	g, fs := newGraph(t)
	require.NoError(t, g.AddEdge("libfoo", "app1"))
	require.NoError(t, g.AddEdge("libbar", "app1"))

	data, err := fs.ReadFile("/var/lib/aptr/depends.list")
	require.NoError(t, err)
	assert.Equal(t, "libfoo:app1\nlibbar:app1\n", string(data))

	reread := depgraph.New(fs, "/var/lib/aptr/depends.list")
	edges, err := reread.Edges()
	require.NoError(t, err)
	assert.Equal(t, []depgraph.Edge{
		{Dep: "libfoo", Parent: "app1"},
		{Dep: "libbar", Parent: "app1"},
	}, edges)
}

func TestLoad_MalformedLine(t *testing.T) {
	_, fs := newGraph(t)
	require.NoError(t, fs.WriteFile("/var/lib/aptr/depends.list",
		[]byte("libfoo:app1\ngarbage-without-colon\n"), 0o644))

	g := depgraph.New(fs, "/var/lib/aptr/depends.list")
	_, err := g.Edges()
	assert.Error(t, err)
}

func TestLoad_SurfacesUnreadableFile(t *testing.T) {
	fs := filesystem.NewAferoFS(afero.NewMemMapFs())
	require.NoError(t, fs.MkdirAll("/var/lib/aptr/depends.list", 0o755))

	g := depgraph.New(fs, "/var/lib/aptr/depends.list")
	_, err := g.Edges()
	assert.Error(t, err)
}

func TestMissingFile_IsEmptyGraph(t *testing.T) {
	fs := filesystem.NewAferoFS(afero.NewMemMapFs())
	g := depgraph.New(fs, "/var/lib/aptr/depends.list")

	edges, err := g.Edges()
	require.NoError(t, err)
	assert.Empty(t, edges)
}
