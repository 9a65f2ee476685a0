package pyqlm

import (
	"testing"

	"github.com/go-python/gpython/py"
	"github.com/stretchr/testify/require"

	_ "github.com/go-python/gpython/stdlib"
)

const script = `
import _qlm

L = _qlm.Lattice("2x2x2 fermions ws(0,0,0) eig=2")
size = L.SizeTag()
counts = L.Enumerate()
n880 = counts["wx_2-wy_2-wz_2"]
basis = len(L.Sector())
entries = len(L.Hamiltonian())
low = L.Lowest()
low1 = L.Lowest("wx_2-wy_2-wz_2", 1)
reach = len(L.Expand((3816540,), 0))
partial = len(L.Expand([3816540], 2))
streamed = L.Stream("wx_2-wy_2-wz_2").Go()

ws = _qlm.GetWorkspace()
cat = ws.OpenCatalog("", 0, size)
added = L.Stream().AddTo(cat).Go()
selected = cat.Select("wx_2-wy_2-wz_2").Go()
cat_counts = cat.Sectors()
cat.Close()

try:
    _qlm.Lattice("2x3")
    bad_geometry = False
except ValueError:
    bad_geometry = True

try:
    _qlm.Lattice("2x2").Sector()
    no_sector = False
except ValueError:
    no_sector = True

version = _qlm.LIB_VERSION
max_links = _qlm.MAX_LINKS
`

func TestModule(t *testing.T) {
	ctx := py.NewContext(py.DefaultContextOpts())
	defer func() {
		ctx.Close()
		<-ctx.Done()
	}()

	code, err := py.Compile(script, "<qlm_test>", py.ExecMode, 0, true)
	require.NoError(t, err)
	mod, err := py.RunCode(ctx, code, "<qlm_test>", nil)
	if err != nil {
		py.TracebackDump(err)
	}
	require.NoError(t, err)

	g := mod.Globals
	require.Equal(t, py.String("2x2x2"), g["size"])
	require.Equal(t, py.Int(880), g["n880"])
	require.Equal(t, py.Int(880), g["basis"])
	require.Equal(t, py.Int(6912), g["entries"])
	require.Equal(t, py.Int(864), g["reach"])
	require.Equal(t, py.Int(95), g["partial"])
	require.Equal(t, py.Int(880), g["streamed"])
	require.Equal(t, py.Int(9600), g["added"])
	require.Equal(t, py.Int(880), g["selected"])
	require.Equal(t, py.True, g["bad_geometry"])
	require.Equal(t, py.True, g["no_sector"])
	require.Equal(t, py.String(LIB_VERSION), g["version"])
	require.Equal(t, py.Int(256), g["max_links"])

	low := g["low"].(py.Tuple)
	require.Len(t, low, 2)
	require.InDelta(t, -8.103381636599789, float64(low[0].(py.Float)), 1e-9)
	require.InDelta(t, -7.577846474979458, float64(low[1].(py.Float)), 1e-9)
	require.Len(t, g["low1"].(py.Tuple), 1)

	catCounts := g["cat_counts"].(py.StringDict)
	require.Equal(t, py.Int(880), catCounts["wx_2-wy_2-wz_2"])
}
