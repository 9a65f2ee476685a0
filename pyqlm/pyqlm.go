package pyqlm

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/big"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fine-structures/qlm.SDK/libqlm/catalog"
	"github.com/fine-structures/qlm.SDK/libqlm/eigen"
	"github.com/fine-structures/qlm.SDK/libqlm/fock"
	"github.com/fine-structures/qlm.SDK/libqlm/frontier"
	"github.com/fine-structures/qlm.SDK/libqlm/hamiltonian"
	"github.com/fine-structures/qlm.SDK/libqlm/lattice"
	"github.com/fine-structures/qlm.SDK/libqlm/runspec"
	"github.com/fine-structures/qlm.SDK/libqlm/search"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/go-python/gpython/py"
)

var (
	LIB_VERSION = "v1.2026.1"
)

var (
	pyLatticeType     = py.NewType("Lattice", "a quantum link model lattice built from a run expression")
	pyStateStreamType = py.NewType("StateStream", "qlm.StateStream")
	pyCatalogType     = py.NewType("Catalog", "qlm.Catalog")
	pyWorkspaceType   = py.NewType("Workspace", "collects active session resources and catalogs")
)

// pyLattice caches each sector's basis so Hamiltonian() and Lowest() don't enumerate twice.
type pyLattice struct {
	spec   *runspec.RunSpec
	lat    *lattice.Lattice
	plaqs  []lattice.Plaquette
	tables map[qlm.Sector]*fock.Table
}

func (L *pyLattice) Type() *py.Type {
	return pyLatticeType
}

func (L *pyLattice) M__str__() (py.Object, error) {
	return py.String(L.spec.String()), nil
}

func (L *pyLattice) M__repr__() (py.Object, error) {
	return py.String(fmt.Sprintf("Lattice(%q)", L.spec.String())), nil
}

func valueError(err error) error {
	return py.ExceptionNewf(py.ValueError, "%v", err)
}

// Arg 1 (str): run expression, e.g. "2x2x2 fermions ws(0,0,0)"
func py_NewLattice(module py.Object, args py.Tuple) (py.Object, error) {
	var expr string
	if err := py.LoadTuple(args, []interface{}{&expr}); err != nil {
		return nil, err
	}
	spec, err := runspec.Parse(expr)
	if err != nil {
		return nil, valueError(err)
	}
	lat, err := lattice.New(spec.Sizes)
	if err != nil {
		return nil, valueError(err)
	}
	if _, err = lat.Charges(&spec.Charges); err != nil {
		return nil, valueError(err)
	}
	plaqs, err := lattice.BuildPlaquettes(lat)
	if err != nil {
		return nil, valueError(err)
	}
	return &pyLattice{
		spec:   spec,
		lat:    lat,
		plaqs:  plaqs,
		tables: make(map[qlm.Sector]*fock.Table),
	}, nil
}

// sectorArg reads an optional sector tag, falling back on the run expression's ws(...).
func (L *pyLattice) sectorArg(args py.Tuple) (qlm.Sector, error) {
	var tag string
	if len(args) > 0 {
		if err := py.LoadTuple(args[:1], []interface{}{&tag}); err != nil {
			return qlm.Sector{}, err
		}
	}
	if tag != "" {
		sec, err := qlm.ParseSectorTag(tag)
		if err != nil {
			return sec, valueError(err)
		}
		return sec, nil
	}
	sec, err := L.spec.Sector(L.lat)
	if err != nil {
		return qlm.Sector{}, valueError(err)
	}
	if sec == nil {
		return qlm.Sector{}, py.ExceptionNewf(py.ValueError, "no sector tag given and %q has no ws(...)", L.spec.String())
	}
	return *sec, nil
}

func (L *pyLattice) table(sec qlm.Sector) (*fock.Table, error) {
	if tbl := L.tables[sec]; tbl != nil {
		return tbl, nil
	}
	states, _, err := search.Collect(context.Background(), L.lat, &L.spec.Charges, &sec)
	if err != nil {
		return nil, py.ExceptionNewf(py.RuntimeError, "%v", err)
	}
	tbl, err := fock.NewTable(states)
	if err != nil {
		return nil, valueError(err)
	}
	L.tables[sec] = tbl
	return tbl, nil
}

func (L *pyLattice) entries(sec qlm.Sector) (*fock.Table, []qlm.Entry, error) {
	tbl, err := L.table(sec)
	if err != nil {
		return nil, nil, err
	}
	entries, err := hamiltonian.Assemble(context.Background(), tbl, L.plaqs, L.spec.Statistics, hamiltonian.Opts{})
	if err != nil {
		return nil, nil, py.ExceptionNewf(py.RuntimeError, "%v", err)
	}
	return tbl, entries, nil
}

func stateObj(s qlm.State) py.Object {
	if s[1] == 0 && s[2] == 0 && s[3] == 0 && s[0] <= math.MaxInt64 {
		return py.Int(s[0])
	}
	return (*py.BigInt)(s.Big())
}

func stateFromObj(obj py.Object) (qlm.State, error) {
	switch v := obj.(type) {
	case py.Int:
		if v < 0 {
			return qlm.State{}, py.ExceptionNewf(py.ValueError, "negative state %d", int64(v))
		}
		return qlm.StateFromUint64(uint64(v)), nil
	case *py.BigInt:
		s, err := qlm.StateFromBig((*big.Int)(v))
		if err != nil {
			return s, valueError(err)
		}
		return s, nil
	}
	return qlm.State{}, py.ExceptionNewf(py.TypeError, "expected int state (got %v)", obj.Type().Name)
}

func statesTuple(states []qlm.State) py.Tuple {
	out := make(py.Tuple, len(states))
	for i, s := range states {
		out[i] = stateObj(s)
	}
	return out
}

// Returns a dict of sector tag => number of states.
func py_Lattice_Enumerate(self py.Object, args py.Tuple) (py.Object, error) {
	L := self.(*pyLattice)
	res, err := search.Enumerate(context.Background(), L.lat, &L.spec.Charges, nil, search.Opts{
		MaxStates: L.spec.MaxStates,
	})
	if err != nil {
		return nil, py.ExceptionNewf(py.RuntimeError, "%v", err)
	}
	counts := py.NewStringDict()
	for _, sc := range res.Counts {
		counts[sc.Sector.Tag()] = py.Int(sc.Count)
	}
	return counts, nil
}

// Arg 1 (str, optional): sector tag
func py_Lattice_Sector(self py.Object, args py.Tuple) (py.Object, error) {
	L := self.(*pyLattice)
	sec, err := L.sectorArg(args)
	if err != nil {
		return nil, err
	}
	tbl, err := L.table(sec)
	if err != nil {
		return nil, err
	}
	return statesTuple(tbl.States()), nil
}

// Arg 1 (str, optional): sector tag
func py_Lattice_Hamiltonian(self py.Object, args py.Tuple) (py.Object, error) {
	L := self.(*pyLattice)
	sec, err := L.sectorArg(args)
	if err != nil {
		return nil, err
	}
	_, entries, err := L.entries(sec)
	if err != nil {
		return nil, err
	}
	out := make(py.Tuple, len(entries))
	for i, e := range entries {
		out[i] = py.Tuple{py.Int(e.Row), py.Int(e.Col), py.Int(e.Value)}
	}
	return out, nil
}

// Arg 1 (str, optional): sector tag
// Arg 2 (int, optional): number of eigenvalues (eig=... if omitted)
func py_Lattice_Lowest(self py.Object, args py.Tuple) (py.Object, error) {
	L := self.(*pyLattice)
	sec, err := L.sectorArg(args)
	if err != nil {
		return nil, err
	}
	k := int32(L.spec.NumEigen)
	if len(args) > 1 {
		if err = py.LoadTuple(args[1:2], []interface{}{&k}); err != nil {
			return nil, err
		}
	}
	tbl, entries, err := L.entries(sec)
	if err != nil {
		return nil, err
	}
	vals, err := eigen.Lowest(entries, tbl.Len(), eigen.Params{
		J:          L.spec.J,
		Lambda:     L.spec.Lambda,
		Statistics: L.spec.Statistics,
	}, int(k))
	if err != nil {
		return nil, py.ExceptionNewf(py.RuntimeError, "%v", err)
	}
	out := make(py.Tuple, len(vals))
	for i, v := range vals {
		out[i] = py.Float(v)
	}
	return out, nil
}

// Arg 1 (tuple or list of int, optional): seed states (seed(...) if omitted)
// Arg 2 (int, optional): max level (level=... if omitted)
func py_Lattice_Expand(self py.Object, args py.Tuple) (py.Object, error) {
	L := self.(*pyLattice)

	seeds := L.spec.Seeds
	if len(args) > 0 {
		var items py.Tuple
		switch v := args[0].(type) {
		case py.Tuple:
			items = v
		case *py.List:
			items = v.Items
		default:
			return nil, py.ExceptionNewf(py.TypeError, "expected a tuple or list of seed states (got %v)", args[0].Type().Name)
		}
		seeds = make([]qlm.State, len(items))
		for i, item := range items {
			s, err := stateFromObj(item)
			if err != nil {
				return nil, err
			}
			seeds[i] = s
		}
	}
	maxLevel := int32(L.spec.MaxLevel)
	if len(args) > 1 {
		if err := py.LoadTuple(args[1:2], []interface{}{&maxLevel}); err != nil {
			return nil, err
		}
	}

	states, err := frontier.Expand(context.Background(), seeds, L.plaqs, frontier.Opts{
		MaxLevel:  int(maxLevel),
		MaxStates: int(L.spec.MaxStates),
	})
	if err != nil {
		return nil, py.ExceptionNewf(py.RuntimeError, "%v", err)
	}
	return statesTuple(states), nil
}

// Streams every enumerated state, or only the given sector's.
func py_Lattice_Stream(self py.Object, args py.Tuple) (py.Object, error) {
	L := self.(*pyLattice)
	opts := search.Opts{
		MaxStates: L.spec.MaxStates,
	}
	if len(args) > 0 {
		sec, err := L.sectorArg(args)
		if err != nil {
			return nil, err
		}
		opts.Sector = &sec
	}
	stream := qlm.StreamFrom(func(sink qlm.StateSink) error {
		_, err := search.Enumerate(context.Background(), L.lat, &L.spec.Charges, sink, opts)
		return err
	})
	return wrapStateStream(stream), nil
}

func py_Lattice_SizeTag(self py.Object, args py.Tuple) (py.Object, error) {
	L := self.(*pyLattice)
	return py.String(L.lat.SizeTag()), nil
}

const (
	READ_ONLY = 0x01

	kWorkspaceAttr = "_Workspace"
)

type Workspace struct {
	CatalogCtx qlm.CatalogContext
}

func (ws *Workspace) Close() {
	ws.CatalogCtx.Close()
	<-ws.CatalogCtx.Done()
}

func (ws *Workspace) Type() *py.Type {
	return pyWorkspaceType
}

func py_GetWorkspace(module py.Object, args py.Tuple) (py.Object, error) {
	wsObj, _ := py.GetAttrString(module, kWorkspaceAttr)
	if wsObj == nil {
		ws := &Workspace{
			CatalogCtx: qlm.NewCatalogContext(),
		}
		wsObj = ws
		py.SetAttrString(module, kWorkspaceAttr, wsObj)
	}
	return wsObj, nil
}

func py_Workspace_CatalogExists(self py.Object, args py.Tuple) (py.Object, error) {
	_ = self.(*Workspace)

	var pathname string
	err := py.LoadTuple(args, []interface{}{&pathname})
	if err != nil {
		return nil, err
	}
	_, err = os.Stat(pathname)
	if os.IsNotExist(err) {
		return py.False, nil
	}
	return py.True, nil
}

// Arg 1 (str): catalog pathname ("" for in-memory)
// Arg 2 (int): flags
// Arg 3 (str): lattice size tag (needed for a new catalog)
func py_Workspace_OpenCatalog(self py.Object, args py.Tuple) (py.Object, error) {
	ws := self.(*Workspace)

	var pathname, sizeTag string
	var flags int32
	err := py.LoadTuple(args, []interface{}{&pathname, &flags, &sizeTag})
	if err != nil {
		return nil, err
	}

	opts := qlm.CatalogOpts{
		ReadOnly:   (flags & READ_ONLY) != 0,
		DbPathName: pathname,
		SizeTag:    sizeTag,
	}
	cat, err := catalog.OpenCatalog(ws.CatalogCtx, opts)
	if err != nil {
		return nil, py.ExceptionNewf(py.RuntimeError, "%v", err)
	}
	return pyCatalog{cat}, nil
}

type pyCatalog struct {
	qlm.Catalog
}

func (cat pyCatalog) Type() *py.Type {
	return pyCatalogType
}

func py_Catalog_Close(self py.Object, args py.Tuple) (py.Object, error) {
	cat := self.(pyCatalog)
	if cat.Catalog != nil {
		cat.Close()
	}
	return py.None, nil
}

// Arg 1 (str): sector tag
func py_Catalog_Select(self py.Object, args py.Tuple) (py.Object, error) {
	cat := self.(pyCatalog)
	var tag string
	if err := py.LoadTuple(args, []interface{}{&tag}); err != nil {
		return nil, err
	}
	sec, err := qlm.ParseSectorTag(tag)
	if err != nil {
		return nil, valueError(err)
	}
	return wrapStateStream(qlm.SelectFromCatalog(cat, sec)), nil
}

// Returns a dict of sector tag => number of cataloged states.
func py_Catalog_Sectors(self py.Object, args py.Tuple) (py.Object, error) {
	cat := self.(pyCatalog)
	counts := py.NewStringDict()
	for _, sc := range cat.Sectors() {
		counts[sc.Sector.Tag()] = py.Int(sc.Count)
	}
	return counts, nil
}

type stateStream struct {
	*qlm.StateStream
}

func (stream stateStream) Type() *py.Type {
	return pyStateStreamType
}

func wrapStateStream(stream *qlm.StateStream) py.Object {
	return py.Object(stateStream{stream})
}

func streamErr(stream stateStream) error {
	if err := stream.Err(); err != nil {
		return py.ExceptionNewf(py.RuntimeError, "%v", err)
	}
	return nil
}

func py_StateStream_Go(self py.Object, args py.Tuple) (py.Object, error) {
	stream := self.(stateStream)
	count := stream.PullAll()
	if err := streamErr(stream); err != nil {
		return nil, err
	}
	return py.Int(count), nil
}

func py_StateStream_Collect(self py.Object, args py.Tuple) (py.Object, error) {
	stream := self.(stateStream)
	states := stream.Collect()
	if err := streamErr(stream); err != nil {
		return nil, err
	}
	return statesTuple(states), nil
}

// Arg 1 (str): sector tag
func py_StateStream_Select(self py.Object, args py.Tuple) (py.Object, error) {
	stream := self.(stateStream)
	var tag string
	if err := py.LoadTuple(args, []interface{}{&tag}); err != nil {
		return nil, err
	}
	sec, err := qlm.ParseSectorTag(tag)
	if err != nil {
		return nil, valueError(err)
	}
	return wrapStateStream(stream.SelectSector(sec)), nil
}

func py_StateStream_AddTo(self py.Object, args py.Tuple) (py.Object, error) {
	stream := self.(stateStream)
	if len(args) < 1 {
		return nil, py.ExceptionNewf(py.TypeError, "AddTo expects a Catalog")
	}
	cat, ok := args[0].(pyCatalog)
	if !ok {
		return nil, py.ExceptionNewf(py.TypeError, "expected Catalog object (got %v)", args[0].Type().Name)
	}
	if cat.IsReadOnly() {
		return nil, py.ExceptionNewf(py.PermissionError, "catalog is in read-only mode")
	}
	return wrapStateStream(stream.AddTo(cat, search.DefaultBufferSize)), nil
}

type echoToWriter struct {
	stdout *os.File
	to     io.WriteCloser
}

func (echo *echoToWriter) Write(buf []byte) (int, error) {
	if echo.to == nil {
		return echo.stdout.Write(buf)
	}
	return echo.to.Write(buf)
}

func (echo *echoToWriter) Close() error {
	if echo.to != nil {
		return echo.to.Close()
	}
	return nil
}

var gOutCount = int32(0)

// Print(label="", file="") prints each state of the stream and passes it on.
func py_StateStream_Print(self py.Object, args py.Tuple, kwargs py.StringDict) (py.Object, error) {
	stream := self.(stateStream)
	var label, pathname string

	py.LoadTuple(args, []interface{}{&label})
	if label == "" {
		py.LoadAttr(kwargs, "label", &label)
	}
	n := atomic.AddInt32(&gOutCount, 1)
	if label == "" {
		label = fmt.Sprintf("out[%d]", n)
	}
	py.LoadAttr(kwargs, "file", &pathname)

	writer := &echoToWriter{
		stdout: os.Stdout,
	}
	if len(pathname) > 0 {
		os.MkdirAll(filepath.Dir(pathname), 0700)

		file, err := os.OpenFile(pathname, os.O_TRUNC|os.O_WRONLY|os.O_CREATE, 0600)
		if err != nil {
			return nil, py.ExceptionNewf(py.FileNotFoundError, "%v", err)
		}
		writer.to = file
	}

	return wrapStateStream(stream.Print(writer, label)), nil
}

func init() {

	/////////////////////////////////
	// Lattice
	{
		pyLatticeType.Dict["Enumerate"] = py.MustNewMethod("Enumerate", py_Lattice_Enumerate, 0, "returns a dict of sector tag => number of states")
		pyLatticeType.Dict["Sector"] = py.MustNewMethod("Sector", py_Lattice_Sector, 0, "returns the sorted basis of a sector")
		pyLatticeType.Dict["Hamiltonian"] = py.MustNewMethod("Hamiltonian", py_Lattice_Hamiltonian, 0, "returns the (row, col, value) entries of a sector's plaquette term")
		pyLatticeType.Dict["Lowest"] = py.MustNewMethod("Lowest", py_Lattice_Lowest, 0, "returns the lowest eigenvalues of a sector")
		pyLatticeType.Dict["Expand"] = py.MustNewMethod("Expand", py_Lattice_Expand, 0, "returns every state reachable from the seeds")
		pyLatticeType.Dict["Stream"] = py.MustNewMethod("Stream", py_Lattice_Stream, 0, "streams enumerated states")
		pyLatticeType.Dict["SizeTag"] = py.MustNewMethod("SizeTag", py_Lattice_SizeTag, 0, "")
	}

	/////////////////////////////////
	// Catalog
	{
		pyCatalogType.Dict["Select"] = py.MustNewMethod("Select", py_Catalog_Select, 0, "")
		pyCatalogType.Dict["Sectors"] = py.MustNewMethod("Sectors", py_Catalog_Sectors, 0, "")
		pyCatalogType.Dict["Close"] = py.MustNewMethod("Close", py_Catalog_Close, 0, "")
	}

	/////////////////////////////////
	// Workspace
	{
		pyWorkspaceType.Dict["OpenCatalog"] = py.MustNewMethod("OpenCatalog", py_Workspace_OpenCatalog, 0, "")
		pyWorkspaceType.Dict["CatalogExists"] = py.MustNewMethod("CatalogExists", py_Workspace_CatalogExists, 0, "")
	}

	/////////////////////////////////
	// StateStream
	{
		pyStateStreamType.Dict["Go"] = py.MustNewMethod("Go", py_StateStream_Go, 0, "counts the number of states output from the StateStream")
		pyStateStreamType.Dict["Collect"] = py.MustNewMethod("Collect", py_StateStream_Collect, 0, "")
		pyStateStreamType.Dict["Print"] = py.MustNewMethod("Print", py_StateStream_Print, 0, "prints each state from the StateStream")
		pyStateStreamType.Dict["Select"] = py.MustNewMethod("Select", py_StateStream_Select, 0, "")
		pyStateStreamType.Dict["AddTo"] = py.MustNewMethod("AddTo", py_StateStream_AddTo, 0, "")
	}

	{
		methods := []*py.Method{
			py.MustNewMethod("Lattice", py_NewLattice, 0, ""),
			py.MustNewMethod("GetWorkspace", py_GetWorkspace, 0, ""),
		}

		globals := py.StringDict{
			"LIB_VERSION": py.String(LIB_VERSION),
			"MAX_LINKS":   py.Int(qlm.MaxLinks),
			"READ_ONLY":   py.Int(READ_ONLY),
		}

		py.RegisterModule(&py.ModuleImpl{
			Info: py.ModuleInfo{
				Name: "_qlm",
				Doc:  "quantum link model gpython module",
			},
			Methods: methods,
			Globals: globals,
			OnContextClosed: func(m *py.Module) {
				wsObj, _ := py.GetAttrString(m, kWorkspaceAttr)
				if wsObj != nil {
					wsObj.(*Workspace).Close()
				}
			},
		})
	}
}
