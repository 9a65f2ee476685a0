package main

import (
	"context"
	"strings"

	"github.com/fine-structures/qlm.SDK/libqlm"
	"github.com/fine-structures/qlm.SDK/libqlm/archive"
	"github.com/fine-structures/qlm.SDK/libqlm/catalog"
	"github.com/fine-structures/qlm.SDK/libqlm/eigen"
	"github.com/fine-structures/qlm.SDK/libqlm/fock"
	"github.com/fine-structures/qlm.SDK/libqlm/frontier"
	"github.com/fine-structures/qlm.SDK/libqlm/hamiltonian"
	"github.com/fine-structures/qlm.SDK/libqlm/lattice"
	"github.com/fine-structures/qlm.SDK/libqlm/objstore"
	"github.com/fine-structures/qlm.SDK/libqlm/runspec"
	"github.com/fine-structures/qlm.SDK/libqlm/search"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
)

type runConfig struct {
	Expr     string
	Catalog  string
	Archive  string
	Codec    string
	Workers  int
	Buffer   int
	LevelRun string
	Resume   bool
	Visited  string
	S3       objstore.Config
}

type runReport struct {
	Spec    *runspec.RunSpec
	Sector  *qlm.Sector
	Counts  []qlm.SectorCount // per sector, when the run enumerated
	Total   int64             // states enumerated or reached
	Basis   int               // states in the assembled basis
	Entries int               // off-diagonal matrix entries
	Eigen   []float64
}

func parseCodec(name string) (archive.Codec, error) {
	switch strings.ToLower(name) {
	case "", "zstd":
		return archive.CodecZstd, nil
	case "lz4":
		return archive.CodecLZ4, nil
	case "none":
		return archive.CodecNone, nil
	}
	return 0, errors.Errorf("unknown archive codec %q", name)
}

// teeSink writes every batch to each sink and keeps the states of one sector.
type teeSink struct {
	sinks  []qlm.StateSink
	sector *qlm.Sector
	kept   []qlm.State
}

func (tee *teeSink) WriteStates(batch []qlm.SectorState) error {
	for _, sink := range tee.sinks {
		if err := sink.WriteStates(batch); err != nil {
			return err
		}
	}
	if tee.sector != nil {
		for _, st := range batch {
			if st.Sector == *tee.sector {
				tee.kept = append(tee.kept, st.State)
			}
		}
	}
	return nil
}

// runExpr enumerates or expands the basis a run expression describes, assembles its
// Hamiltonian and reports the lowest eigenvalues.
func runExpr(ctx context.Context, cfg runConfig) (*runReport, error) {
	spec, err := runspec.Parse(cfg.Expr)
	if err != nil {
		return nil, err
	}
	lat, err := lattice.New(spec.Sizes)
	if err != nil {
		return nil, err
	}
	plaqs, err := lattice.BuildPlaquettes(lat)
	if err != nil {
		return nil, err
	}
	sec, err := spec.Sector(lat)
	if err != nil {
		return nil, err
	}

	rep := &runReport{
		Spec:   spec,
		Sector: sec,
	}

	var cat qlm.Catalog
	if cfg.Catalog != "" {
		catCtx := qlm.NewCatalogContext()
		defer func() {
			catCtx.Close()
			<-catCtx.Done()
		}()
		cat, err = catalog.OpenCatalog(catCtx, qlm.CatalogOpts{
			DbPathName: cfg.Catalog,
			SizeTag:    lat.SizeTag(),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "opening catalog %s", cfg.Catalog)
		}
	}

	var basis []qlm.State
	if len(spec.Seeds) > 0 || cfg.Resume {
		basis, err = expandBasis(ctx, cfg, spec, lat, plaqs, cat)
		rep.Total = int64(len(basis))
	} else {
		basis, err = enumerateBasis(ctx, cfg, spec, lat, cat, rep)
	}
	if err != nil {
		return rep, err
	}

	if len(basis) == 0 {
		if sec != nil {
			klog.Warningf("%s: sector %s has no states", lat.SizeTag(), sec.Tag())
		}
		return rep, nil
	}

	table, err := fock.NewTable(basis)
	if err != nil {
		return rep, err
	}
	entries, err := hamiltonian.Assemble(ctx, table, plaqs, spec.Statistics, hamiltonian.Opts{
		Workers: cfg.Workers,
	})
	if err != nil {
		return rep, err
	}
	rep.Basis = table.Len()
	rep.Entries = len(entries)

	if rep.Basis > eigen.MaxDenseDim {
		klog.Warningf("%s: basis of %d states is too large for the dense eigensolver", lat.SizeTag(), rep.Basis)
		return rep, nil
	}
	rep.Eigen, err = eigen.Lowest(entries, rep.Basis, eigen.Params{
		J:          spec.J,
		Lambda:     spec.Lambda,
		Statistics: spec.Statistics,
	}, spec.NumEigen)
	if err != nil {
		return rep, err
	}

	klog.Infof("%s: basis %d, entries %d, lowest %v", spec.String(), rep.Basis, rep.Entries, rep.Eigen)
	return rep, nil
}

func enumerateBasis(ctx context.Context, cfg runConfig, spec *runspec.RunSpec, lat *lattice.Lattice, cat qlm.Catalog, rep *runReport) ([]qlm.State, error) {
	tee := &teeSink{
		sector: rep.Sector,
	}
	if cat != nil {
		tee.sinks = append(tee.sinks, cat)
	}
	if cfg.Archive != "" {
		codec, err := parseCodec(cfg.Codec)
		if err != nil {
			return nil, err
		}
		wr, err := archive.Create(cfg.Archive, codec)
		if err != nil {
			return nil, err
		}
		defer wr.Close()
		tee.sinks = append(tee.sinks, wr)
	}

	res, err := search.Enumerate(ctx, lat, &spec.Charges, tee, search.Opts{
		BufferSize: cfg.Buffer,
		MaxStates:  spec.MaxStates,
	})
	if res != nil {
		rep.Counts = res.Counts
		rep.Total = res.Total
	}
	if err != nil {
		return nil, err
	}
	for _, sc := range res.Counts {
		klog.Infof("%s: %8d states in %s", lat.SizeTag(), sc.Count, sc.Sector.Tag())
	}
	return qlm.SortStates(tee.kept), nil
}

func expandBasis(ctx context.Context, cfg runConfig, spec *runspec.RunSpec, lat *lattice.Lattice, plaqs []lattice.Plaquette, cat qlm.Catalog) ([]qlm.State, error) {
	opts := frontier.Opts{
		MaxLevel:  spec.MaxLevel,
		MaxStates: int(spec.MaxStates),
		Workers:   cfg.Workers,
		Run:       cfg.LevelRun,
		OnLevel: func(lv frontier.Level) error {
			klog.Infof("%s: level %d: %d new states (%d total)", lat.SizeTag(), lv.Index, len(lv.States), lv.Total)
			return nil
		},
	}
	if cfg.S3.Endpoint != "" {
		store, err := objstore.Dial(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		opts.Store = store
		opts.Run = lat.SizeTag() + "/" + cfg.LevelRun
	} else if cat != nil {
		opts.Store = cat
	}

	charges, err := lat.Charges(&spec.Charges)
	if err != nil {
		return nil, err
	}
	for _, s := range spec.Seeds {
		if v := lat.CheckGaussLaw(s, charges); v >= 0 {
			return nil, errors.Errorf("seed %v violates the Gauss law at vertex %d", s, v)
		}
	}

	if cfg.Resume && opts.Store == nil {
		return nil, errors.New("-resume needs a catalog or an object store")
	}

	// the explorer closes the visited set before returning
	if cfg.Visited != "" {
		opts.Visited, err = libqlm.OpenLSMStateSet(cfg.Visited)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Resume {
		return frontier.Resume(ctx, plaqs, opts)
	}
	return frontier.Expand(ctx, spec.Seeds, plaqs, opts)
}
