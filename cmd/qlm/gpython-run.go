package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fine-structures/qlm.SDK/pyqlm"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/go-python/gpython/py"
	"github.com/go-python/gpython/repl"
	"github.com/go-python/gpython/repl/cli"
	"github.com/plan-systems/klog"

	_ "github.com/go-python/gpython/stdlib"
)

// replStartup is run ahead of the REPL when present, e.g. to import _qlm and build common lattices.
const replStartup = "lib/_REPL_startup.py"

// go_gpython runs the given script, or the interactive REPL if pathname is empty, with _qlm registered.
func go_gpython(pathname string) error {
	ctx := py.NewContext(py.DefaultContextOpts())

	var err error
	if pathname == "" {
		replCtx := repl.New(ctx)
		if _, statErr := os.Stat(replStartup); statErr == nil {
			_, err = py.RunFile(ctx, replStartup, py.CompileOpts{}, replCtx.Module)
		}
		if err == nil {
			fmt.Printf("qlm %s  (_qlm: Lattice, GetWorkspace; MAX_LINKS=%d)\n", pyqlm.LIB_VERSION, qlm.MaxLinks)
			cli.RunREPL(replCtx)
		}
	} else {
		start := time.Now()
		klog.Infof("running %s", pathname)
		_, err = py.RunFile(ctx, pathname, py.CompileOpts{}, nil)
		if err == nil {
			klog.Infof("%s done in %v", pathname, time.Since(start).Round(time.Millisecond))
		}
	}

	ctx.Close()
	<-ctx.Done()

	if err != nil {
		py.TracebackDump(err)
	}
	return err
}
