package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/plan-systems/klog"
)

func main() {

	flag.Set("logtostderr", "true")
	flag.Set("v", "2")

	fset := flag.NewFlagSet("", flag.ContinueOnError)
	klog.InitFlags(fset)
	fset.Set("logtostderr", "true")
	fset.Set("v", "2")
	klog.SetFormatter(&klog.FmtConstWidth{
		FileNameCharWidth: 16,
		UseColor:          true,
	})

	var cfg runConfig
	flag.StringVar(&cfg.Expr, "run", "", "run expression, e.g. \"2x2x2 fermions ws(0,0,0) eig=4\"")
	flag.StringVar(&cfg.Catalog, "catalog", "", "badger catalog directory receiving every enumerated state")
	flag.StringVar(&cfg.Archive, "archive", "", "compressed archive file receiving every enumerated state")
	flag.StringVar(&cfg.Codec, "codec", "zstd", "archive frame codec: zstd, lz4 or none")
	flag.IntVar(&cfg.Workers, "workers", 0, "max concurrent worker tasks (0: GOMAXPROCS)")
	flag.IntVar(&cfg.Buffer, "buffer", 0, "states per sink flush (0: default)")
	flag.StringVar(&cfg.LevelRun, "level-run", "frontier", "name under which frontier levels are stored")
	flag.BoolVar(&cfg.Resume, "resume", false, "continue the stored frontier run instead of starting from the seeds")
	flag.StringVar(&cfg.Visited, "visited", "", "directory for an on-disk frontier visited set (default: in memory)")
	flag.StringVar(&cfg.S3.Endpoint, "s3-endpoint", "", "S3-compatible endpoint (host:port) for frontier level checkpoints")
	flag.StringVar(&cfg.S3.Bucket, "s3-bucket", "qlm", "bucket for frontier level checkpoints")
	flag.StringVar(&cfg.S3.Prefix, "s3-prefix", "", "key prefix for frontier level checkpoints")
	flag.StringVar(&cfg.S3.AccessKey, "s3-access", os.Getenv("QLM_S3_ACCESS_KEY"), "S3 access key")
	flag.StringVar(&cfg.S3.SecretKey, "s3-secret", os.Getenv("QLM_S3_SECRET_KEY"), "S3 secret key")
	flag.BoolVar(&cfg.S3.Secure, "s3-secure", false, "use TLS for the S3 endpoint")

	flag.Parse()

	pathname := flag.Arg(0)
	exitCode := 0
	switch {
	case cfg.Expr != "":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		_, err := runExpr(ctx, cfg)
		stop()
		if err != nil {
			klog.Errorf("run %q failed: %v", cfg.Expr, err)
			exitCode = 1
		}
	case pathname == "" || filepath.Ext(pathname) == ".py":
		if err := go_gpython(pathname); err != nil {
			klog.Errorf("script %q failed: %v", pathname, err)
			exitCode = 1
		}
	default:
		klog.Errorf("expected a .py script or -run")
		exitCode = 2
	}

	klog.Flush()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
