package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"

	"github.com/t7a/atomfs"
	"github.com/t7a/atomfs/config"
	pb "github.com/t7a/atomfs/db"
	"github.com/t7a/atomfs/fuse"
)

const usage = `atomfsd

Usage:
  atomfsd init <dbdir>
  atomfsd serve [<config>]

Options:
  -h --help     Show this screen.
  --version     Show version.

Settings not in <config> come from ATOMFS_* environment variables.
`

type Opts struct {
	Init   bool
	Serve  bool
	Dbdir  string
	Config string
}

func main() {
	rc, msg := Run(os.Args[1:])
	if len(msg) > 0 {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(rc)
}

func Run(args []string) (rc int, msg string) {
	defer Halt(&rc, &msg)

	parser := &docopt.Parser{OptionsFirst: false}
	o, _ := parser.ParseArgs(usage, args, "0.0")
	var opts Opts
	err := o.Bind(&opts)
	Ck(err)

	if opts.Init {
		err := create(opts.Dbdir)
		Ck(err)
		msg = fmt.Sprintf("Initialized empty database in %s", opts.Dbdir)
	}

	if opts.Serve {
		cfg, err := config.Load(opts.Config)
		Ck(err)
		err = atomfs.SetLevel(cfg.Log.Level)
		Ck(err)
		err = serve(cfg)
		Ck(err)
	}

	return
}

func create(dir string) (err error) {
	defer Return(&err)
	_, err = pb.Db{Dir: dir}.Create()
	Ck(err)
	return
}

func serve(cfg *config.Config) (err error) {
	defer Return(&err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := config.OpenStore(ctx, cfg)
	Ck(err)
	defer closeStore()

	table, closeTable, err := config.OpenTable(ctx, cfg)
	Ck(err)
	defer closeTable()

	d := fuse.NewDispatcher(store, table)
	server, err := fuse.Mount(cfg.Mount.Point, d, cfg.FuseOptions())
	Ck(err)
	log.WithField("mountpoint", cfg.Mount.Point).Info("mounted")

	// unmount on SIGINT or SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		s, ok := <-sig
		if !ok {
			return
		}
		log.Infof("%v: unmounting", s)
		umount(server)
	}()

	server.Wait()
	if cs, ok := store.(*pb.CachedStore); ok {
		stats := cs.Stats()
		log.WithFields(log.Fields{"hits": stats.Hits, "misses": stats.Misses}).Info("cache")
	}
	return
}

func umount(server *gofuse.Server) {
	if server != nil {
		err := server.Unmount()
		if err != nil {
			log.Errorf("unmount: %v", err)
		}
	}
}
