// Program bbusd runs the busybus router as a standalone daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/taskgroup"

	"github.com/bbgo/busybus"
	"github.com/bbgo/busybus/registry"
	"github.com/bbgo/busybus/transport"
)

type daemonFlags struct {
	SockPath string `flag:"sock,Unix-domain socket path to listen on"`
	Backlog  int    `flag:"backlog,Listen backlog"`
	Verbose  bool   `flag:"v,Log router diagnostics to stderr"`
}

func main() {
	fl := daemonFlags{
		SockPath: busybus.DefaultSockPath(),
		Backlog:  128,
	}
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "Run the busybus router, serving local callers and providers over a Unix-domain socket.",
		SetFlags: func(env *command.Env, fs *flag.FlagSet) {
			flax.MustBind(fs, &fl)
		},
		Run: func(env *command.Env) error {
			return runDaemon(&fl)
		},
		Commands: []*command.C{
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runDaemon(fl *daemonFlags) error {
	transport.SuppressSIGPIPE()

	cfg := busybus.NewConfig()
	cfg.SockPath = fl.SockPath
	cfg.Backlog = fl.Backlog
	if fl.Verbose {
		cfg.Logger = log.New(os.Stderr, "bbusd: ", log.LstdFlags)
	}

	reg := registry.New()
	r := busybus.NewRouter(cfg, reg)
	r.Metrics().Publish("bbusd")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	ctx, cancel := context.WithCancel(context.Background())
	g := taskgroup.New(nil)
	g.Go(func() error {
		select {
		case <-sig:
			r.Shutdown()
		case <-ctx.Done():
		}
		return nil
	})

	log.Printf("bbusd: listening on %s", cfg.SockPath)
	err := r.Serve()
	cancel()
	g.Wait()
	if err != nil {
		return fmt.Errorf("bbusd: %w", err)
	}
	return nil
}
