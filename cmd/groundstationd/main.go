// groundstationd is the long-running daemon: it loads the persisted
// configuration, connects the protocol coordinator, and serves the
// status website. Grounded directly on the teacher's rcdcan.go main():
// flag parsing (upgraded to go-arg), wiring the long-lived components,
// then a signal.Notify goroutine that tears everything down with a
// bounded shutdown.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"

	"github.com/kabeerthockchom/xr872ctl/internal/config"
	"github.com/kabeerthockchom/xr872ctl/internal/coordinator"
	"github.com/kabeerthockchom/xr872ctl/internal/statusweb"
)

func main() {
	var args config.CLIArgs
	arg.MustParse(&args)

	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		log.Fatalf("groundstationd: failed to load config %s: %v", args.ConfigPath, err)
	}
	if args.DroneIP != "" {
		cfg.DroneIP = args.DroneIP
	}

	coord := coordinator.New(cfg)
	coord.OnStatus(func(ev coordinator.StatusEvent) {
		if ev.IsLink {
			log.Printf("groundstationd: link state -> %s", ev.LinkState)
			return
		}
		log.Printf("groundstationd: %s", ev.Message)
	})

	if err := coord.Connect(); err != nil {
		log.Fatalf("groundstationd: connect failed: %v", err)
	}

	web := statusweb.New(coord, args.ConfigPath, args.HTTPAddr)
	web.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("groundstationd: shutting down")
	coord.Shutdown()
	if err := web.Shutdown(); err != nil {
		log.Printf("groundstationd: status website shutdown error: %v", err)
	}
}
