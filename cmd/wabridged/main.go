package main

import (
	"flag"

	"go.uber.org/fx"

	"github.com/osari/wabridge/internal/daemon"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	listenFlag := flag.String("listen", "", "HTTP listen address (overrides config)")
	configFlag := flag.String("config", "", "path to config file")
	flag.Parse()

	app := fx.New(
		daemon.Module(daemon.Params{
			SessionName: *sessionFlag,
			ListenAddr:  *listenFlag,
			ConfigPath:  *configFlag,
		}),
	)

	app.Run()
}
