package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/vortex/engine"
	"github.com/spaghettifunk/vortex/testbed"
)

func main() {
	config, err := engine.LoadConfig("vortex.toml")
	if err != nil {
		panic(err)
	}

	tb := testbed.NewTestGame(config)

	eng, err := engine.New(tb.Game)
	if err != nil {
		panic(err)
	}

	if err := eng.Initialize(); err != nil {
		panic(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		_ = eng.Shutdown()
	}()

	if err := eng.Run(); err != nil {
		panic(err)
	}
}
