package main

import (
	"github.com/go-zoox/cli"
	"github.com/go-zoox/gztun/command"
)

// Version is the version string the CLI reports. It is a constant, so
// it cannot be overridden at link time.
const Version = "0.0.0"

func main() {
	app := cli.NewMultipleProgram(&cli.MultipleProgramConfig{
		Name:    "gztun",
		Usage:   "gztun is a reverse SOCKS5 tunnel: client and server daemons.",
		Version: Version,
	})

	command.RegisterClient(app)
	command.RegisterServer(app)

	app.Run()
}
