package main

import (
	"os"

	"github.com/mitchellh/cli"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ui := &cli.BasicUi{
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	c := cli.NewCLI("revokecheck", version)
	c.Args = args
	c.Commands = map[string]cli.CommandFactory{
		"check": func() (cli.Command, error) {
			return &CheckCommand{UI: ui}, nil
		},
	}

	exitStatus, err := c.Run()
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	return exitStatus
}

const version = "0.1.0"
