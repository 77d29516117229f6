// Command laura runs either side of the camera-trigger link: the handheld
// remote, the camera-side controller, or an in-process bench of both.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	app := &cli.App{
		Name:  "laura",
		Usage: "long-range GoPro trigger link",
		Commands: []*cli.Command{
			remoteCommand(),
			controllerCommand(),
			benchCommand(),
			versionCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("laura %s (%s)\n", Version, Commit)
			return nil
		},
	}
}
