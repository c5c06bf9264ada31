// Riskcod is the server binary of the riskco project. One riskcod hosts
// both the risk-assessment service and the decryption oracle; which role a
// conode plays is decided by what the operators bind and ask it to do.
//
// Set up a new server configuration with:
//
// 	./riskcod setup
//
// and launch the daemon with:
//
// 	./riskcod
//
package main

import (
	"os"
	"path"

	"go.dedis.ch/onet/v3/app"
	"go.dedis.ch/onet/v3/cfgpath"
	"go.dedis.ch/onet/v3/log"
	"gopkg.in/urfave/cli.v1"

	"github.com/riskco/riskco"
	_ "github.com/riskco/riskco/assessment"
	_ "github.com/riskco/riskco/oracle"
	_ "github.com/riskco/riskco/pq"
)

const (
	// DefaultName is the name of the binary and of its configuration
	// directory.
	DefaultName = "riskcod"

	// Version of this binary
	Version = "0.1"
)

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = DefaultName
	cliApp.Usage = "run a riskco server"
	cliApp.Version = Version
	serverFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: path.Join(cfgpath.GetConfigPath(DefaultName), app.DefaultServerConfig),
			Usage: "configuration file of the server",
		},
		cli.IntFlag{
			Name:  "debug, d",
			Value: 0,
			Usage: "debug-level: 1 for terse, 5 for maximal",
		},
	}

	cliApp.Commands = []cli.Command{
		{
			Name:    "setup",
			Aliases: []string{"s"},
			Usage:   "Setup server configuration (interactive)",
			Action: func(c *cli.Context) error {
				if c.String("config") != "" {
					log.Fatal("[-] Configuration file option cannot be used for the 'setup' command")
				}
				if c.String("debug") != "" {
					log.Fatal("[-] Debug option cannot be used for the 'setup' command")
				}
				app.InteractiveConfig(riskco.Suite, DefaultName)
				return nil
			},
		},
		{
			Name:  "server",
			Usage: "Start riskco server",
			Action: func(c *cli.Context) error {
				runServer(c)
				return nil
			},
			Flags: serverFlags,
		},
	}
	cliApp.Flags = serverFlags
	cliApp.Before = func(c *cli.Context) error {
		log.SetDebugVisible(c.Int("debug"))
		return nil
	}
	// default action
	cliApp.Action = func(c *cli.Context) error {
		runServer(c)
		return nil
	}

	err := cliApp.Run(os.Args)
	log.ErrFatal(err)
}

func runServer(ctx *cli.Context) {
	config := ctx.String("config")
	app.RunServer(config)
}
