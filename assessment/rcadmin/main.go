// Rcadmin drives the risk-assessment service: it binds the service to its
// oracle, submits encrypted measurements and requests and queries reveals.
package main

import (
	"os"

	"github.com/BurntSushi/toml"
	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/app"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
	"gopkg.in/urfave/cli.v1"

	"github.com/riskco/riskco/assessment"
	"github.com/riskco/riskco/oracle"
	_ "github.com/riskco/riskco/pq"
)

var cliApp = cli.NewApp()

var gitTag = "dev"

func init() {
	cliApp.Name = "rcadmin"
	cliApp.Usage = "Handle the risk-assessment service"
	cliApp.Version = gitTag
	cliApp.Commands = cmds // stored in "commands.go"
	cliApp.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "debug, d",
			Value: 0,
			Usage: "debug-level: 1 for terse, 5 for maximal",
		},
		cli.StringFlag{
			Name:   "config, c",
			EnvVar: "RC_CONFIG",
			Usage:  "rcadmin configuration file with defaults for the flags below",
		},
		cli.StringFlag{
			Name:   "group, g",
			EnvVar: "RC_GROUP",
			Value:  "group.toml",
			Usage:  "group definition of the assessment cothority",
		},
		cli.StringFlag{
			Name:  "scheme",
			Value: oracle.SchemeElGamal,
			Usage: "encryption scheme used for binding and submissions",
		},
	}
	cliApp.Before = func(c *cli.Context) error {
		log.SetDebugVisible(c.Int("debug"))
		return nil
	}
}

func main() {
	err := cliApp.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// config is the optional rcadmin.toml. It provides defaults; flags given
// on the command line win.
type config struct {
	Group  string
	Scheme string
}

func loadConfig(c *cli.Context) (*config, error) {
	cfg := &config{
		Group:  c.GlobalString("group"),
		Scheme: c.GlobalString("scheme"),
	}
	path := c.GlobalString("config")
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, xerrors.Errorf("reading config %s: %v", path, err)
	}
	if c.GlobalIsSet("group") {
		cfg.Group = c.GlobalString("group")
	}
	if c.GlobalIsSet("scheme") {
		cfg.Scheme = c.GlobalString("scheme")
	}
	return cfg, nil
}

// readRoster takes a toml file name and returns the roster described in
// it.
func readRoster(tomlFileName string) (*onet.Roster, error) {
	f, err := os.Open(tomlFileName)
	if err != nil {
		return nil, xerrors.Errorf("opening group file: %v", err)
	}
	defer f.Close()
	g, err := app.ReadGroupDescToml(f)
	if err != nil {
		return nil, xerrors.Errorf("reading group file: %v", err)
	}
	if len(g.Roster.List) == 0 {
		return nil, xerrors.Errorf("empty or invalid group file: %s", tomlFileName)
	}
	return g.Roster, nil
}

func newClient(c *cli.Context) (*assessment.Client, *config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	roster, err := readRoster(cfg.Group)
	if err != nil {
		return nil, nil, err
	}
	return assessment.NewClient(roster), cfg, nil
}
