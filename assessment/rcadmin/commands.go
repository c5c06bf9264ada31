package main

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
	"gopkg.in/urfave/cli.v1"

	"github.com/riskco/riskco/assessment"
)

var cmds = cli.Commands{
	{
		Name:      "bind",
		Usage:     "bind the assessment service to its decryption oracle",
		ArgsUsage: "[oracle-group.toml]",
		Action:    bind,
	},
	{
		Name:      "submit",
		Usage:     "encrypt the three measurements and submit them",
		ArgsUsage: "breaches responseTime vulnerabilities",
		Action:    submit,
	},
	{
		Name:  "reveal",
		Usage: "ask the oracle to open an assessment or a category counter",
		Subcommands: cli.Commands{
			{
				Name:      "assessment",
				Usage:     "reveal and finalize the assessment of one measurement",
				ArgsUsage: "id",
				Action:    revealAssessment,
				Flags: []cli.Flag{
					cli.BoolFlag{
						Name:  "wait, w",
						Usage: "wait for the callback and print the result",
					},
				},
			},
			{
				Name:      "count",
				Usage:     "reveal the current value of one category counter",
				ArgsUsage: "category",
				Action:    revealCount,
				Flags: []cli.Flag{
					cli.BoolFlag{
						Name:  "wait, w",
						Usage: "wait for the callback and print the snapshot",
					},
				},
			},
		},
	},
	{
		Name:      "assessment",
		Usage:     "print the assessment of one measurement",
		ArgsUsage: "id",
		Action:    showAssessment,
	},
	{
		Name:      "count",
		Usage:     "print the state of one category counter",
		ArgsUsage: "category",
		Action:    showCount,
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "revealed, r",
				Usage: "print the audited snapshot instead of the encrypted state",
			},
		},
	},
	{
		Name:   "status",
		Usage:  "print the binding and an overview of all counters",
		Action: showStatus,
	},
}

func bind(c *cli.Context) error {
	client, cfg, err := newClient(c)
	if err != nil {
		return err
	}
	oracleGroup := cfg.Group
	if c.NArg() > 0 {
		oracleGroup = c.Args().First()
	}
	oracleRoster, err := readRoster(oracleGroup)
	if err != nil {
		return err
	}
	reply, err := client.BindOracle(oracleRoster, cfg.Scheme)
	if err != nil {
		return err
	}
	log.Infof("Bound oracle %s with scheme %s", oracleRoster.List[0].Address,
		cfg.Scheme)
	log.Infof("Signing public key: %s", reply.SigningPublic)
	log.Infof("Scheme public key: %s...", shortHex(reply.SchemePublic))
	return nil
}

func submit(c *cli.Context) error {
	if c.NArg() != 3 {
		return xerrors.New("please give: breaches responseTime vulnerabilities")
	}
	values := make([]uint32, 3)
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(c.Args().Get(i), 10, 32)
		if err != nil {
			return xerrors.Errorf("parsing %q: %v", c.Args().Get(i), err)
		}
		values[i] = uint32(v)
	}
	client, _, err := newClient(c)
	if err != nil {
		return err
	}
	id, err := client.SubmitValues(values[0], values[1], values[2])
	if err != nil {
		return err
	}
	log.Infof("Measurement stored with id %d", id)
	return nil
}

func revealAssessment(c *cli.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	client, _, err := newClient(c)
	if err != nil {
		return err
	}
	requestID, err := client.RevealAssessment(id)
	if err != nil {
		return err
	}
	log.Infof("Reveal of assessment %d requested: %s", id, requestID)
	if !c.Bool("wait") {
		return nil
	}
	a, err := client.WaitAssessment(id, time.Second)
	if err != nil {
		return err
	}
	printAssessment(id, a)
	return nil
}

func revealCount(c *cli.Context) error {
	level, err := parseLevel(c)
	if err != nil {
		return err
	}
	client, _, err := newClient(c)
	if err != nil {
		return err
	}
	// The current generation is the floor the snapshot has to reach.
	count, err := client.PeekCount(level)
	if err != nil {
		return err
	}
	requestID, err := client.RevealCategory(level)
	if err != nil {
		return err
	}
	log.Infof("Reveal of the %s counter requested: %s", level, requestID)
	if !c.Bool("wait") {
		return nil
	}
	revealed, err := client.WaitRevealedCount(level, count.Generation, time.Second)
	if err != nil {
		return err
	}
	printRevealed(revealed)
	return nil
}

func showAssessment(c *cli.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	client, _, err := newClient(c)
	if err != nil {
		return err
	}
	a, err := client.GetAssessment(id)
	if err != nil {
		return err
	}
	printAssessment(id, a)
	return nil
}

func showCount(c *cli.Context) error {
	level, err := parseLevel(c)
	if err != nil {
		return err
	}
	client, _, err := newClient(c)
	if err != nil {
		return err
	}
	if c.Bool("revealed") {
		revealed, err := client.GetRevealedCount(level)
		if err != nil {
			return err
		}
		printRevealed(revealed)
		return nil
	}
	count, err := client.PeekCount(level)
	if err != nil {
		return err
	}
	log.Infof("%s: ciphertext of %d bytes at generation %d", level,
		len(count.Count), count.Generation)
	return nil
}

func showStatus(c *cli.Context) error {
	client, _, err := newClient(c)
	if err != nil {
		return err
	}
	bind, err := client.GetBinding()
	if err != nil {
		log.Info("No oracle bound")
	} else {
		log.Infof("Oracle: %s, scheme %s", bind.Roster.List[0].Address, bind.Scheme)
	}
	for _, level := range assessment.RiskLevels {
		line := string(level) + ":"
		count, err := client.PeekCount(level)
		if err != nil {
			log.Infof("%s no assessments yet", line)
			continue
		}
		line += " " + strconv.FormatUint(count.Generation, 10) + " assessments"
		revealed, err := client.GetRevealedCount(level)
		if err == nil {
			line += ", last snapshot " + strconv.FormatUint(uint64(revealed.Count), 10) +
				" at generation " + strconv.FormatUint(revealed.Generation, 10)
		}
		log.Info(line)
	}
	return nil
}

func parseID(c *cli.Context) (uint64, error) {
	if c.NArg() != 1 {
		return 0, xerrors.New("please give the measurement id")
	}
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("parsing id %q: %v", c.Args().First(), err)
	}
	return id, nil
}

func parseLevel(c *cli.Context) (assessment.RiskLevel, error) {
	if c.NArg() != 1 {
		return "", xerrors.New("please give the risk level")
	}
	arg := c.Args().First()
	for _, level := range assessment.RiskLevels {
		if strings.EqualFold(string(level), arg) {
			return level, nil
		}
	}
	return "", xerrors.Errorf("unknown risk level %q", arg)
}

func printAssessment(id uint64, a *assessment.Assessment) {
	if !a.IsRevealed {
		log.Infof("Assessment %d is not revealed yet", id)
		return
	}
	log.Infof("Assessment %d, revealed %s:", id,
		time.Unix(0, a.RevealedAt).Format(time.RFC3339))
	log.Infof("  Risk level:      %s", a.RiskLevel)
	log.Infof("  Recommendations: %s", a.Recommendations)
	log.Infof("  Systemic risk:   %s", a.SystemicRiskFlag)
}

func printRevealed(revealed *assessment.RevealedCount) {
	log.Infof("%s counter: %d assessments at generation %d, revealed %s",
		revealed.Category, revealed.Count, revealed.Generation,
		time.Unix(0, revealed.RevealedAt).Format(time.RFC3339))
}

func shortHex(buf []byte) string {
	if len(buf) > 16 {
		buf = buf[:16]
	}
	return hex.EncodeToString(buf)
}
