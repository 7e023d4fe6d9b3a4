package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.dedis.ch/contractsim/blockchain/module"
	"go.dedis.ch/contractsim/contract/impl"
	"go.dedis.ch/contractsim/logging"
	"go.dedis.ch/contractsim/scenario"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		logging.RootLogger.Error().Err(err).Msg("contractsim failed")
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "contractsim",
		Usage:  "simulate Wasm smart contracts on a local chain",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "trace, debug, info, warn or error",
				EnvVars: []string{logging.EnvLevel},
				Value:   "info",
			},
		},
		Before: func(c *cli.Context) error {
			return logging.SetLevel(c.String("log-level"))
		},
		Commands: []*cli.Command{
			{
				Name:  "inspect",
				Usage: "print the reference and the exported functions of a module",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "module", Usage: "module file", Required: true},
					&cli.BoolFlag{Name: "raw", Usage: "the file is bare Wasm without the version prefix"},
				},
				Action: inspect,
			},
			{
				Name:  "run",
				Usage: "run a scenario file and report the outcome of every step",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "scenario", Usage: "scenario file (YAML)", Required: true},
				},
				Action: run,
			},
		},
	}
}

func inspect(c *cli.Context) error {
	var m module.WasmModule
	var err error
	if c.Bool("raw") {
		m, err = module.LoadV1Raw(c.String("module"))
	} else {
		m, err = module.LoadV1(c.String("module"))
	}
	if err != nil {
		return err
	}

	ctx := context.Background()
	engine := impl.NewEngine(ctx, impl.DefaultConfig())
	defer engine.Close(ctx)

	artifact, err := engine.Instantiate(ctx, m.Source)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "version:   %s\n", m.Version)
	fmt.Fprintf(out, "size:      %d\n", m.Size())
	fmt.Fprintf(out, "reference: %s\n", m.Ref())
	exports := artifact.Exports()
	for _, name := range exports.Inits {
		fmt.Fprintf(out, "init:      %s\n", name)
	}
	for _, name := range exports.Receives {
		fmt.Fprintf(out, "receive:   %s\n", name)
	}
	return nil
}

func run(c *cli.Context) error {
	doc, err := scenario.Load(c.String("scenario"))
	if err != nil {
		return err
	}
	report, err := scenario.Run(c.Context, doc, scenario.Options{})
	if report != nil {
		if werr := report.Write(c.App.Writer); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return cli.Exit(fmt.Sprintf("%d steps did not meet their expectations", n), 1)
	}
	return nil
}
