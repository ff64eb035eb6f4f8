// Copyright 2024 The chanequevm Authors
// This file is part of chanequevm.
//
// chanequevm is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// chanequevm is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with chanequevm. If not, see <http://www.gnu.org/licenses/>.

// Command chaneque loads a chaneque program image and executes it to
// completion.
//
// Usage:
//
//	chaneque [flags] <image file>
//
// The process exits 0 on a clean halt and 1 on any initialisation or
// runtime failure. Diagnostic output goes to stderr.
package main

import (
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/status-im/keycard-go/hexutils"
	"golang.org/x/crypto/sha3"
	"gopkg.in/urfave/cli.v1"

	"github.com/cedmundo/chanequevm/vm"
)

const version = "0.3.0"

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Log level 0-5 (0=silent, 5=trace)",
		Value: 3,
	}
	traceStepsFlag = cli.BoolFlag{
		Name:  "trace-steps",
		Usage: "Log every fetched instruction",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "chaneque"
	app.Usage = "chaneque bytecode virtual machine"
	app.Version = version
	app.ArgsUsage = "<image file>"
	app.Flags = []cli.Flag{configFileFlag, verbosityFlag, traceStepsFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	setupLogging(ctx.Int(verbosityFlag.Name))

	if ctx.NArg() != 1 {
		return cli.NewExitError("usage: chaneque [flags] <image file>", 1)
	}

	cfg := vm.DefaultConfig
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			log.Error("Cannot load configuration", "file", file, "err", err)
			return cli.NewExitError(err.Error(), 1)
		}
	}
	if ctx.Bool(traceStepsFlag.Name) {
		cfg.TraceSteps = true
	}

	path := ctx.Args().First()
	image, err := os.ReadFile(path)
	if err != nil {
		log.Error("Cannot read program image", "path", path, "err", err)
		return cli.NewExitError(err.Error(), 1)
	}

	digest := sha3.NewLegacyKeccak256()
	digest.Write(image)
	log.Info("Loaded program image", "path", path, "size", len(image),
		"keccak", hexutils.BytesToHex(digest.Sum(nil)))

	machine, err := vm.NewWithConfig(image, cfg)
	if err != nil {
		log.Error("Cannot initialize vm", "err", err)
		return cli.NewExitError(err.Error(), 1)
	}
	defer machine.Close()

	if err := machine.Run(); err != nil {
		log.Error("Vm run failed", "err", err, "pc", machine.PC())
		return cli.NewExitError(err.Error(), 1)
	}
	log.Debug("Clean halt", "pc", machine.PC())
	return nil
}

// setupLogging installs a terminal handler at the level selected by the
// verbosity flag.
func setupLogging(verbosity int) {
	var lvl slog.Level
	switch {
	case verbosity <= 0:
		lvl = slog.Level(math.MaxInt)
	case verbosity == 1:
		lvl = slog.LevelError
	case verbosity == 2:
		lvl = slog.LevelWarn
	case verbosity == 3:
		lvl = slog.LevelInfo
	case verbosity == 4:
		lvl = slog.LevelDebug
	default:
		lvl = log.LevelTrace
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)))
}
