package main

import (
	"context"
	"flag"
	"os"
	"path"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"capmOptimizerBot/internal/config"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	cfg := config.LoadShared()
	zerolog.SetGlobalLevel(cfg.LogLevel)

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&optimizeCmd{common: common{cfg: cfg}}, "")
	commander.Register(&betaCmd{common: common{cfg: cfg}}, "")
	commander.Register(&marketCmd{common: common{cfg: cfg}}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
