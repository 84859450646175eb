package main

import (
	"flag"
	"os"

	"github.com/louisbranch/walletsaga/internal/platform/config"
	"github.com/louisbranch/walletsaga/internal/tools/hmackey"
)

func main() {
	cfg, err := hmackey.ParseConfig(flag.CommandLine, os.Args[1:])
	config.ExitOnError("parse flags", err)
	config.ExitOnError("generate key", hmackey.Run(cfg, os.Stdout, nil))
}
