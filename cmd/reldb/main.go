// Command reldb is a thin line-oriented shell over the storage and
// execution engine, grounded on the teacher's src/main.go +
// sgbd.SGBD.Run()/ProcessCommand dispatch loop. The SQL parser and
// query planner are out of scope (spec.md §1): this shell understands
// only the small fixed command grammar below, enough to drive every
// catalog/heap/exec operation end to end.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/jmcarbo/reldb/internal/config"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file (JSON/YAML/key-value)")
	dbPath := flag.String("dbpath", "./reldb-data", "base directory for databases (used when -config is omitted)")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	var cfg *config.Config
	if *cfgPath != "" {
		abs, err := filepath.Abs(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve config path: %v\n", err)
			os.Exit(2)
		}
		cfg, err = config.Load(abs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(2)
		}
	} else {
		abs, err := filepath.Abs(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve db path: %v\n", err)
			os.Exit(2)
		}
		cfg = config.New(abs)
	}

	sh, err := NewShell(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize engine: %v\n", err)
		os.Exit(2)
	}
	if err := sh.Run(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
		os.Exit(2)
	}
}
