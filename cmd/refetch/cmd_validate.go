package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chr1sbest/refetch/internal/config"
)

func validateCmd(args []string) int {
	env, err := config.ParseEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", env.ConfigPath, "Path to config file (.json, .yaml, .yml)")
	fs.Parse(args)

	loader := config.NewLoader(env.ConfigDir)
	path := loader.Resolve(*configFile)
	cfg, err := loader.LoadAndValidate(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	enabled := 0
	for _, c := range cfg.Controllers {
		if c.IsEnabled() {
			enabled++
		}
	}
	fmt.Printf("✓ %s is valid: %d controller(s), %d enabled\n", path, len(cfg.Controllers), enabled)
	return 0
}
