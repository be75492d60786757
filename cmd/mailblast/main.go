package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mailblast/internal/app"
)

func main() {
	var (
		cfgPath  string
		envFiles string
		once     bool
		dryRun   bool
		status   bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to config yaml/json (empty: environment only)")
	flag.StringVar(&envFiles, "env", ".env", "comma-separated dotenv files to load")
	flag.BoolVar(&once, "once", false, "run a single pass even when a schedule is configured")
	flag.BoolVar(&dryRun, "dry-run", false, "log recipients without sending or recording")
	flag.BoolVar(&status, "status", false, "print the resume cursor and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{
		ConfigPath: cfgPath,
		EnvFiles:   splitList(envFiles),
		Once:       once,
		DryRun:     dryRun,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(app.ExitAborted)
	}

	if status {
		err = a.Status(ctx, os.Stdout)
	} else {
		err = a.Run(ctx)
	}
	_ = a.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "mailblast:", err)
	}
	os.Exit(app.ExitCode(err))
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
