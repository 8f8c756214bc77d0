// swpt-login runs the maintenance commands of the login service:
//
//	swpt-login [--config FILE] flush [-p N] [-w SECONDS] [--quit-early] [SIGNAL_TYPE...]
//	swpt-login [--config FILE] suspend USER_ID...
//	swpt-login [--config FILE] resume USER_ID...
//	swpt-login [--config FILE] delete USER_ID...
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/swaptacular/swpt-login/internal/app/bootstrap"
	"github.com/swaptacular/swpt-login/internal/application"
	"github.com/swaptacular/swpt-login/internal/domain"
)

const defaultConfigPath = "configs/default.yaml"

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	global := pflag.NewFlagSet("swpt-login", pflag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	configPath := global.String("config", defaultConfigPath, "path to the YAML config file")
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return 2
	}

	command, commandArgs := rest[0], rest[1:]
	switch command {
	case "flush":
		opts, err := parseFlushArgs(commandArgs, stderr)
		if err != nil {
			return 2
		}
		runtime, err := bootstrap.NewRuntime(ctx, *configPath)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		defer runtime.Close()
		if err := runtime.RunFlush(ctx, opts); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		// The flush loop is meant to run forever, so returning at all is
		// a failure.
		return 1
	case "suspend", "resume", "delete":
		userIDs, err := parseUserIDArgs(command, commandArgs, stderr)
		if err != nil {
			return 2
		}
		runtime, err := bootstrap.NewRuntime(ctx, *configPath)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		defer runtime.Close()
		return runAdmin(ctx, runtime.Service(), command, userIDs, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", command)
		printUsage(stderr)
		return 2
	}
}

func parseFlushArgs(args []string, stderr io.Writer) (bootstrap.FlushOptions, error) {
	flags := pflag.NewFlagSet("flush", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	processes := flags.IntP("processes", "p", 0, "number of worker processes (default from FLUSH_PROCESSES)")
	wait := flags.Float64P("wait", "w", 0, "seconds between flush cycles (default from FLUSH_PERIOD)")
	quitEarly := flags.Bool("quit-early", false, "exit after one cycle")
	if err := flags.Parse(args); err != nil {
		return bootstrap.FlushOptions{}, err
	}
	if *processes < 0 || *wait < 0 {
		err := errors.New("--processes and --wait must not be negative")
		fmt.Fprintf(stderr, "error: %v\n", err)
		return bootstrap.FlushOptions{}, err
	}

	opts := bootstrap.FlushOptions{
		Processes: *processes,
		Period:    time.Duration(*wait * float64(time.Second)),
		QuitEarly: *quitEarly,
	}
	for _, name := range flags.Args() {
		signalType, err := domain.ParseSignalType(name)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return bootstrap.FlushOptions{}, err
		}
		opts.SignalTypes = append(opts.SignalTypes, signalType)
	}
	return opts, nil
}

func parseUserIDArgs(command string, args []string, stderr io.Writer) ([]string, error) {
	flags := pflag.NewFlagSet(command, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	userIDs := flags.Args()
	if len(userIDs) == 0 {
		err := fmt.Errorf("%s requires at least one user id", command)
		fmt.Fprintf(stderr, "error: %v\n", err)
		return nil, err
	}
	return userIDs, nil
}

type adminService interface {
	SuspendUsers(ctx context.Context, userIDs []string) (application.AdminResult, error)
	ResumeUsers(ctx context.Context, userIDs []string) (application.AdminResult, error)
	DeleteUsers(ctx context.Context, userIDs []string) (application.AdminResult, error)
}

func runAdmin(ctx context.Context, svc adminService, command string, userIDs []string, stderr io.Writer) int {
	var (
		res application.AdminResult
		err error
	)
	switch command {
	case "suspend":
		res, err = svc.SuspendUsers(ctx, userIDs)
	case "resume":
		res, err = svc.ResumeUsers(ctx, userIDs)
	case "delete":
		res, err = svc.DeleteUsers(ctx, userIDs)
	}
	fmt.Fprintf(stderr, "%s: %d of %d users changed\n", command, res.Changed, res.Requested)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `usage: swpt-login [--config FILE] COMMAND [ARGS]

commands:
  flush [-p N] [-w SECONDS] [--quit-early] [SIGNAL_TYPE...]
        send pending signals to the identity API and the message bus
  suspend USER_ID...   block logins of the given users
  resume USER_ID...    lift a suspension
  delete USER_ID...    delete the given users
`)
}
