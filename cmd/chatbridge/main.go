package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/ChamsBouzaiene/chatbridge/internal/config"
	"github.com/ChamsBouzaiene/chatbridge/internal/factory"
	"github.com/ChamsBouzaiene/chatbridge/internal/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

func run(args []string) error {
	command := "repl"
	if len(args) > 0 && (args[0] == "repl" || args[0] == "serve") {
		command, args = args[0], args[1:]
	}

	var (
		configPath string
		envFiles   []string
		sessionID  string
		addr       string
		watch      bool
		sweep      time.Duration
	)
	fs := pflag.NewFlagSet("chatbridge "+command, pflag.ContinueOnError)
	fs.StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: user config dir)")
	fs.StringSliceVar(&envFiles, "env-file", nil, ".env files to load before reading the config (default: .env)")
	fs.StringVar(&sessionID, "session", "", "session id for the terminal channel (default: random)")
	fs.StringVar(&addr, "addr", ":8080", "listen address for serve")
	fs.BoolVar(&watch, "watch", true, "reload the config file when it changes")
	fs.DurationVar(&sweep, "sweep-interval", time.Minute, "how often expired sessions are dropped (0 disables)")
	fs.BoolP("help", "h", false, "show help")

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(fs)
			return nil
		}
		return err
	}
	if help, _ := fs.GetBool("help"); help {
		printHelp(fs)
		return nil
	}
	if rest := fs.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	config.LoadDotEnv(envFiles...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := factory.Build(ctx, factory.Options{
		ConfigPath:    configPath,
		Watch:         watch,
		SweepInterval: sweep,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			log.Printf("WARNING: %v", err)
		}
	}()

	switch command {
	case "serve":
		return server.New(rt.Bot, rt.Sessions).ListenAndServe(ctx, addr)
	default:
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		return runTerminal(ctx, rt.Bot, sessionID, os.Stdin, os.Stdout)
	}
}

func printHelp(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `chatbridge routes chat messages to ChatGPT, Azure OpenAI, Qwen, Coze or Claude.

Usage:
  chatbridge [repl] [flags]   chat in the terminal
  chatbridge serve [flags]    serve POST /v1/reply and /v1/ws

Flags:
%s`, fs.FlagUsages())
}
