// Command agentruntime serves an agent over HTTP, chats with it in the terminal, or exposes its
// tools as an MCP server on stdio.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/boat-builder/agentruntime"
	"github.com/boat-builder/agentruntime/config"
	"github.com/boat-builder/agentruntime/mcpbridge"
	"github.com/boat-builder/agentruntime/server"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"
)

const usage = `Usage: agentruntime <command> [flags]

Commands:
  serve   Serve the agent over HTTP
  chat    Chat with the agent in the terminal
  mcp     Expose the agent's tools as an MCP server on stdio
  version Print the version
`

// options are the flags shared by every command. Flags override the config file and environment.
type options struct {
	configPath string
	port       int
	model      string
	maxRounds  int
	sandbox    string
	noStream   bool
}

func newFlagSet(name string, opts *options, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.configPath, "config", "c", "", "TOML or YAML config file")
	fs.IntVarP(&opts.port, "port", "p", 0, "HTTP port (serve only)")
	fs.StringVarP(&opts.model, "model", "m", "", "model name")
	fs.IntVar(&opts.maxRounds, "max-rounds", 0, "maximum tool rounds per turn")
	fs.StringVar(&opts.sandbox, "sandbox", "", "enable the sandbox tools rooted at this directory")
	fs.BoolVar(&opts.noStream, "no-stream", false, "wait for complete answers (chat only)")
	return fs
}

func (o *options) apply(cfg *config.Config) error {
	if o.port != 0 {
		cfg.Server.Port = o.port
	}
	if o.model != "" {
		cfg.Model.Name = o.model
	}
	if o.maxRounds != 0 {
		cfg.Agent.MaxRounds = o.maxRounds
	}
	if o.sandbox != "" {
		cfg.Sandbox.Enabled = true
		cfg.Sandbox.Root = o.sandbox
	}
	return cfg.Validate()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return errors.New("expected a command")
	}

	command := args[0]
	switch command {
	case "serve", "chat", "mcp":
	case "version", "--version", "-v":
		fmt.Fprintln(stdout, "agentruntime", agentruntime.Version)
		return nil
	case "help", "--help", "-h":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}

	var opts options
	fs := newFlagSet(command, &opts, stderr)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := opts.apply(cfg); err != nil {
		return err
	}

	// stdout carries the MCP protocol, so logs only go to stderr and the log file
	logger, logCloser, err := config.SetupLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	rt, err := newRuntime(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	switch command {
	case "serve":
		srv := server.New(rt.pod,
			server.WithServiceName(cfg.Server.ServiceName),
			server.WithLogger(logger),
		)
		addr := net.JoinHostPort("", strconv.Itoa(cfg.Server.Port))
		return srv.ListenAndServe(ctx, addr, cfg.Server.ShutdownTimeout())
	case "chat":
		return chat(ctx, rt.pod, stdin, stdout, !opts.noStream)
	default:
		logger.Info("Serving tools over MCP stdio", "tools", rt.registry.Names())
		err := mcpbridge.Serve(ctx, rt.registry, &mcp.StdioTransport{})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}
