// Command agencyctl calls agency LLM providers and inspects usage from the
// command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/upb/agency-llm-client/app"
	"github.com/upb/agency-llm-client/config"
	"github.com/upb/agency-llm-client/internal/observability"
	"github.com/upb/agency-llm-client/internal/report"
	"github.com/upb/agency-llm-client/services"
	"github.com/upb/agency-llm-client/services/providers"
	"github.com/upb/agency-llm-client/services/providers/builtin"
	"go.uber.org/zap"
)

const usageText = `usage: agencyctl <command> [flags]

commands:
  call       send a prompt for an agent (-agent, -provider, -system, -max-tokens, -prompt or stdin)
  status     show provider credential readiness
  summary    show the usage summary (-watch re-renders on change)
  providers  list known providers (-enabled lists enabled ones)
  schema     print the agency document JSON schema
  validate   load and validate the agency document
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "agencyctl: %s\n", describe(err))
		os.Exit(1)
	}
}

// describe makes sure the error kind leads the message
func describe(err error) string {
	msg := err.Error()
	if kind := string(services.GetErrorType(err)); kind != "" && !strings.HasPrefix(msg, kind+":") {
		return kind + ": " + msg
	}
	return msg
}

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return errUsage
	}

	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "call":
		return c.call(ctx, rest)
	case "status":
		return c.status(ctx, rest)
	case "summary":
		return c.summary(ctx, rest)
	case "providers":
		return c.providers(ctx, rest)
	case "schema":
		return c.schema(rest)
	case "validate":
		return c.validate(ctx, rest)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usageText)
		return nil
	default:
		fmt.Fprint(stderr, usageText)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// flagSet returns a flag set carrying the shared -config flag
func (c *cli) flagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	agencyPath := fs.String("config", "", "agency document path (defaults to AGENCY_CONFIG)")
	return fs, agencyPath
}

// runtimeConfig loads env configuration, applying the -config override
func runtimeConfig(ctx context.Context, agencyPath string) (*config.Config, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, services.WrapConfig("load runtime config", err)
	}
	if agencyPath != "" {
		cfg.AgencyPath = agencyPath
	}
	return cfg, nil
}

func (c *cli) setup(ctx context.Context, agencyPath string) (*app.Dependencies, error) {
	cfg, err := runtimeConfig(ctx, agencyPath)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, services.WrapConfig("create logger", err)
	}

	return app.NewDependencies(ctx, cfg, logger)
}

func (c *cli) loadAgency(ctx context.Context, agencyPath string) (*config.AgencyConfig, error) {
	cfg, err := runtimeConfig(ctx, agencyPath)
	if err != nil {
		return nil, err
	}
	return config.LoadAgency(cfg.AgencyPath)
}

func (c *cli) call(ctx context.Context, args []string) error {
	fs, agencyPath := c.flagSet("call")
	agent := fs.String("agent", "", "agent name (required)")
	provider := fs.String("provider", "", "preferred provider, overriding the agent default")
	system := fs.String("system", "", "system prompt")
	maxTokens := fs.Int("max-tokens", 0, "max output tokens (0 uses the provider config)")
	prompt := fs.String("prompt", "", "user prompt (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *agent == "" {
		return fmt.Errorf("call: -agent is required")
	}

	text := *prompt
	if text == "" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("call: prompt is empty")
	}

	deps, err := c.setup(ctx, *agencyPath)
	if err != nil {
		return err
	}
	defer deps.Close(ctx)

	client, err := deps.NewClient(*agent, *provider)
	if err != nil {
		return err
	}

	resp, err := client.Call(ctx, []providers.Message{{Role: "user", Content: text}}, *system, *maxTokens)
	if err != nil {
		return err
	}
	return report.RenderResponse(c.stdout, resp)
}

func (c *cli) status(ctx context.Context, args []string) error {
	fs, agencyPath := c.flagSet("status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	deps, err := c.setup(ctx, *agencyPath)
	if err != nil {
		return err
	}
	defer deps.Close(ctx)

	return report.RenderStatus(c.stdout, deps.Credentials.ValidateAll())
}

func (c *cli) summary(ctx context.Context, args []string) error {
	fs, agencyPath := c.flagSet("summary")
	watch := fs.Bool("watch", false, "re-render whenever the usage log changes (file store only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	deps, err := c.setup(ctx, *agencyPath)
	if err != nil {
		return err
	}
	defer deps.Close(ctx)

	render := func() error {
		summary, err := deps.Summary(ctx)
		if err != nil {
			return err
		}
		return report.RenderSummary(c.stdout, summary)
	}

	if err := render(); err != nil {
		return err
	}
	if !*watch {
		return nil
	}

	path, ok := deps.TrackFile()
	if !ok {
		return services.NewConfigError("summary -watch requires the file usage store")
	}

	if deps.Prometheus != nil {
		addr := deps.Config.Observability.MetricsAddr
		go func() {
			if err := deps.Prometheus.StartServer(ctx, addr); err != nil {
				deps.Logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		deps.Logger.Info("serving metrics", zap.String("addr", addr))
	}

	return deps.Tracker.Watch(ctx, path, func() {
		fmt.Fprintln(c.stdout)
		if err := render(); err != nil {
			deps.Logger.Warn("failed to render usage summary", zap.Error(err))
		}
	})
}

func (c *cli) providers(ctx context.Context, args []string) error {
	fs, agencyPath := c.flagSet("providers")
	enabled := fs.Bool("enabled", false, "list providers enabled in the agency document")
	if err := fs.Parse(args); err != nil {
		return err
	}

	names := builtin.NewFactory().Known()
	if *enabled {
		agency, err := c.loadAgency(ctx, *agencyPath)
		if err != nil {
			return err
		}
		names = providers.ListEnabled(agency)
	}

	for _, name := range names {
		fmt.Fprintln(c.stdout, name)
	}
	return nil
}

func (c *cli) schema(args []string) error {
	fs := flag.NewFlagSet("schema", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := config.AgencySchemaJSON()
	if err != nil {
		return services.WrapInternal("render agency schema", err)
	}
	_, err = fmt.Fprintln(c.stdout, string(data))
	return err
}

func (c *cli) validate(ctx context.Context, args []string) error {
	fs, agencyPath := c.flagSet("validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	agency, err := c.loadAgency(ctx, *agencyPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.stdout, "%s: ok (%d providers, %d agents, %d enabled)\n",
		agency.Source(), len(agency.Providers), len(agency.Agents), len(providers.ListEnabled(agency)))
	return nil
}
