package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	configx "github.com/tanpawarit/pharmacy-concierge/pkg/config"
	logx "github.com/tanpawarit/pharmacy-concierge/pkg/logger"
	_ "github.com/tanpawarit/pharmacy-concierge/pkg/logger/autoload"
)

var (
	errUsage          = errors.New("usage")
	errUnknownCommand = errors.New("unknown command")
)

// AppConfig is read without a prefix.
type AppConfig struct {
	CompanyName       string `envconfig:"COMPANY_NAME" default:"Pharmesol"`
	CompanyEmail      string `envconfig:"COMPANY_EMAIL" default:"hello@pharmesol.com"`
	CompanyPhone      string `envconfig:"COMPANY_PHONE" default:"+1-555-PHARMA-1"`
	CompanyLeadsEmail string `envconfig:"COMPANY_LEADS_EMAIL"`
	CallbackWindow    string `envconfig:"CALLBACK_WINDOW"`

	PromptsDir   string `envconfig:"PROMPTS_DIR"`
	PromptsWatch bool   `envconfig:"PROMPTS_WATCH" default:"false"`

	// LLMProvider is auto, openrouter, gemini or none.
	LLMProvider string `envconfig:"LLM_PROVIDER" default:"auto"`
	// CallbackScheduler is log or qstash.
	CallbackScheduler string `envconfig:"CALLBACK_SCHEDULER" default:"log"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout)
	stop()
	if err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, errUnknownCommand) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Error().Err(err).Msg("pharmacy-concierge failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	global := flag.NewFlagSet("pharmacy-concierge", flag.ContinueOnError)
	global.SetOutput(out)
	envFile := global.String("env", "", "path to a .env file (default ./.env)")
	global.Usage = func() { printUsage(out, global) }
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	if *envFile != "" {
		configx.SetEnvFile(*envFile)
		if conf, err := configx.New[logx.Config]("LOG"); err == nil {
			logx.Init(*conf)
		}
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage(out, global)
		return nil
	}

	switch rest[0] {
	case "chat":
		return chatCommand(ctx, rest[1:], in, out)
	case "demo":
		return demoCommand(ctx, rest[1:], out)
	case "help":
		printUsage(out, global)
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, rest[0])
	}
}

func printUsage(out io.Writer, global *flag.FlagSet) {
	fmt.Fprintln(out, "Usage: pharmacy-concierge [-env file] <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  chat --phone <number>      talk to the assistant as the given caller")
	fmt.Fprintln(out, "  demo [--scenario <name>]   replay a scripted call (returning, new-lead, abandon, all)")
	fmt.Fprintln(out, "  help                       show this message")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Global flags:")
	global.PrintDefaults()
}
