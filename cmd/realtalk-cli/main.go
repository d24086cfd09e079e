// realtalk-cli is a terminal client for a realtime voice session. Typed
// lines are sent as user messages; completed transcripts are printed as
// they arrive. Microphone audio is streamed unless --no-audio is given.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"realtalk/internal/bootstrap"
	"realtalk/internal/config"
	"realtalk/internal/domain"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	provider     string
	model        string
	voice        string
	instructions string
	noAudio      bool
	logLevel     string
	help         bool
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("realtalk-cli", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.provider, "provider", "p", "", "realtime provider: primary or alternate (default from REALTALK_PROVIDER)")
	flagSet.StringVarP(&opts.model, "model", "m", "", "realtime model")
	flagSet.StringVar(&opts.voice, "voice", "", "assistant voice")
	flagSet.StringVar(&opts.instructions, "instructions", "", "system instructions for the session")
	flagSet.BoolVar(&opts.noAudio, "no-audio", false, "do not capture the microphone; text only")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if opts.help {
		fmt.Fprintf(stderr, "Usage: realtalk-cli [flags]\n\nType a line and press enter to send it. /quit exits.\n\n")
		flagSet.PrintDefaults()
		return opts, nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if opts.provider != "" {
		if _, err := domain.ParseProvider(opts.provider); err != nil {
			return options{}, err
		}
	}
	return opts, nil
}

// apply overlays flag values onto the loaded configuration.
func (o options) apply(cfg config.Config) config.Config {
	if o.provider != "" {
		provider, _ := domain.ParseProvider(o.provider)
		cfg.Provider = provider
	}
	if o.model != "" {
		cfg.Session.Model = o.model
	}
	if o.voice != "" {
		cfg.Session.Voice = o.voice
	}
	if o.instructions != "" {
		cfg.Session.Instructions = o.instructions
	}
	if o.noAudio {
		cfg.Audio.Disabled = true
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.help {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg = opts.apply(cfg)

	sink := newTerminalSink(stdout)
	services := bootstrap.Assemble(cfg, sink, stderr)
	controller := services.Controller
	defer controller.Stop()

	// Flags set explicitly on the command line win over stored settings.
	sessionCfg := cfg.SessionConfig(cfg.Provider)
	if opts.provider == "" && opts.model == "" && opts.voice == "" && opts.instructions == "" {
		if merged, err := services.SessionConfig(); err == nil {
			sessionCfg = merged
		} else {
			services.Logger.Warn("ignoring stored settings", "error", err)
		}
	}

	if err := controller.Start(ctx, sessionCfg); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(line) {
			case "/quit", "/exit":
				return nil
			case "":
				continue
			}
			if err := controller.SendUserText(line); err != nil {
				fmt.Fprintf(stderr, "send failed: %v\n", err)
				if controller.Snapshot().Status == domain.StatusDisconnected {
					return err
				}
			}
		}
	}
}
