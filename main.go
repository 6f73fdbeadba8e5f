package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bassamadnan/tdraft/config"
	"github.com/bassamadnan/tdraft/credential"
	"github.com/bassamadnan/tdraft/gmail"
	"github.com/bassamadnan/tdraft/imapmail"
	"github.com/bassamadnan/tdraft/mailbox"
	"github.com/bassamadnan/tdraft/poller"
	"github.com/bassamadnan/tdraft/reply"
	"github.com/bassamadnan/tdraft/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "tdraft.yaml"

func main() {
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "Loaded .env file")
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		once       bool
		useTUI     bool
	)

	cmd := &cobra.Command{
		Use:          "tdraft",
		Short:        "Draft replies to unread mail on a fixed interval",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			if once {
				useTUI = false
			}
			closeLog, err := setupLogger(settings, useTUI)
			if err != nil {
				return err
			}
			defer closeLog()
			return run(settings, once, useTUI)
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the YAML settings file")

	f := cmd.Flags()
	f.Int("interval", int(poller.DefaultInterval/time.Second), "seconds between poll cycles")
	f.Int("max-batch", poller.DefaultMaxBatch, "maximum unread messages handled per cycle")
	f.String("transport", config.TransportGmail, "mail transport: gmail or imap")
	f.Bool("isolate", false, "keep going with the batch when one message fails to draft")
	f.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	f.String("log-file", "tdraft.log", "log file used while the dashboard is shown")
	f.String("filters", "filters.json", "path to the skip filters file")
	f.Bool("circuit-breaker", false, "stop calling the reply backend for a while after repeated failures")
	f.BoolVar(&once, "once", false, "run a single cycle and exit")
	f.BoolVar(&useTUI, "tui", false, "show the live dashboard")

	cmd.AddCommand(newAuthCmd(&configPath), newSecretCmd(), newFilterCmd(&configPath))
	return cmd
}

// setupLogger points the global logger at a file when the dashboard owns the
// terminal, and at a console writer on stderr otherwise.
func setupLogger(settings *config.Settings, toFile bool) (func(), error) {
	level, err := zerolog.ParseLevel(settings.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	closeFn := func() {}
	if toFile {
		logFile, err := os.OpenFile(settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		out = logFile
		closeFn = func() { logFile.Close() }
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closeFn, nil
}

func run(settings *config.Settings, once, useTUI bool) error {
	log.Info().Str("transport", settings.Transport).Msg("Application starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received, cancelling context...")
		cancel()
	}()

	filters, err := config.NewManager(settings.FiltersPath)
	if err != nil {
		return fmt.Errorf("initializing filters: %w", err)
	}

	client, err := newMailClient(ctx, settings)
	if err != nil {
		return err
	}
	if closer, ok := client.(io.Closer); ok {
		defer closer.Close()
	}

	generator := newGenerator(settings)

	opts := []poller.Option{
		poller.WithLogger(log.Logger),
		poller.WithFilter(filters.ShouldSkip),
	}
	var events chan poller.Event
	if useTUI {
		events = make(chan poller.Event, 16)
		opts = append(opts, poller.WithEvents(events))
	}

	loop, err := poller.New(client, generator, poller.Config{
		Interval:        settings.PollInterval(),
		MaxBatch:        settings.MaxBatch,
		UserID:          settings.UserID,
		IsolateMessages: settings.IsolateMessages,
	}, opts...)
	if err != nil {
		return err
	}

	if once {
		if err := loop.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Cycle failed")
			return err
		}
		return nil
	}

	if !useTUI {
		return exitStatus(loop.Run(ctx))
	}

	program := tea.NewProgram(tui.NewInitialModel(filters, events, settings.PollInterval()), tea.WithAltScreen())

	// Send returns once the program has exited, so this never blocks shutdown.
	loopErr := make(chan error, 1)
	go func() {
		err := loop.Run(ctx)
		loopErr <- err
		program.Send(tui.LoopStoppedMsg{Err: err})
		close(events)
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		<-loopErr
		return fmt.Errorf("running dashboard: %w", err)
	}
	log.Info().Msg("Dashboard closed, stopping poll loop")
	cancel()
	return exitStatus(<-loopErr)
}

// exitStatus treats cancellation as a clean shutdown.
func exitStatus(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		log.Info().Msg("Poll loop stopped. Exiting.")
		return nil
	}
	log.Error().Err(err).Msg("Poll loop failed")
	return err
}

func newMailClient(ctx context.Context, settings *config.Settings) (mailbox.Client, error) {
	switch settings.Transport {
	case config.TransportIMAP:
		password, err := credential.Lookup(credential.IMAPPassword)
		if err != nil {
			return nil, fmt.Errorf("IMAP password: %w (set %s or run `tdraft secret set %s`)",
				err, credential.IMAPPasswordEnv, credential.IMAPPassword)
		}
		return imapmail.NewClient(imapmail.Config{
			Host:          settings.IMAP.Host,
			Port:          settings.IMAP.Port,
			Username:      settings.IMAP.Username,
			Password:      password,
			TLS:           settings.IMAP.TLS,
			DraftsMailbox: settings.IMAP.DraftsMailbox,
		}, log.Logger), nil
	default:
		client, err := gmail.NewClient(ctx, settings.Gmail.CredentialsFile, settings.Gmail.TokenFile, log.Logger)
		if err != nil {
			return nil, fmt.Errorf("initializing Gmail client: %w (ensure %s is present and valid)", err, settings.Gmail.CredentialsFile)
		}
		return client, nil
	}
}

// newGenerator falls back to the fixed reply for every message when no API
// key is available.
func newGenerator(settings *config.Settings) *reply.Generator {
	opts := []reply.Option{
		reply.WithMaxTokens(settings.AI.MaxTokens),
		reply.WithLogger(log.Logger),
	}
	if settings.AI.CircuitBreaker {
		opts = append(opts, reply.WithCircuitBreaker())
	}

	key, err := credential.Lookup(credential.OpenAIKey)
	if err != nil {
		log.Warn().Err(err).Msg("No OpenAI API key, every draft will use the fallback reply")
		return reply.NewGenerator(nil, opts...)
	}

	var reqOpts []option.RequestOption
	if settings.AI.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(settings.AI.BaseURL))
	}
	backend, err := reply.NewOpenAIBackend(key, settings.AI.Model, reqOpts...)
	if err != nil {
		log.Warn().Err(err).Msg("OpenAI backend unavailable, every draft will use the fallback reply")
		return reply.NewGenerator(nil, opts...)
	}
	log.Info().Str("model", settings.AI.Model).Msg("Reply generation enabled")
	return reply.NewGenerator(backend, opts...)
}
