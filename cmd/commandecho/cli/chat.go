package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/commandecho/internal/assistant"
	"github.com/felixgeelhaar/commandecho/internal/config"
	"github.com/felixgeelhaar/commandecho/internal/observe"
	"github.com/felixgeelhaar/commandecho/internal/prompt"
	"github.com/felixgeelhaar/commandecho/internal/speech"
	"github.com/felixgeelhaar/commandecho/internal/ui"
	"github.com/felixgeelhaar/commandecho/internal/ui/tui"
)

var interactive bool

// printSpeaker writes replies as soon as they are produced so they never
// interleave with the input cue.
type printSpeaker struct {
	synth speech.Synthesizer
}

func (p printSpeaker) Speak(text string, _ bool) {
	if text = speech.CleanForSpeech(text); text != "" {
		_ = p.synth.Say(context.Background(), text)
	}
}

func voiceOptions(c *config.Config) speech.VoiceOptions {
	return speech.VoiceOptions{
		Rate:    c.Voice.SpeechRate,
		Volume:  c.Voice.SpeechVolume,
		VoiceID: c.Voice.VoiceID,
		Name:    prompt.DefaultAssistantName,
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant by typing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		obs := newObserver(cmd)
		defer obs.Close()

		if interactive {
			return runTUI(ctx)
		}

		speaker := printSpeaker{synth: speech.NewConsoleSynthesizer(cmd.OutOrStdout(), prompt.DefaultAssistantName)}
		app, err := NewApp(ctx, cfg, obs, speaker)
		if err != nil {
			return err
		}
		defer app.Close()
		app.PurgeExpired(ctx)

		listener := speech.NewLineListener(cmd.InOrStdin(), cmd.OutOrStdout(), "You: ")
		err = app.Assistant.Run(ctx, listener)
		app.LogSummary()
		return err
	},
}

func runTUI(ctx context.Context) error {
	// Logs would corrupt the screen.
	app, err := NewApp(ctx, cfg, observe.Discard(), nil)
	if err != nil {
		return err
	}
	defer app.Close()
	app.PurgeExpired(ctx)

	greeting := app.Assistant.Greeting(ctx)
	model := tui.NewModel(ctx, prompt.DefaultAssistantName, greeting, app.Assistant, assistant.IsExit)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	ui.Attach(app.Assistant.Bus(), tui.NewTUI(p))

	_, err = p.Run()
	return err
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the voice loop",
	Long: `Listen runs the wake-word voice loop. Utterances come from
voice.recognizer_command when it is set and from standard input otherwise.
Replies are spoken with the configured synthesizer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd)
		defer cancel()

		obs := newObserver(cmd)
		defer obs.Close()

		synth, err := speech.NewSynthesizer(cfg.Voice.Synthesizer, voiceOptions(cfg), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		speaker := speech.NewSpeaker(synth, obs)
		defer speaker.Close()

		app, err := NewApp(ctx, cfg, obs, speaker)
		if err != nil {
			return err
		}
		defer app.Close()
		app.PurgeExpired(ctx)

		var inner speech.Listener
		if cfg.Voice.RecognizerCommand != "" {
			el, err := speech.NewExecListener(cfg.Voice.RecognizerCommand, nil)
			if err != nil {
				return err
			}
			inner = el
		} else {
			inner = speech.NewLineListener(cmd.InOrStdin(), nil, "")
		}
		gate := speech.NewWakeGate(cfg.Voice.WakeWord, cfg.Voice.AlwaysListening)

		obs.Log().Info().
			Str("wake_word", cfg.Voice.WakeWord).
			Str("session", app.Store.Session()).
			Msg("listening")

		err = app.Assistant.Run(ctx, speech.NewGatedListener(inner, gate))
		speaker.Flush()
		app.LogSummary()
		return err
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [text]",
	Short: "Handle a single request and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		obs := newObserver(cmd)
		defer obs.Close()

		app, err := NewApp(cmd.Context(), cfg, obs, nil)
		if err != nil {
			return err
		}
		defer app.Close()

		reply := app.Assistant.Process(cmd.Context(), strings.Join(args, " "))
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}

var sayCmd = &cobra.Command{
	Use:   "say [text]",
	Short: "Speak text with the configured synthesizer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		obs := newObserver(cmd)
		defer obs.Close()

		synth, err := speech.NewSynthesizer(cfg.Voice.Synthesizer, voiceOptions(cfg), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		speaker := speech.NewSpeaker(synth, obs)
		speaker.Speak(strings.Join(args, " "), true)
		speaker.Flush()
		speaker.Close()
		return nil
	},
}

func init() {
	chatCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Full-screen chat")

	RootCmd.AddCommand(chatCmd)
	RootCmd.AddCommand(listenCmd)
	RootCmd.AddCommand(askCmd)
	RootCmd.AddCommand(sayCmd)
}
