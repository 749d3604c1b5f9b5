package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gennadis/virtualparent/internal/chat"
	"github.com/gennadis/virtualparent/internal/controller"
	"github.com/gennadis/virtualparent/internal/speech"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

var (
	longAnswers bool
	speakFlag   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Chat with the virtual parent. Type a message and press enter; the reply
streams in as it is written. Type /help for session commands.`,
	RunE: runChat,
}

const helpText = `Commands:
  /new               start a new conversation
  /sessions          list conversations
  /switch <n|id>     open a conversation
  /rename <name>     rename the current conversation
  /delete [n|id]     delete a conversation (default: current)
  /speak             toggle reading replies aloud
  /mic               dictate a message
  /help              show this help
  /quit              leave`

type repl struct {
	ctrl       *controller.Controller
	view       *renderer
	recognizer speech.Recognizer
	out        io.Writer
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	registry, closeStore, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}

	var speaker *speech.Speaker
	if cfg.SpeakCommand != "" {
		synth, err := speech.NewCommand(cfg.SpeakCommand)
		if err != nil {
			return err
		}
		speaker = speech.NewSpeaker(synth)
		defer speaker.Stop()
	}
	var recognizer speech.Recognizer
	if cfg.ListenCommand != "" {
		rec, err := speech.NewCommand(cfg.ListenCommand)
		if err != nil {
			return err
		}
		recognizer = rec
	}

	out := cmd.OutOrStdout()
	view := newRenderer(ctx, out, registry, speaker)
	view.speak.Store(speakFlag && speaker != nil)

	mode := chat.ModeShort
	if longAnswers {
		mode = chat.ModeLong
	}
	ctrl := controller.New(registry, newHistory(cfg), provider,
		controller.WithObserver(view),
		controller.WithMode(mode),
		controller.WithContextWindow(cfg.ContextWindow),
	)
	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	view.settle(ctx)

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()

	historyFile := cfg.HistoryFile()
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer saveHistory(line, historyFile)

	r := &repl{ctrl: ctrl, view: view, recognizer: recognizer, out: out}
	fmt.Fprintln(out, dimStyle.Render("Type /help for commands."))

	for {
		input, err := line.Prompt(userLabel)
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				slog.Error("Failed to read input", "error", err)
			}
			fmt.Fprintln(out)
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := r.command(ctx, input); quit {
				break
			}
			continue
		}
		r.send(ctx, input)
		if ctx.Err() != nil {
			break
		}
	}

	ctrl.Wait()
	return nil
}

func (r *repl) send(ctx context.Context, text string) {
	if r.ctrl.SendMessage(ctx, text) {
		r.view.settle(ctx)
	}
}

// command runs a slash command and reports whether the REPL should exit.
func (r *repl) command(ctx context.Context, input string) bool {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/new":
		_, err = r.ctrl.NewSession(ctx)
	case "/sessions":
		err = r.listSessions()
	case "/switch":
		err = r.switchSession(ctx, arg)
	case "/rename":
		err = r.ctrl.RenameSession(r.ctrl.View().SessionID, arg)
		if err == nil {
			fmt.Fprintln(r.out, dimStyle.Render("Renamed."))
		}
	case "/delete":
		err = r.deleteSession(ctx, arg)
	case "/speak":
		r.toggleSpeech()
	case "/mic":
		r.dictate(ctx)
	default:
		err = fmt.Errorf("unknown command %s, try /help", name)
	}

	if err != nil {
		fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
	}
	r.view.settle(ctx)
	return false
}

func (r *repl) listSessions() error {
	sessions, err := r.ctrl.Sessions()
	if err != nil {
		return err
	}
	printSessions(r.out, sessions, r.ctrl.View().SessionID)
	return nil
}

func (r *repl) switchSession(ctx context.Context, ref string) error {
	if ref == "" {
		return errors.New("usage: /switch <n|id>")
	}
	sessions, err := r.ctrl.Sessions()
	if err != nil {
		return err
	}
	target, err := resolveSession(sessions, ref)
	if err != nil {
		return err
	}
	if target.ID == r.ctrl.View().SessionID {
		fmt.Fprintln(r.out, dimStyle.Render("Already in "+target.DisplayName()+"."))
		return nil
	}
	return r.ctrl.SwitchSession(ctx, target.ID)
}

func (r *repl) deleteSession(ctx context.Context, ref string) error {
	id := r.ctrl.View().SessionID
	if ref != "" {
		sessions, err := r.ctrl.Sessions()
		if err != nil {
			return err
		}
		target, err := resolveSession(sessions, ref)
		if err != nil {
			return err
		}
		id = target.ID
	}
	if err := r.ctrl.DeleteSession(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(r.out, dimStyle.Render("Deleted."))
	return nil
}

func (r *repl) toggleSpeech() {
	if r.view.speaker == nil {
		fmt.Fprintln(r.out, errorStyle.Render("Speech output is not configured, set speak_command."))
		return
	}
	on := !r.view.speak.Load()
	r.view.speak.Store(on)
	if !on {
		r.view.speaker.Stop()
	}
	fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("Reading replies aloud: %t.", on)))
}

// dictate records one utterance and sends it. Recognition errors are shown
// once and are not added to the transcript.
func (r *repl) dictate(ctx context.Context) {
	if r.recognizer == nil {
		fmt.Fprintln(r.out, errorStyle.Render("Voice input is not configured, set listen_command."))
		return
	}

	fmt.Fprintln(r.out, dimStyle.Render("Listening..."))
	text, err := speech.Dictate(ctx, r.recognizer, func(interim string) {
		fmt.Fprint(r.out, "\r\033[K"+dimStyle.Render(interim))
	})
	fmt.Fprint(r.out, "\r\033[K")
	if err != nil {
		slog.Debug("dictation failed", "error", err)
		fmt.Fprintln(r.out, errorStyle.Render(err.Error()))
		return
	}
	if text == "" {
		return
	}

	fmt.Fprintln(r.out, userStyle.Render(userLabel)+text)
	r.send(ctx, text)
}

func saveHistory(line *liner.State, path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		slog.Debug("failed to save input history", "error", err)
		return
	}
	defer f.Close()

	if _, err := line.WriteHistory(f); err != nil {
		slog.Debug("failed to save input history", "error", err)
	}
}

func init() {
	chatCmd.Flags().BoolVar(&longAnswers, "long", false, "Allow longer replies")
	chatCmd.Flags().BoolVar(&speakFlag, "speak", false, "Read replies aloud (needs speak_command)")
	rootCmd.AddCommand(chatCmd)
}
