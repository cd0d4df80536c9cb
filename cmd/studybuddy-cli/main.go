package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/render"
	"studybuddy-backend/internal/service"
	"studybuddy-backend/internal/session"
	"studybuddy-backend/internal/subject"
	"studybuddy-backend/internal/transcript"
	"studybuddy-backend/pkg/logger"

	"github.com/peterh/liner"
)

func main() {
	var (
		configPath string
		provider   string
		pretty     bool
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to the config file")
	flag.StringVar(&provider, "provider", "", "override model.provider (openai, doubao, qwen, mock)")
	flag.BoolVar(&pretty, "pretty", false, "render answers as markdown once they complete")
	flag.BoolVar(&verbose, "v", false, "log to stderr")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if provider != "" {
		cfg.Model.Provider = provider
	}
	if verbose {
		if err := logger.InitWithOutput(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
			log.Fatalf("Failed to init logger: %v", err)
		}
	}

	opts, err := service.OptionsFromConfig(cfg.Tutor)
	if err != nil {
		log.Fatalf("Invalid tutor config: %v", err)
	}

	factory := session.NewFactory(context.Background(), cfg)
	if err := factory.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	r := &repl{
		tutor: service.NewTutorService(factory, opts),
		out:   os.Stdout,
	}
	if pretty {
		md, err := render.NewTerminalRenderer(80)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v, printing plain text\n", err)
		} else {
			r.md = md
		}
	}

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	defer line.Close()

	r.printHistory()
	for {
		input, err := line.Prompt(r.prompt())
		if err != nil {
			// Ctrl+C, Ctrl+D or a closed terminal
			fmt.Fprintln(r.out)
			return
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		more, err := r.handle(context.Background(), input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		if !more {
			return
		}
	}
}

// repl is the terminal front end over one tutor service.
type repl struct {
	tutor *service.TutorService
	out   io.Writer
	// md renders finished answers; nil streams raw text
	md render.Renderer
	// buffer is the transcript subscription size, 0 for the default
	buffer int
}

func (r *repl) prompt() string {
	return fmt.Sprintf("[%s] %s > ", r.tutor.Subject(), r.tutor.Placeholder())
}

// handle runs one input line and reports whether the loop should go on.
func (r *repl) handle(ctx context.Context, input string) (bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return true, nil
	}
	if !strings.HasPrefix(input, "/") {
		return true, r.ask(ctx, input)
	}

	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit":
		return false, nil
	case "/subjects":
		r.printSubjects()
	case "/history":
		r.printHistory()
	case "/subject":
		if len(fields) < 2 {
			return true, errors.New("usage: /subject <name>")
		}
		return true, r.switchSubject(fields[1])
	case "/help":
		fmt.Fprintln(r.out, "/subject <name>  switch subject\n/subjects        list subjects\n/history         print the conversation\n/quit            leave")
	default:
		return true, fmt.Errorf("unknown command %s, try /help", fields[0])
	}
	return true, nil
}

func (r *repl) switchSubject(name string) error {
	id, ok := subject.Parse(name)
	if !ok {
		return fmt.Errorf("unknown subject %q", name)
	}
	switched, err := r.tutor.SwitchSubject(id)
	if err != nil {
		return err
	}
	if !switched {
		fmt.Fprintf(r.out, "Already studying %s.\n", id)
		return nil
	}
	msgs := r.tutor.Snapshot()
	r.printText(msgs[len(msgs)-1].Text)
	return nil
}

func (r *repl) ask(ctx context.Context, question string) error {
	events, cancel := r.tutor.Subscribe(r.buffer)
	defer cancel()

	ex, err := r.tutor.Submit(ctx, question)
	if err != nil {
		return err
	}

	if r.md != nil {
		if err := ex.Wait(ctx); err != nil {
			return err
		}
		msg, _ := r.tutor.Message(ex.ModelMessageID)
		r.printText(msg.Text)
		return nil
	}

	var printed strings.Builder
	echo := func(ev transcript.Event) {
		if ev.Type == transcript.EventUpdated && ev.Message.ID == ex.ModelMessageID {
			fmt.Fprint(r.out, ev.Fragment)
			printed.WriteString(ev.Fragment)
		}
	}
wait:
	for {
		select {
		case ev := <-events:
			echo(ev)
		case <-ex.Done():
			break wait
		}
	}
	for len(events) > 0 {
		echo(<-events)
	}

	// fragments can be dropped by a slow terminal; the transcript has the rest
	msg, _ := r.tutor.Message(ex.ModelMessageID)
	if !ex.Failed() {
		if rest, ok := strings.CutPrefix(msg.Text, printed.String()); ok {
			fmt.Fprintln(r.out, rest)
			return nil
		}
	}
	fmt.Fprintln(r.out)
	r.printText(msg.Text)
	return nil
}

func (r *repl) printText(text string) {
	fmt.Fprintln(r.out, render.RenderOrPlain(r.md, text))
}

func (r *repl) printSubjects() {
	current := r.tutor.Subject()
	for _, cfg := range subject.All() {
		marker := " "
		if cfg.ID == current {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %s %s\n", marker, cfg.Icon, cfg.Name)
	}
}

func (r *repl) printHistory() {
	for _, m := range r.tutor.Snapshot() {
		fmt.Fprintf(r.out, "%s: ", m.Role)
		r.printText(m.Text)
	}
}
