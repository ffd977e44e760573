package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/driftbottle/cmd/driftbottle/internal"
	"github.com/tinyland-inc/driftbottle/pkg/bus"
	"github.com/tinyland-inc/driftbottle/pkg/commands"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

const channelName = "console"

type session struct {
	handler *commands.Handler
	user    string
	name    string
	out     io.Writer
}

func consoleCmd(user, name string, debug bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if user == "" {
		user = cfg.Channels.Console.UserID
	}
	if name == "" {
		name = cfg.Channels.Console.UserName
	}

	store, err := internal.OpenStore(cfg)
	if err != nil {
		return err
	}

	s := &session{handler: internal.NewHandler(cfg, store), user: user, name: name, out: os.Stdout}
	fmt.Printf("%s Console mode as %s (Ctrl+C to exit)\n", internal.Logo, name)
	fmt.Println(s.handler.Router().Usage())
	fmt.Println()
	s.interactiveMode()
	return nil
}

func (s *session) interactiveMode() {
	prompt := fmt.Sprintf("%s %s: ", internal.Logo, s.name)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".driftbottle_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		s.simpleInteractiveMode(os.Stdin)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !s.process(line) {
			return
		}
	}
}

func (s *session) simpleInteractiveMode(in io.Reader) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(s.out, "%s %s: ", internal.Logo, s.name)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(s.out, "Error reading input: %v\n", err)
			continue
		}
		if !s.process(line) {
			return
		}
	}
}

// process handles one input line and reports whether to keep reading.
// Lines that are not commands are answered with the usage text.
func (s *session) process(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}
	if input == "exit" || input == "quit" {
		fmt.Fprintln(s.out, "Goodbye!")
		return false
	}

	text, media := splitAttachments(input)
	out, ok := s.handler.Handle(context.Background(), bus.InboundMessage{
		Channel:  channelName,
		SenderID: s.user,
		ChatID:   s.user,
		Content:  text,
		Media:    media,
		Metadata: map[string]string{bus.MetaSenderName: s.name},
	})
	if !ok {
		fmt.Fprintf(s.out, "\n%s\n\n", s.handler.Router().Usage())
		return true
	}

	fmt.Fprintf(s.out, "\n%s %s\n", internal.Logo, out.Content)
	for _, m := range out.Media {
		fmt.Fprintf(s.out, "  [image] %s\n", describeMedia(m))
	}
	fmt.Fprintln(s.out)
	return true
}

// splitAttachments pulls "@image:<path-or-url>" tokens out of a line.
func splitAttachments(input string) (string, []string) {
	if !strings.Contains(input, "@image:") {
		return input, nil
	}
	var words, media []string
	for _, w := range strings.Fields(input) {
		if ref, ok := strings.CutPrefix(w, "@image:"); ok && ref != "" {
			media = append(media, ref)
			continue
		}
		words = append(words, w)
	}
	return strings.Join(words, " "), media
}

func describeMedia(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		mediaType, _, _ := strings.Cut(strings.TrimPrefix(ref, "data:"), ";")
		return fmt.Sprintf("inline %s, %d bytes encoded", mediaType, len(ref))
	}
	return ref
}
