package repl

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"
)

const prompt = "> "

type REPL struct {
	Commands map[string]func(string, *REPLConfig) error
	Help     map[string]string
}

type REPLConfig struct {
	Writer io.Writer
}

func NewRepl() *REPL {
	r := &REPL{make(map[string]func(string, *REPLConfig) error), make(map[string]string)}
	return r
}

// Add a command, along with its help string, to the set of commands
func (r *REPL) AddCommand(trigger string, handler func(string, *REPLConfig) error, help string) {
	if trigger == "" || trigger[0] == '.' {
		return
	}
	r.Help[trigger] = help
	r.Commands[trigger] = handler
}

// Return all REPL usage information as a string
func (r *REPL) HelpString() string {
	triggers := make([]string, 0, len(r.Help))
	for k := range r.Help {
		triggers = append(triggers, k)
	}
	sort.Strings(triggers)

	var sb strings.Builder
	sb.WriteString("Commands\n")
	for _, k := range triggers {
		sb.WriteString(fmt.Sprintf("\t%s: %s\n", k, r.Help[k]))
	}
	return sb.String()
}

// Run reads commands from the terminal with line editing and history
// until EOF or an interrupt.
func (r *REPL) Run() error {
	completions := make([]readline.PrefixCompleterInterface, 0, len(r.Commands))
	for trigger := range r.Commands {
		completions = append(completions, readline.PcItem(trigger))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		AutoComplete:    readline.NewPrefixCompleter(completions...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	replConfig := &REPLConfig{Writer: rl.Stdout()}
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		r.handle(line, replConfig)
	}
}

// RunWith drives the REPL from any reader, e.g. a script or a test.
func (r *REPL) RunWith(reader io.Reader, writer io.Writer) error {
	scanner := bufio.NewScanner(reader)
	replConfig := &REPLConfig{Writer: writer}

	io.WriteString(writer, prompt)
	for scanner.Scan() {
		r.handle(scanner.Text(), replConfig)
		io.WriteString(writer, prompt)
	}
	return scanner.Err()
}

func (r *REPL) handle(line string, replConfig *REPLConfig) {
	input := strings.TrimSpace(line)
	if input == "" {
		return
	}
	command := strings.Split(input, " ")[0]
	handler, ok := r.Commands[command]

	if !ok {
		io.WriteString(replConfig.Writer, fmt.Sprintf("Invalid command: %s\n", command))
		io.WriteString(replConfig.Writer, r.HelpString())
		return
	}
	if err := handler(input, replConfig); err != nil {
		io.WriteString(replConfig.Writer, fmt.Sprintf("Error: %v\n", err))
	}
}
