package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"rvm/pkg/compiler"
	"rvm/pkg/utils"
)

const (
	banner      = "Reduced C console. Enter function definitions or expressions, :help for commands."
	promptMain  = "rc> "
	promptCont  = "... "
	historyFile = ".rvm_history"
)

const helpText = `:asm     toggle printing the generated assembly
:defs    list the current definitions
:reset   forget all definitions
:quit    leave the console`

// prompter is the part of liner.State the console uses.
type prompter interface {
	Prompt(prompt string) (string, error)
}

// scanPrompter reads plain lines when stdin is not a terminal.
type scanPrompter struct {
	sc *bufio.Scanner
}

func (p *scanPrompter) Prompt(string) (string, error) {
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.sc.Text(), nil
}

// Console drives a Session from a line source.
type Console struct {
	Session *Session
	Out     io.Writer
	Err     io.Writer
	Color   bool

	showAsm bool
}

// Run starts an interactive console on the process's standard streams.
func Run() int {
	return RunSession(NewSession())
}

// RunSession is Run with a pre-populated session.
func RunSession(s *Session) int {
	c := &Console{
		Session: s,
		Out:     os.Stdout,
		Err:     os.Stderr,
		Color:   utils.IsTerminal(os.Stderr),
	}

	if !utils.IsTerminal(os.Stdin) {
		return c.Loop(&scanPrompter{sc: bufio.NewScanner(os.Stdin)}, nil)
	}

	fmt.Fprintln(c.Out, banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer func() {
		signal.Stop(sigc)
		close(done)
	}()
	go watchSignals(sigc, done, func() {
		ln.Close()
		os.Exit(130)
	})

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	return c.Loop(ln, ln.AppendHistory)
}

// watchSignals calls onSignal for the first signal on sigc. It returns
// without calling it once done is closed.
func watchSignals(sigc <-chan os.Signal, done <-chan struct{}, onSignal func()) {
	select {
	case <-sigc:
		onSignal()
	case <-done:
	}
}

// Loop reads and evaluates input until EOF or :quit. history, if non-nil,
// receives every input that evaluated successfully.
func (c *Console) Loop(p prompter, history func(string)) int {
	for {
		code, ok := readByParseProbe(p, promptMain, promptCont)
		if !ok {
			return 0
		}
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}

		if strings.HasPrefix(code, ":") {
			if c.command(code) {
				return 0
			}
			continue
		}

		reply, err := c.Session.Eval(code)
		if err != nil {
			c.errorf("%v", err)
			continue
		}
		c.print(reply)
		if history != nil {
			history(strings.ReplaceAll(code, "\n", " "))
		}
	}
}

// command runs a console command and reports whether the loop should stop.
func (c *Console) command(cmd string) bool {
	switch strings.ToLower(cmd) {
	case ":quit", ":q":
		return true
	case ":asm":
		c.showAsm = !c.showAsm
		state := "off"
		if c.showAsm {
			state = "on"
		}
		fmt.Fprintf(c.Out, "assembly listing %s\n", state)
	case ":defs":
		defs := c.Session.Definitions()
		if len(defs) == 0 {
			fmt.Fprintln(c.Out, "no definitions")
		}
		for _, d := range defs {
			fmt.Fprint(c.Out, d)
		}
	case ":reset":
		c.Session.Reset()
		fmt.Fprintln(c.Out, "definitions cleared")
	case ":help":
		fmt.Fprintln(c.Out, helpText)
	default:
		c.errorf("unknown command %s, type :help", cmd)
	}
	return false
}

func (c *Console) print(r *Reply) {
	if len(r.Defined) > 0 {
		msg := "defined " + strings.Join(r.Defined, ", ")
		if c.Color {
			msg = utils.Green(msg)
		}
		fmt.Fprintln(c.Out, msg)
		return
	}
	if !r.HasValue {
		return
	}
	if c.showAsm {
		fmt.Fprint(c.Out, r.Assembly)
	}
	fmt.Fprintln(c.Out, r.Value)
}

func (c *Console) errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if c.Color {
		msg = utils.Red(msg)
	}
	fmt.Fprintln(c.Err, msg)
}

// readByParseProbe collects lines until the parser stops asking for more.
// Only definitions span lines; an expression is always one line.
func readByParseProbe(p prompter, prompt, cont string) (string, bool) {
	var b strings.Builder

	for {
		var line string
		var err error
		if b.Len() == 0 {
			line, err = p.Prompt(prompt)
		} else {
			line, err = p.Prompt(cont)
		}
		if errors.Is(err, io.EOF) {
			if b.Len() > 0 {
				return b.String(), true
			}
			return "", false
		}
		if err != nil {
			// Ctrl-C drops the pending input.
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if !isDefinition(src) {
			return src, true
		}
		if _, perr := compiler.ParseSource(src); compiler.IsIncomplete(perr) {
			continue
		}
		return src, true
	}
}
