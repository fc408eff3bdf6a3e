package command

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/joeycumines/js-debug-bridge/internal/config"
	"github.com/joeycumines/js-debug-bridge/internal/inspector"
	"github.com/joeycumines/js-debug-bridge/internal/scripting"
)

// DebugCommand runs a script file under the debugger, speaking the protocol
// as JSON lines: commands are read from stdin, and responses and
// notifications are written to stdout.
type DebugCommand struct {
	*BaseCommand
	config *config.Config

	logFile       string
	logLevel      string
	logBufferSize int
	exceptions    string
	pretty        string
	name          string
	syncTimeout   string
	dumpLog       bool
}

// NewDebugCommand creates a new debug command.
func NewDebugCommand(cfg *config.Config) *DebugCommand {
	return &DebugCommand{
		BaseCommand: NewBaseCommand(
			"debug",
			"Run a script under the debugger, speaking the protocol on stdio",
			"debug [options] <script.js>",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the debug command.
func (c *DebugCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.logFile, "log-file", "", "Path to the JSON log file (overrides config log.file)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.IntVar(&c.logBufferSize, "log-buffer-size", 0, "Number of recent log records kept in memory")
	fs.StringVar(&c.exceptions, "pause-on-exceptions", "", "Initial exception pause mode: none, uncaught, all")
	fs.StringVar(&c.pretty, "pretty", "", "Indent protocol output: auto, always, never")
	fs.StringVar(&c.name, "name", "", "Resource name reported for the script (defaults to its path)")
	fs.StringVar(&c.syncTimeout, "sync-timeout", "", "Timeout for synchronous runtime jobs, e.g. 5s")
	fs.BoolVar(&c.dumpLog, "dump-log", false, "Write the retained log records to stderr on exit")
}

// Execute runs the script named by args[0].
func (c *DebugCommand) Execute(ctx context.Context, args []string, stdio IO) error {
	if len(args) != 1 {
		_, _ = fmt.Fprintf(stdio.Err, "Usage: jsdbg %s\n", c.Usage())
		return errInvalidArgs
	}
	path := args[0]

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}

	cfg := cmp.Or(c.config, config.NewConfig())
	schema := config.DefaultSchema()
	resolve := func(flagValue, key string) string {
		return cmp.Or(flagValue, schema.ResolveCommand(cfg, c.Name(), key))
	}

	exceptions, err := inspector.ParsePauseOnExceptions(resolve(c.exceptions, config.KeyPauseOnExceptions))
	if err != nil {
		return err
	}
	syncTimeout, err := time.ParseDuration(resolve(c.syncTimeout, config.KeySyncTimeout))
	if err != nil {
		return fmt.Errorf("invalid sync timeout: %w", err)
	}
	pretty, err := prettyOutput(resolve(c.pretty, config.KeyPretty), stdio.Out)
	if err != nil {
		return err
	}

	lc, err := resolveLogConfig(c.logFile, c.logLevel, c.logBufferSize, cfg)
	if err != nil {
		return err
	}
	if lc.logFile != nil {
		defer lc.logFile.Close()
	}
	logger, ring := lc.newLogger()
	if c.dumpLog {
		defer dumpLog(stdio.Err, ring)
	}

	rt, err := scripting.NewRuntime(context.Background())
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.SetTimeout(syncTimeout)

	dc := inspector.NewDebugContext(rt,
		inspector.WithLogger(logger),
		inspector.WithPauseOnExceptions(exceptions),
	)

	b := &bridge{
		dc:      dc,
		out:     &messageWriter{w: stdio.Out, pretty: pretty},
		log:     logger,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	defer b.close()

	stop := context.AfterFunc(ctx, func() {
		if err := dc.TerminateExecution(); err != nil {
			logger.Debug("terminate after cancellation", "error", err)
		}
	})
	defer stop()

	go b.readCommands(stdio.In)

	result, err := dc.DebugNamed(string(source), cmp.Or(resolve(c.name, config.KeyResourceName), path), b.notify)
	b.close()
	if err != nil {
		var serr *inspector.SyntaxError
		if errors.As(err, &serr) {
			return fmt.Errorf("%s:%d:%d: %w", path, serr.Line+1, serr.Column+1, err)
		}
		return err
	}
	if result != nil {
		if data, err := json.Marshal(result); err == nil {
			_, _ = fmt.Fprintf(stdio.Err, "result: %s\n", data)
		} else {
			_, _ = fmt.Fprintf(stdio.Err, "result: %v\n", result)
		}
	}
	return nil
}

// prettyOutput decides whether protocol output is indented.
func prettyOutput(mode string, out io.Writer) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto", "":
		f, ok := out.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	default:
		return false, fmt.Errorf("invalid pretty mode: %s", mode)
	}
}

func dumpLog(w io.Writer, ring *scripting.RingHandler) {
	enc := json.NewEncoder(w)
	for _, e := range ring.Entries() {
		_ = enc.Encode(e)
	}
}

// messageWriter writes one protocol message per line. Notifications arrive
// on the loop goroutine and responses on the reader goroutine.
type messageWriter struct {
	mu     sync.Mutex
	w      io.Writer
	pretty bool
}

func (m *messageWriter) write(message string) {
	var buf bytes.Buffer
	if !m.pretty || json.Indent(&buf, []byte(message), "", "  ") != nil {
		buf.Reset()
		buf.WriteString(message)
	}
	buf.WriteByte('\n')

	m.mu.Lock()
	defer m.mu.Unlock()
	_, _ = m.w.Write(buf.Bytes())
}

// bridge connects stdio to one debug session.
type bridge struct {
	dc   *inspector.DebugContext
	out  *messageWriter
	log  *slog.Logger
	once sync.Once
	// started is closed at the first pause, once commands are accepted.
	started chan struct{}
	done    chan struct{}

	// mu is held across each command, so nothing is written after close.
	mu     sync.Mutex
	closed bool
}

func (b *bridge) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
}

func (b *bridge) notify(message string) {
	b.out.write(message)
	var ev struct {
		Method string `json:"method"`
	}
	if json.Unmarshal([]byte(message), &ev) == nil && ev.Method == inspector.EventPaused {
		b.once.Do(func() { close(b.started) })
	}
}

// readCommands forwards stdin lines as protocol messages. At end of input
// the debugger is disabled, so the script runs to completion.
func (b *bridge) readCommands(in io.Reader) {
	select {
	case <-b.started:
	case <-b.done:
		return
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !b.send(line) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		b.log.Debug("reading commands", "error", err)
	}

	b.send(fmt.Sprintf(`{"id":%d,"method":"Debugger.disable"}`, b.dc.GetNextMessageID()))
}

// send reports false once the session is gone.
func (b *bridge) send(message string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	response, err := b.dc.SendProtocolMessage(message)
	if response != "" {
		b.out.write(response)
	}
	if errors.Is(err, inspector.ErrInvalidState) {
		b.log.Debug("command rejected", "error", err)
	}
	return true
}
