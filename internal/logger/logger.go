// Package logger is the fire-and-forget text logger actor. Grounded on
// original_source/src/log.rs's actor shape, backed by
// github.com/btcsuite/btclog for leveled, named subsystem loggers and
// github.com/jrick/logrotate's size-based rotator for the log file —
// the same pairing most btcsuite-family daemons use for their own log.go.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// maxRotatorSize is the rotate-by-size threshold in KiB (rotator.New
// takes kilobytes), i.e. 10 MiB.
const maxRotatorSize = 10 * 1024

// queueSize bounds the actor's inbox; once full, enqueue drops the
// message rather than blocking core work.
const queueSize = 1024

type entry struct {
	log   btclog.Logger
	level btclog.Level
	msg   string
}

// Sink owns the rotator and the named subsystem loggers, and drains its
// queue on a single background goroutine.
type Sink struct {
	backend *btclog.Backend
	rotator *rotator.Rotator
	queue   chan entry
	done    chan struct{}
}

// New opens logFile (creating its parent directory if needed) under a
// size-rotated writer that also tees to stdout, and starts the actor
// goroutine.
func New(logFile string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(logFile), 0o700); err != nil {
		return nil, fmt.Errorf("logger: create log directory for %s - %w", logFile, err)
	}
	rot, err := rotator.New(logFile, maxRotatorSize, false, 3)
	if err != nil {
		return nil, fmt.Errorf("logger: open rotator %s - %w", logFile, err)
	}

	backend := btclog.NewBackend(io.MultiWriter(os.Stdout, rot))
	s := &Sink{
		backend: backend,
		rotator: rot,
		queue:   make(chan entry, queueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *Sink) run() {
	for {
		select {
		case e := <-s.queue:
			switch e.level {
			case btclog.LevelTrace:
				e.log.Trace(e.msg)
			case btclog.LevelDebug:
				e.log.Debug(e.msg)
			case btclog.LevelInfo:
				e.log.Info(e.msg)
			case btclog.LevelWarn:
				e.log.Warn(e.msg)
			case btclog.LevelError:
				e.log.Error(e.msg)
			case btclog.LevelCritical:
				e.log.Critical(e.msg)
			}
		case <-s.done:
			return
		}
	}
}

// Component returns the named subsystem logger, defaulting to LevelInfo.
func (s *Sink) Component(name string) *Component {
	log := s.backend.Logger(name)
	log.SetLevel(btclog.LevelInfo)
	return &Component{sink: s, log: log}
}

// SetLevel adjusts a previously created Component's verbosity.
func (c *Component) SetLevel(level btclog.Level) {
	c.log.SetLevel(level)
}

// Shutdown stops the actor goroutine and closes the rotator.
func (s *Sink) Shutdown() {
	close(s.done)
	s.rotator.Close()
}

// Component is one named subsystem's fire-and-forget log handle.
type Component struct {
	sink *Sink
	log  btclog.Logger
}

func (c *Component) enqueue(level btclog.Level, msg string) {
	select {
	case c.sink.queue <- entry{log: c.log, level: level, msg: msg}:
	default:
		fmt.Fprintf(os.Stderr, "logger: queue full, dropped %s: %s\n", level, msg)
	}
}

// Info logs a fire-and-forget informational message.
func (c *Component) Info(msg string) { c.enqueue(btclog.LevelInfo, msg) }

// Infof formats then logs at info level.
func (c *Component) Infof(format string, args ...any) { c.Info(fmt.Sprintf(format, args...)) }

// Error logs a fire-and-forget error message.
func (c *Component) Error(msg string) { c.enqueue(btclog.LevelError, msg) }

// Errorf formats then logs at error level.
func (c *Component) Errorf(format string, args ...any) { c.Error(fmt.Sprintf(format, args...)) }

// Warn logs at warning level.
func (c *Component) Warn(msg string) { c.enqueue(btclog.LevelWarn, msg) }

// Debug logs at debug level.
func (c *Component) Debug(msg string) { c.enqueue(btclog.LevelDebug, msg) }
