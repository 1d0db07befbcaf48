package telemetry

import (
	"fmt"
	"io"
	"time"
)

const (
	// escSettle is how long the TUI gets to process the ESC (dismissing
	// any open menu or partial input) before the command is typed.
	escSettle = 100 * time.Millisecond
	// menuSettle lets the slash-command menu appear before Enter; the
	// trailing space in the command forces plain-text submission rather
	// than menu autocomplete.
	menuSettle = 200 * time.Millisecond
)

const (
	usageCommand = "/usage "
	exitCommand  = "/exit\r"
)

// Injector sends control input to the hidden child.
type Injector interface {
	// SendUsageQuery types the usage command into the child's TUI.
	SendUsageQuery() error
	// SendGracefulExit asks the child to quit on its own.
	SendGracefulExit() error
}

// KeystrokeInjector writes the keystroke protocol to a PTY master. The
// pauses between writes are load-bearing: a TUI consumes input through
// its own event loop and drops keys that arrive mid-transition.
type KeystrokeInjector struct {
	w     io.Writer
	pause func(time.Duration)
}

// NewInjector wires an injector to the child's input. The pause
// function defaults to time.Sleep; tests substitute a recorder.
func NewInjector(w io.Writer, pause func(time.Duration)) *KeystrokeInjector {
	if pause == nil {
		pause = time.Sleep
	}
	return &KeystrokeInjector{w: w, pause: pause}
}

// SendUsageQuery performs the typing sequence: ESC to clear any UI
// state, the command text, then Enter after the menu settles.
func (k *KeystrokeInjector) SendUsageQuery() error {
	if err := k.write("\x1b"); err != nil {
		return err
	}
	k.pause(escSettle)
	if err := k.write(usageCommand); err != nil {
		return err
	}
	k.pause(menuSettle)
	return k.write("\r")
}

// SendGracefulExit types the quit command. Callers treat failure as
// non-fatal; a SIGTERM follows either way.
func (k *KeystrokeInjector) SendGracefulExit() error {
	return k.write(exitCommand)
}

func (k *KeystrokeInjector) write(s string) error {
	if _, err := k.w.Write([]byte(s)); err != nil {
		return fmt.Errorf("telemetry: inject: %w", err)
	}
	return nil
}
