// Package gate enforces the production boundary on debug commands. The
// four debug command types drive certification labs and integration rigs;
// on a production host they must never reach an engine. The gate holds its
// mode from construction and the cycle processor runs it before anything
// else, so there is no call path into an engine that skips it.
package gate

import (
	"github.com/certspin/reelcore/pkg/engine"
)

// DebugGate filters debug-only commands by deployment mode. The zero value
// rejects debug commands, same as a production gate, so a forgotten
// constructor fails closed.
type DebugGate struct {
	allowDebug bool
}

// NewDebugGate returns a gate for the given mode. production=true rejects
// the debug command types, production=false passes everything.
func NewDebugGate(production bool) *DebugGate {
	return &DebugGate{allowDebug: !production}
}

// Production reports whether the gate rejects debug commands.
func (g *DebugGate) Production() bool { return !g.allowDebug }

// Filter returns cmd unchanged when it may proceed. A debug command on a
// production gate fails with ForbiddenCommand and must not be processed.
// Unknown command types pass through; the engine rejects them itself so
// the rejection is attributed to the component that owns the command set.
func (g *DebugGate) Filter(cmd engine.Command) (engine.Command, error) {
	if !g.allowDebug && cmd.Type.IsDebug() {
		return engine.Command{}, engine.Errorf(engine.ForbiddenCommand, cmd, "debug commands are disabled in production")
	}
	return cmd, nil
}
