package action

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed lock_commands.yaml
var lockCommandsYAML []byte

// lockCommandTimeout bounds each lock command attempt.
const lockCommandTimeout = 5 * time.Second

type lockCommandList struct {
	Commands [][]string `yaml:"commands"`
}

// defaultLockCommands returns the built-in desktop lock command chain.
func defaultLockCommands() [][]string {
	var list lockCommandList
	if err := yaml.Unmarshal(lockCommandsYAML, &list); err != nil {
		// Embedded file, cannot fail in practice.
		panic("failed to unmarshal embedded lock_commands.yaml: " + err.Error())
	}
	return list.Commands
}

// CommandLocker locks the session by trying a chain of desktop lock
// commands in order until one succeeds. Different desktop environments
// ship different lockers, so a fixed chain covers the common ones.
type CommandLocker struct {
	commands [][]string
}

// NewCommandLocker creates a locker with the embedded default chain.
func NewCommandLocker() *CommandLocker {
	return &CommandLocker{commands: defaultLockCommands()}
}

// NewCommandLockerWith creates a locker with an explicit command chain.
func NewCommandLockerWith(commands [][]string) *CommandLocker {
	return &CommandLocker{commands: commands}
}

// Lock runs the chain until a command exits zero. Returns an error only
// when every command failed or was missing.
func (l *CommandLocker) Lock(ctx context.Context) error {
	for _, cmd := range l.commands {
		if len(cmd) == 0 {
			continue
		}

		cmdCtx, cancel := context.WithTimeout(ctx, lockCommandTimeout)
		err := exec.CommandContext(cmdCtx, cmd[0], cmd[1:]...).Run()
		cancel()

		if err == nil {
			slog.Info("session locked", "command", cmd[0])
			return nil
		}
		slog.Debug("lock command failed", "command", cmd[0], "error", err)
	}

	return fmt.Errorf("all %d lock commands failed", len(l.commands))
}
