package action

import (
	"context"
	"testing"
)

func TestDefaultLockCommands(t *testing.T) {
	commands := defaultLockCommands()
	if len(commands) != 4 {
		t.Fatalf("expected 4 lock commands, got %d", len(commands))
	}
	if commands[0][0] != "loginctl" {
		t.Errorf("expected loginctl first, got %s", commands[0][0])
	}
}

func TestCommandLocker_FirstSuccessWins(t *testing.T) {
	locker := NewCommandLockerWith([][]string{
		{"false"},
		{"true"},
		{"false"},
	})

	if err := locker.Lock(context.Background()); err != nil {
		t.Errorf("expected lock to succeed via second command, got %v", err)
	}
}

func TestCommandLocker_AllFail(t *testing.T) {
	locker := NewCommandLockerWith([][]string{
		{"false"},
		{"/nonexistent/locker-binary"},
	})

	if err := locker.Lock(context.Background()); err == nil {
		t.Error("expected error when every lock command fails")
	}
}

func TestCommandLocker_SkipsEmptyEntries(t *testing.T) {
	locker := NewCommandLockerWith([][]string{
		{},
		{"true"},
	})

	if err := locker.Lock(context.Background()); err != nil {
		t.Errorf("expected lock to succeed, got %v", err)
	}
}
