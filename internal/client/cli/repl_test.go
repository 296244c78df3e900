package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeExec struct {
	unlocked bool
	calls    []string
}

func (f *fakeExec) isUnlocked() bool { return f.unlocked }
func (f *fakeExec) Register(ctx context.Context) error {
	f.calls = append(f.calls, "register")
	return nil
}
func (f *fakeExec) Login(ctx context.Context) error {
	f.calls = append(f.calls, "login")
	f.unlocked = true
	return nil
}
func (f *fakeExec) Unlock(ctx context.Context) error {
	f.calls = append(f.calls, "unlock")
	f.unlocked = true
	return nil
}
func (f *fakeExec) List(ctx context.Context) error   { f.calls = append(f.calls, "list"); return nil }
func (f *fakeExec) Show(ctx context.Context) error   { f.calls = append(f.calls, "show"); return nil }
func (f *fakeExec) Delete(ctx context.Context) error { f.calls = append(f.calls, "delete"); return nil }
func (f *fakeExec) Sync(ctx context.Context) error   { f.calls = append(f.calls, "sync"); return nil }
func (f *fakeExec) Status(ctx context.Context) error { f.calls = append(f.calls, "status"); return nil }
func (f *fakeExec) Logout(ctx context.Context) error {
	f.calls = append(f.calls, "logout")
	f.unlocked = false
	return nil
}

func runScript(t *testing.T, exec *fakeExec, lines ...string) {
	t.Helper()

	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	sc := bufio.NewScanner(strings.NewReader(strings.Join(lines, "\n")))
	runREPL(context.Background(), exec, func() string { return "status" }, sc)
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	exec := &fakeExec{}
	runScript(t, exec,
		"help",
		"login",
		"help",
		"list",
		"show",
		"sync",
		"status",
		"nonsense",
		"logout",
		"exit",
	)

	require.Equal(t, []string{"login", "list", "show", "sync", "status", "logout"}, exec.calls)
}

func TestRunREPL_Aliases(t *testing.T) {
	exec := &fakeExec{unlocked: true}
	runScript(t, exec, "l", "quit")
	require.Equal(t, []string{"list"}, exec.calls)
}

func TestRunREPL_EOFExits(t *testing.T) {
	exec := &fakeExec{}
	runScript(t, exec, "unlock")
	require.Equal(t, []string{"unlock"}, exec.calls)
}

func TestRunREPL_BlankLinesIgnored(t *testing.T) {
	exec := &fakeExec{}
	runScript(t, exec, "", "   ", "register", "exit")
	require.Equal(t, []string{"register"}, exec.calls)
}
