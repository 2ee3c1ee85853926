package gitrepo

import (
	"errors"
	"strings"
	"testing"
)

func TestCommandError(t *testing.T) {
	base := errors.New("exit status 128")

	withOutput := &CommandError{
		Args:   []string{"fetch", "--prune", "origin"},
		Output: "fatal: unable to access remote\n",
		Err:    base,
	}
	msg := withOutput.Error()
	if !strings.Contains(msg, "git fetch --prune origin") {
		t.Errorf("error %q does not name the command", msg)
	}
	if !strings.Contains(msg, "fatal: unable to access remote") {
		t.Errorf("error %q does not carry the command output", msg)
	}
	if !errors.Is(withOutput, base) {
		t.Error("CommandError does not unwrap to the underlying error")
	}

	silent := &CommandError{
		Args: []string{"rev-parse", "HEAD"},
		Err:  base,
	}
	msg = silent.Error()
	if !strings.Contains(msg, "git rev-parse HEAD") {
		t.Errorf("error %q does not name the command", msg)
	}
	if strings.Contains(msg, ": \n") || strings.HasSuffix(msg, ": ") {
		t.Errorf("error %q has a dangling output separator", msg)
	}
}

func TestNew_DefaultsLogger(t *testing.T) {
	r := New("git://example.com/puppet.git", "/srv/puppet/.puppet.git", nil)
	if r.logger == nil {
		t.Fatal("nil logger not defaulted")
	}
	if r.URL != "git://example.com/puppet.git" || r.Path != "/srv/puppet/.puppet.git" {
		t.Errorf("repository fields not set: %+v", r)
	}
}
