package runtime

import (
	"errors"
	"strings"
	"testing"
)

func TestTrackerLifecycle(t *testing.T) {
	var tr Tracker

	if s := tr.State("b"); s != StateAbsent {
		t.Fatalf("initial state = %s, want absent", s)
	}

	steps := []State{StateCreated, StateRunning, StateStopped, StateRemoved, StateCreated}
	for _, s := range steps {
		if err := tr.Transition("b", s); err != nil {
			t.Fatalf("Transition(%s): %v", s, err)
		}
	}
	if s := tr.State("b"); s != StateCreated {
		t.Fatalf("state = %s, want created", s)
	}
}

func TestTrackerRejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{StateAbsent, StateRunning},
		{StateAbsent, StateStopped},
		{StateRunning, StateCreated},
		{StateRemoved, StateRunning},
	}

	for _, tt := range tests {
		var tr Tracker
		tr.Observe("b", tt.from)
		err := tr.Transition("b", tt.to)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: err = %v, want ErrInvalidTransition", tt.from, tt.to, err)
		}
		if s := tr.State("b"); s != tt.from {
			t.Errorf("%s -> %s: state changed to %s", tt.from, tt.to, s)
		}
	}
}

func TestTrackerSameStateIsNoop(t *testing.T) {
	var tr Tracker
	tr.Observe("b", StateRunning)
	if err := tr.Transition("b", StateRunning); err != nil {
		t.Fatalf("Transition to same state: %v", err)
	}
}

func TestRequireRunning(t *testing.T) {
	var tr Tracker
	for _, s := range []State{StateAbsent, StateCreated, StateStopped, StateRemoved} {
		tr.Observe("b", s)
		if err := tr.RequireRunning("b"); !errors.Is(err, ErrEnvironmentNotReady) {
			t.Errorf("RequireRunning in %s: err = %v", s, err)
		}
	}

	tr.Observe("b", StateRunning)
	if err := tr.RequireRunning("b"); err != nil {
		t.Errorf("RequireRunning in running: %v", err)
	}
}

func TestDependencyMissingMessages(t *testing.T) {
	tests := []struct {
		err  *DependencyMissing
		want string
	}{
		{&DependencyMissing{Engine: "docker", Reason: NotInstalled}, "docker is not installed"},
		{&DependencyMissing{Engine: "podman", Reason: Unreachable, Detail: "connection refused"}, "start the podman service"},
	}

	for _, tt := range tests {
		if !errors.Is(tt.err, ErrDependencyMissing) {
			t.Errorf("%v does not match ErrDependencyMissing", tt.err)
		}
		if got := tt.err.Error(); !strings.Contains(got, tt.want) {
			t.Errorf("Error() = %q, want it to contain %q", got, tt.want)
		}
	}
}
