package lead

import "testing"

func TestNextScript_Monotone(t *testing.T) {
	if got := NextScript(ScriptA); got != ScriptB {
		t.Fatalf("A should escalate to B, got %q", got)
	}
	if got := NextScript(ScriptB); got != ScriptC {
		t.Fatalf("B should escalate to C, got %q", got)
	}
	if got := NextScript(ScriptC); got != ScriptC {
		t.Fatalf("C is terminal, got %q", got)
	}
	if got := NextScript(ScriptVersion("bogus")); got != ScriptC {
		t.Fatalf("unknown versions clamp to C, got %q", got)
	}
}

func TestCanTransition(t *testing.T) {
	allow := [][2]Status{
		{StatusNew, StatusQueued},
		{StatusQueued, StatusCalled},
		{StatusCalled, StatusHuman},
		{StatusCalled, StatusVoicemail},
		{StatusHuman, StatusActivationRequested},
		{StatusActivationRequested, StatusTransferred},
		{StatusTransferred, StatusClosed},
		{StatusVoicemail, StatusQueued},
		{StatusCalled, StatusCalled}, // webhook redelivery
		{StatusHuman, StatusArchived},
	}
	for _, p := range allow {
		if !CanTransition(p[0], p[1]) {
			t.Fatalf("expected %s -> %s allowed", p[0], p[1])
		}
	}

	deny := [][2]Status{
		{StatusClosed, StatusQueued},
		{StatusQueued, StatusTransferred},
		{StatusNew, StatusClosed},
		{StatusArchived, StatusQueued},
	}
	for _, p := range deny {
		if CanTransition(p[0], p[1]) {
			t.Fatalf("expected %s -> %s denied", p[0], p[1])
		}
	}
}

func TestBadOutcome(t *testing.T) {
	for _, s := range []Status{StatusNoAnswerOutcome, StatusVoicemail, StatusNotInterested, StatusFailed} {
		if !BadOutcome(s) {
			t.Fatalf("expected %s to be a bad outcome", s)
		}
	}
	for _, s := range []Status{StatusClosed, StatusCurious, StatusHuman, StatusQueued} {
		if BadOutcome(s) {
			t.Fatalf("expected %s not to be a bad outcome", s)
		}
	}
}
