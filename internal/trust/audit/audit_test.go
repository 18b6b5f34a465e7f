package audit

import "testing"

func TestRecordAndVerifyIntegrity(t *testing.T) {
	m := New()
	m.Record(Info, "agent-1", "registered")
	m.Record(Warning, "agent-2", "scope denied read on widgets")
	m.Record(Critical, "", "ledger verification failed")

	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
	if err := m.VerifyIntegrity(); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyIntegrityDetectsTamperedMessage(t *testing.T) {
	m := New()
	m.Record(Info, "agent-1", "original")

	events := m.Events()
	events[0].Message = "tampered"

	m.mu.Lock()
	m.events[0].Message = "tampered"
	m.mu.Unlock()

	if err := m.VerifyIntegrity(); err == nil {
		t.Fatal("expected tampered event to be detected")
	}
}

func TestSinceReturnsSuffixFromSequence(t *testing.T) {
	m := New()
	m.Record(Info, "a", "one")
	m.Record(Info, "a", "two")
	m.Record(Info, "a", "three")

	got := m.Since(1)
	if len(got) != 2 || got[0].Message != "two" {
		t.Fatalf("Since(1) = %+v, want events 'two','three'", got)
	}
}

func TestSeverityString(t *testing.T) {
	cases := map[Severity]string{Info: "info", Warning: "warning", Critical: "critical"}
	for sev, want := range cases {
		if got := sev.String(); got != want {
			t.Fatalf("Severity(%d).String() = %q, want %q", sev, got, want)
		}
	}
}
