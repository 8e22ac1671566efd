package service

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"scholar-assistant/internal/domain"
)

func TestSessionController_OpenSeedsGreeting(t *testing.T) {
	e := newTestEngine(t, nil)
	if !e.ctrl.OpenSession() {
		t.Fatalf("expected open to succeed")
	}
	if e.ctrl.OpenSession() {
		t.Fatalf("expected second open to be ignored")
	}

	snap := e.ctrl.Snapshot()
	if len(snap.Messages) != 1 {
		t.Fatalf("expected 1 seeded message, got %d", len(snap.Messages))
	}
	greeting := snap.Messages[0]
	if greeting.Sender != domain.SenderAssistant || greeting.ID != 1 {
		t.Fatalf("unexpected greeting %+v", greeting)
	}
	if len(greeting.Suggestions) != 4 {
		t.Fatalf("expected 4 suggestions, got %d", len(greeting.Suggestions))
	}
	if !greeting.Timestamp.Equal(testEpoch) {
		t.Fatalf("expected timestamp from injected clock, got %v", greeting.Timestamp)
	}
	if len(snap.QuickActions) != 4 {
		t.Fatalf("expected quick actions on fresh session, got %d", len(snap.QuickActions))
	}
	if snap.IsTyping || snap.IsListening || snap.PendingInput != "" {
		t.Fatalf("unexpected initial flags %+v", snap)
	}
}

func TestSessionController_EndToEndScenario(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()

	if !e.ctrl.SubmitText("What scholarships are available?") {
		t.Fatalf("expected submission to be accepted")
	}
	mid := e.ctrl.Snapshot()
	if len(mid.Messages) != 2 || !mid.IsTyping {
		t.Fatalf("expected user message appended and typing, got %+v", mid)
	}
	if len(mid.QuickActions) != 0 {
		t.Fatalf("quick actions must disappear after first turn")
	}

	e.scheduler.Advance(DefaultTypingMaxDelay)

	snap := e.ctrl.Snapshot()
	if len(snap.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(snap.Messages))
	}
	if snap.Messages[1].Sender != domain.SenderUser {
		t.Fatalf("expected user message at index 1, got %s", snap.Messages[1].Sender)
	}
	if snap.Messages[2].Sender != domain.SenderAssistant {
		t.Fatalf("expected assistant message at index 2")
	}
	if !strings.Contains(snap.Messages[2].Text, "Merit Excellence Award") {
		t.Fatalf("expected Merit Excellence Award, got %q", snap.Messages[2].Text)
	}
	if len(snap.Messages[2].Suggestions) != 0 {
		t.Fatalf("later assistant turns carry no suggestions by default")
	}
	if snap.IsTyping {
		t.Fatalf("expected typing cleared after delivery")
	}
}

func TestSessionController_SubmitTrimsAndClearsDraft(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()
	e.ctrl.UpdateDraft("  essay tips  ")
	if got := e.ctrl.Snapshot().PendingInput; got != "  essay tips  " {
		t.Fatalf("draft must be kept verbatim, got %q", got)
	}

	e.ctrl.SubmitText("  essay tips  ")
	snap := e.ctrl.Snapshot()
	if snap.Messages[1].Text != "essay tips" {
		t.Fatalf("expected trimmed text, got %q", snap.Messages[1].Text)
	}
	if snap.PendingInput != "" {
		t.Fatalf("expected draft cleared, got %q", snap.PendingInput)
	}
}

func TestSessionController_RejectsEmptySubmission(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()
	before := e.ctrl.Snapshot()

	for _, text := range []string{"", "   ", "\n\t"} {
		if e.ctrl.SubmitText(text) {
			t.Fatalf("expected %q to be rejected", text)
		}
	}
	if diff := cmp.Diff(before, e.ctrl.Snapshot()); diff != "" {
		t.Fatalf("state changed on rejected submission (-before +after):\n%s", diff)
	}
	if e.latency.Pending() {
		t.Fatalf("no delivery should be scheduled")
	}
}

func TestSessionController_AtMostOneOutstandingTyping(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()
	e.ctrl.SubmitText("find scholarships")
	e.ctrl.UpdateDraft("draft while typing")
	before := e.ctrl.Snapshot()

	if e.ctrl.SubmitText("when is the deadline?") {
		t.Fatalf("expected submission during typing to be dropped")
	}
	if diff := cmp.Diff(before, e.ctrl.Snapshot()); diff != "" {
		t.Fatalf("state changed on dropped submission (-before +after):\n%s", diff)
	}

	e.scheduler.Advance(time.Minute)
	snap := e.ctrl.Snapshot()
	if len(snap.Messages) != 3 {
		t.Fatalf("expected exactly one assistant reply, got %d messages", len(snap.Messages))
	}

	if !e.ctrl.SubmitText("when is the deadline?") {
		t.Fatalf("expected submission after delivery to be accepted")
	}
	e.scheduler.Advance(time.Minute)
	snap = e.ctrl.Snapshot()
	if len(snap.Messages) != 5 || !strings.Contains(snap.Messages[4].Text, "deadlines") {
		t.Fatalf("unexpected log after second turn: %+v", snap.Messages)
	}
}

func TestSessionController_AppendOnlyOrdering(t *testing.T) {
	e := newTestEngine(t, &sequenceRand{values: []int{0, 700, 1, 1000, 2}})
	e.ctrl.OpenSession()

	var history [][]domain.Message
	e.ctrl.Subscribe(func(s domain.SessionSnapshot) {
		history = append(history, s.Messages)
	})

	inputs := []string{"find", "", "asdkjasdk", "essay", "   ", "when", "requirements"}
	for _, in := range inputs {
		e.ctrl.SubmitText(in)
		e.ctrl.SubmitText("ignored while typing")
		e.ctrl.ToggleVoice()
		e.scheduler.Advance(500 * time.Millisecond)
		e.ctrl.SelectSuggestion("Find scholarships for me")
		e.scheduler.Advance(3 * time.Second)
	}

	final := e.ctrl.Snapshot().Messages
	for i := 1; i < len(final); i++ {
		if final[i-1].ID >= final[i].ID {
			t.Fatalf("ids not strictly increasing at %d: %d >= %d", i, final[i-1].ID, final[i].ID)
		}
	}
	for _, past := range history {
		if len(past) > len(final) {
			t.Fatalf("log shrank")
		}
		if diff := cmp.Diff(past, final[:len(past)]); diff != "" {
			t.Fatalf("earlier message altered (-past +final):\n%s", diff)
		}
	}
}

func TestSessionController_SnapshotIsACopy(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()
	snap := e.ctrl.Snapshot()
	snap.Messages[0].Text = "mutated"
	snap.Messages[0].Suggestions[0] = "mutated"

	fresh := e.ctrl.Snapshot()
	if fresh.Messages[0].Text == "mutated" || fresh.Messages[0].Suggestions[0] == "mutated" {
		t.Fatalf("snapshot mutation leaked into session state")
	}
}

func TestSessionController_SelectSuggestionIsNonDestructive(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()

	if !e.ctrl.SelectSuggestion("Find scholarships for me") {
		t.Fatalf("expected suggestion to be accepted")
	}
	snap := e.ctrl.Snapshot()
	if snap.PendingInput != "Find scholarships for me" {
		t.Fatalf("unexpected draft %q", snap.PendingInput)
	}
	if len(snap.Messages) != 1 || snap.IsTyping {
		t.Fatalf("selecting a suggestion must not submit")
	}

	e.ctrl.SubmitText(snap.PendingInput)
	if got := len(e.ctrl.Snapshot().Messages); got != 2 {
		t.Fatalf("expected user message after explicit submit, got %d", got)
	}
}

func TestSessionController_SelectQuickAction(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()

	if e.ctrl.SelectQuickAction(9) {
		t.Fatalf("expected out-of-range quick action to be rejected")
	}
	if !e.ctrl.SelectQuickAction(1) {
		t.Fatalf("expected quick action to be accepted")
	}
	if got := e.ctrl.Snapshot().PendingInput; got != "Upcoming Deadlines" {
		t.Fatalf("unexpected draft %q", got)
	}

	e.ctrl.SubmitText("Upcoming Deadlines")
	if e.ctrl.SelectQuickAction(0) {
		t.Fatalf("quick actions are only available before the first turn")
	}
}

func TestSessionController_VoiceAutoCompletion(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()
	e.ctrl.UpdateDraft("old draft")

	if !e.ctrl.ToggleVoice() {
		t.Fatalf("expected listening after toggle")
	}
	if !e.ctrl.Snapshot().IsListening {
		t.Fatalf("expected snapshot to report listening")
	}

	e.scheduler.Advance(DefaultVoiceCaptureDelay)
	snap := e.ctrl.Snapshot()
	if snap.IsListening {
		t.Fatalf("expected listening cleared")
	}
	if snap.PendingInput != DefaultVoiceTranscript {
		t.Fatalf("expected transcript in draft, got %q", snap.PendingInput)
	}
	if len(snap.Messages) != 1 {
		t.Fatalf("transcript must not be auto-submitted")
	}
}

func TestSessionController_VoiceCancelRace(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()
	e.ctrl.UpdateDraft("keep me")

	e.ctrl.ToggleVoice()
	e.scheduler.Advance(time.Second)
	if e.ctrl.ToggleVoice() {
		t.Fatalf("expected second toggle to stop listening")
	}
	e.scheduler.Advance(time.Minute)

	snap := e.ctrl.Snapshot()
	if snap.IsListening {
		t.Fatalf("expected listening false")
	}
	if snap.PendingInput != "keep me" {
		t.Fatalf("expected draft unchanged, got %q", snap.PendingInput)
	}
}

func TestSessionController_VoiceAndTypingCoexist(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()

	e.ctrl.SubmitText("essay")
	e.ctrl.ToggleVoice()
	snap := e.ctrl.Snapshot()
	if !snap.IsTyping || !snap.IsListening {
		t.Fatalf("expected both flags set, got typing=%v listening=%v", snap.IsTyping, snap.IsListening)
	}

	e.scheduler.Advance(DefaultTypingMaxDelay)
	snap = e.ctrl.Snapshot()
	if snap.IsTyping || snap.IsListening {
		t.Fatalf("expected both flags cleared, got typing=%v listening=%v", snap.IsTyping, snap.IsListening)
	}
	if len(snap.Messages) != 3 || snap.PendingInput != DefaultVoiceTranscript {
		t.Fatalf("unexpected state %+v", snap)
	}
}

func TestSessionController_CloseCancelsTimers(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()
	e.ctrl.SubmitText("find")
	e.ctrl.ToggleVoice()

	if !e.ctrl.CloseSession() {
		t.Fatalf("expected close to succeed")
	}
	if e.ctrl.CloseSession() {
		t.Fatalf("expected second close to be ignored")
	}
	if e.scheduler.Pending() != 0 {
		t.Fatalf("expected no pending timers after close, got %d", e.scheduler.Pending())
	}

	e.scheduler.Advance(time.Hour)
	snap := e.ctrl.Snapshot()
	if !snap.Closed || snap.IsTyping || snap.IsListening {
		t.Fatalf("unexpected closed state %+v", snap)
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("no delivery may reach a closed session, got %d messages", len(snap.Messages))
	}
	if e.ctrl.SubmitText("find") || e.ctrl.UpdateDraft("x") || e.ctrl.ToggleVoice() {
		t.Fatalf("commands on a closed session must be no-ops")
	}
}

func TestSessionController_StaleCallbacksAreFenced(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()
	e.ctrl.SubmitText("find")

	// Entrega con ticket viejo: debe ignorarse.
	e.ctrl.deliver(0, "stale", nil)
	e.ctrl.completeVoice(0, "stale")
	snap := e.ctrl.Snapshot()
	if len(snap.Messages) != 2 || snap.PendingInput != "" {
		t.Fatalf("stale callbacks changed state: %+v", snap)
	}
}

func TestSessionController_CommandsBeforeOpenAreIgnored(t *testing.T) {
	e := newTestEngine(t, nil)
	if e.ctrl.SubmitText("find") || e.ctrl.SelectSuggestion("x") || e.ctrl.ToggleVoice() {
		t.Fatalf("commands before open must be no-ops")
	}
	if len(e.ctrl.Snapshot().Messages) != 0 {
		t.Fatalf("expected empty log before open")
	}
}

func TestSessionController_SubscribersSeeEveryRevision(t *testing.T) {
	e := newTestEngine(t, nil)
	var revisions []uint64
	unsubscribe := e.ctrl.Subscribe(func(s domain.SessionSnapshot) {
		revisions = append(revisions, s.Revision)
	})

	e.ctrl.OpenSession()
	e.ctrl.UpdateDraft("f")
	e.ctrl.SubmitText("find")
	e.scheduler.Advance(time.Minute)
	unsubscribe()
	e.ctrl.UpdateDraft("after unsubscribe")

	want := []uint64{1, 2, 3, 4}
	if diff := cmp.Diff(want, revisions); diff != "" {
		t.Fatalf("unexpected revisions (-want +got):\n%s", diff)
	}
}

func TestSessionController_RealTimeSchedulerDoesNotLeak(t *testing.T) {
	classifier, err := NewIntentClassifier(DefaultCatalog(), nil)
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	scheduler := NewTimeScheduler()
	ctrl := NewSessionController("rt",
		classifier,
		NewLatencySimulator(scheduler, nil, 10*time.Millisecond, 10*time.Millisecond),
		NewVoiceCapture(scheduler, time.Hour, ""),
		scheduler,
		nil,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	var once sync.Once
	ctrl.Subscribe(func(s domain.SessionSnapshot) {
		if len(s.Messages) == 3 && !s.IsTyping {
			once.Do(wg.Done)
		}
	})
	ctrl.OpenSession()
	ctrl.SubmitText("essay")
	ctrl.ToggleVoice()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("delivery did not arrive")
	}

	ctrl.CloseSession()
	if ctrl.Snapshot().IsListening {
		t.Fatalf("expected voice capture cancelled on close")
	}
}

func TestSessionController_SchedulingFailureLeavesSessionUsable(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()
	// entrega ajena al controlador ocupando el simulador
	if _, err := e.latency.Schedule("orphan", func(string) {}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	before := e.ctrl.Snapshot()

	if e.ctrl.SubmitText("find scholarships") {
		t.Fatalf("expected submission refused while a delivery is pending")
	}
	if diff := cmp.Diff(before, e.ctrl.Snapshot()); diff != "" {
		t.Fatalf("state changed on failed scheduling (-before +after):\n%s", diff)
	}

	e.latency.Cancel()
	if !e.ctrl.SubmitText("find scholarships") {
		t.Fatalf("expected session to accept input again")
	}
	e.scheduler.Advance(DefaultTypingMaxDelay)
	if snap := e.ctrl.Snapshot(); snap.IsTyping || len(snap.Messages) != 3 {
		t.Fatalf("expected delivered response, got typing=%v messages=%d", snap.IsTyping, len(snap.Messages))
	}
}

func TestSessionController_ToggleVoiceDrivesCapture(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()

	if !e.ctrl.ToggleVoice() {
		t.Fatalf("expected listening after toggle")
	}
	// la captura quedó abierta en el componente de voz, no solo en el controlador
	if !e.voice.Cancel() {
		t.Fatalf("expected voice capture listening")
	}
	// con la captura cancelada por fuera, el siguiente toggle vuelve a abrirla
	if !e.ctrl.ToggleVoice() {
		t.Fatalf("expected toggle to follow the capture state")
	}
	e.scheduler.Advance(DefaultVoiceCaptureDelay)
	if snap := e.ctrl.Snapshot(); snap.IsListening || snap.PendingInput != DefaultVoiceTranscript {
		t.Fatalf("expected transcript in draft, got listening=%v draft=%q", snap.IsListening, snap.PendingInput)
	}
}

func TestSessionController_IdleForTracksUserCommands(t *testing.T) {
	e := newTestEngine(t, nil)
	e.ctrl.OpenSession()

	e.scheduler.Advance(5 * time.Minute)
	if got := e.ctrl.IdleFor(e.scheduler.Now()); got != 5*time.Minute {
		t.Fatalf("expected 5m idle, got %v", got)
	}

	e.ctrl.SubmitText("deadline")
	e.scheduler.Advance(3 * time.Minute)
	// la entrega de la respuesta no cuenta como actividad
	if got := e.ctrl.IdleFor(e.scheduler.Now()); got != 3*time.Minute {
		t.Fatalf("expected 3m idle after submit, got %v", got)
	}
}
