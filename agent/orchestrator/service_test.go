package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	historyx "github.com/tanpawarit/Chative-Todo-Agent/agent/history"
	toolx "github.com/tanpawarit/Chative-Todo-Agent/agent/tool"
)

const testSystemPrompt = "you are a todo assistant"

type fakeOracle struct {
	replies     []string
	err         error
	transcripts [][]historyx.Entry
}

func (f *fakeOracle) Reply(ctx context.Context, transcript []historyx.Entry) (string, error) {
	f.transcripts = append(f.transcripts, append([]historyx.Entry(nil), transcript...))
	if f.err != nil {
		return "", f.err
	}
	idx := len(f.transcripts) - 1
	if idx >= len(f.replies) {
		return "", fmt.Errorf("no oracle reply left at call=%d", idx+1)
	}
	return f.replies[idx], nil
}

// loopingOracle plans forever.
type loopingOracle struct {
	calls int
}

func (l *loopingOracle) Reply(ctx context.Context, transcript []historyx.Entry) (string, error) {
	l.calls++
	return `{"type":"plan","plan":"thinking"}`, nil
}

type fakeStore struct {
	nextID    int64
	createErr error
	created   []string
	deleted   []int64
}

func (f *fakeStore) List(ctx context.Context) ([]contractx.Todo, error) {
	return []contractx.Todo{}, nil
}

func (f *fakeStore) Create(ctx context.Context, text string) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, text)
	return f.nextID, nil
}

func (f *fakeStore) Search(ctx context.Context, search string) ([]contractx.Todo, error) {
	return []contractx.Todo{}, nil
}

func (f *fakeStore) DeleteByID(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeJournal struct {
	entries   map[string][]historyx.Entry
	appendErr error
	loadErr   error
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{entries: map[string][]historyx.Entry{}}
}

func (f *fakeJournal) Append(ctx context.Context, sessionID string, e historyx.Entry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries[sessionID] = append(f.entries[sessionID], e)
	return nil
}

func (f *fakeJournal) Load(ctx context.Context, sessionID string) ([]historyx.Entry, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]historyx.Entry(nil), f.entries[sessionID]...), nil
}

type fakeNotifier struct {
	events []contractx.TurnEvent
	err    error
}

func (f *fakeNotifier) NotifyTurn(ctx context.Context, ev contractx.TurnEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func newTestOrchestrator(t *testing.T, oracle contractx.Oracle, store contractx.TodoStore, opts ...Option) *Orchestrator {
	t.Helper()

	tools, err := toolx.NewRegistry(store)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	opts = append([]Option{
		WithLogger(zerolog.Nop()),
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	}, opts...)
	o, err := New(context.Background(), oracle, tools, testSystemPrompt, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func roles(entries []historyx.Entry) []historyx.Role {
	out := make([]historyx.Role, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Role)
	}
	return out
}

func assertRoles(t *testing.T, entries []historyx.Entry, want ...historyx.Role) {
	t.Helper()

	got := roles(entries)
	if len(got) != len(want) {
		t.Fatalf("roles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("roles = %v, want %v", got, want)
		}
	}
}

func TestHandleMessagePlansThenOutputWithoutTools(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{replies: []string{
		`{"type":"plan","plan":"no tool needed"}`,
		`{"type":"plan","plan":"just answer"}`,
		`{"type":"output","output":"Hello!"}`,
	}}
	store := &fakeStore{}
	o := newTestOrchestrator(t, oracle, store)

	out, err := o.HandleMessage(context.Background(), "hi there")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out != "Hello!" {
		t.Fatalf("HandleMessage() = %q, want %q", out, "Hello!")
	}

	h := o.History()
	assertRoles(t, h,
		historyx.RoleSystem, historyx.RoleUser,
		historyx.RoleAssistant, historyx.RoleAssistant, historyx.RoleAssistant,
	)
	if h[0].Payload != testSystemPrompt {
		t.Fatalf("first entry = %q, want system prompt", h[0].Payload)
	}
	if h[1].Payload != `{"type":"user","user":"hi there"}` {
		t.Fatalf("user entry = %q", h[1].Payload)
	}
	if h[4].Payload != `{"type":"output","output":"Hello!"}` {
		t.Fatalf("last entry = %q", h[4].Payload)
	}
	if len(store.created)+len(store.deleted) != 0 {
		t.Fatal("plan-only turn must not invoke tools")
	}
	if o.State() != StateAwaitUserInput {
		t.Fatalf("State() = %s, want %s", o.State(), StateAwaitUserInput)
	}
}

func TestHandleMessageCreateTodoScenario(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{replies: []string{
		`{"type":"plan","plan":"I will use createTodo to create a new todo."}`,
		`{"type":"action","function":"createTodo","input":"Buy milk"}`,
		`{"type":"output","output":"Your todo has been added successfully"}`,
	}}
	store := &fakeStore{nextID: 7}
	o := newTestOrchestrator(t, oracle, store)

	out, err := o.HandleMessage(context.Background(), "Add a task for buying milk")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out != "Your todo has been added successfully" {
		t.Fatalf("HandleMessage() = %q", out)
	}

	h := o.History()
	assertRoles(t, h,
		historyx.RoleSystem, historyx.RoleUser,
		historyx.RoleAssistant, historyx.RoleAssistant,
		historyx.RoleDeveloper, historyx.RoleAssistant,
	)
	if h[4].Payload != `{"type":"observation","observation":7}` {
		t.Fatalf("observation entry = %q", h[4].Payload)
	}
	if len(store.created) != 1 || store.created[0] != "Buy milk" {
		t.Fatalf("unexpected created: %#v", store.created)
	}

	// exactly one query follows the action, and it carries the observation
	if len(oracle.transcripts) != 3 {
		t.Fatalf("oracle called %d times, want 3", len(oracle.transcripts))
	}
	last := oracle.transcripts[2]
	if len(last) != 5 || last[4].Role != historyx.RoleDeveloper {
		t.Fatalf("third query transcript = %v", roles(last))
	}
}

func TestHandleMessageUnknownToolIsFatal(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{replies: []string{
		`{"type":"action","function":"updateTodo","input":{"id":1}}`,
	}}
	o := newTestOrchestrator(t, oracle, &fakeStore{})

	_, err := o.HandleMessage(context.Background(), "rename my task")
	if !errors.Is(err, contractx.ErrUnknownTool) {
		t.Fatalf("HandleMessage() error = %v, want ErrUnknownTool", err)
	}
	if !errors.Is(err, contractx.ErrProtocolViolation) {
		t.Fatalf("unknown tool must be a protocol violation, got %v", err)
	}

	for _, e := range o.History() {
		if e.Role == historyx.RoleDeveloper {
			t.Fatal("no observation may be appended for an unknown tool")
		}
	}
	if o.State() != StateHalted {
		t.Fatalf("State() = %s, want %s", o.State(), StateHalted)
	}
	if _, err := o.HandleMessage(context.Background(), "again"); !errors.Is(err, ErrHalted) {
		t.Fatalf("HandleMessage() after fatal error = %v, want ErrHalted", err)
	}
}

func TestHandleMessageDeleteMissingIDIsNotAnError(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{replies: []string{
		`{"type":"action","function":"deleteTodoById","input":"999"}`,
		`{"type":"output","output":"Done, nothing left to remove."}`,
	}}
	store := &fakeStore{}
	o := newTestOrchestrator(t, oracle, store)

	out, err := o.HandleMessage(context.Background(), "Remove the milk task")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out != "Done, nothing left to remove." {
		t.Fatalf("HandleMessage() = %q", out)
	}

	h := o.History()
	obs := h[len(h)-2]
	if obs.Role != historyx.RoleDeveloper || obs.Payload != `{"type":"observation","observation":null}` {
		t.Fatalf("observation entry = %#v", obs)
	}
	if len(store.deleted) != 1 || store.deleted[0] != 999 {
		t.Fatalf("unexpected deleted: %#v", store.deleted)
	}
}

func TestHandleMessageMalformedReplyIsFatal(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"not json":     `Sure! I added it.`,
		"unknown type": `{"type":"answer","answer":"x"}`,
		"missing type": `{"output":"x"}`,
		"no function":  `{"type":"action","input":"x"}`,
	}
	for name, reply := range cases {
		oracle := &fakeOracle{replies: []string{reply}}
		o := newTestOrchestrator(t, oracle, &fakeStore{})

		_, err := o.HandleMessage(context.Background(), "hello")
		if !errors.Is(err, contractx.ErrProtocolViolation) {
			t.Fatalf("%s: HandleMessage() error = %v, want ErrProtocolViolation", name, err)
		}
		h := o.History()
		if last := h[len(h)-1]; last.Role != historyx.RoleAssistant || last.Payload != reply {
			t.Fatalf("%s: rejected reply must still be recorded, last = %#v", name, last)
		}
		if len(oracle.transcripts) != 1 {
			t.Fatalf("%s: no retry expected, oracle called %d times", name, len(oracle.transcripts))
		}
	}
}

func TestHandleMessageStepBudget(t *testing.T) {
	t.Parallel()

	oracle := &loopingOracle{}
	o := newTestOrchestrator(t, oracle, &fakeStore{}, WithMaxSteps(3))

	_, err := o.HandleMessage(context.Background(), "loop forever")
	if !errors.Is(err, contractx.ErrStepBudgetExceeded) {
		t.Fatalf("HandleMessage() error = %v, want ErrStepBudgetExceeded", err)
	}
	if oracle.calls != 3 {
		t.Fatalf("oracle called %d times, want 3", oracle.calls)
	}
}

func TestHandleMessageStoreFailureBecomesObservation(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{replies: []string{
		`{"type":"action","function":"createTodo","input":"Buy milk"}`,
		`{"type":"output","output":"Sorry, the database is unavailable."}`,
	}}
	storeErr := fmt.Errorf("%w: insert todo: connection refused", contractx.ErrStore)
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, oracle, &fakeStore{createErr: storeErr}, WithNotifier(notifier))

	out, err := o.HandleMessage(context.Background(), "Add milk")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if out != "Sorry, the database is unavailable." {
		t.Fatalf("HandleMessage() = %q", out)
	}

	obs := o.History()[3]
	if obs.Role != historyx.RoleDeveloper {
		t.Fatalf("entry 3 role = %s, want developer", obs.Role)
	}
	if !strings.Contains(obs.Payload, `"observation":null`) || !strings.Contains(obs.Payload, "connection refused") {
		t.Fatalf("observation payload = %q", obs.Payload)
	}
	if len(notifier.events) != 1 || len(notifier.events[0].ToolCalls) != 1 || !notifier.events[0].ToolCalls[0].Failed {
		t.Fatalf("unexpected turn events: %#v", notifier.events)
	}
}

func TestHandleMessageStrictStoreErrorsAreFatal(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{replies: []string{
		`{"type":"action","function":"createTodo","input":"Buy milk"}`,
	}}
	storeErr := fmt.Errorf("%w: insert todo: connection refused", contractx.ErrStore)
	o := newTestOrchestrator(t, oracle, &fakeStore{createErr: storeErr}, WithStrictStoreErrors(true))

	_, err := o.HandleMessage(context.Background(), "Add milk")
	if !errors.Is(err, contractx.ErrStore) {
		t.Fatalf("HandleMessage() error = %v, want ErrStore", err)
	}
	for _, e := range o.History() {
		if e.Role == historyx.RoleDeveloper {
			t.Fatal("strict mode must not append an observation")
		}
	}
}

func TestHandleMessageInvalidToolInputBecomesObservation(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{replies: []string{
		`{"type":"action","function":"createTodo","input":42}`,
		`{"type":"output","output":"What should the todo say?"}`,
	}}
	store := &fakeStore{}
	o := newTestOrchestrator(t, oracle, store, WithStrictStoreErrors(true))

	if _, err := o.HandleMessage(context.Background(), "add something"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(store.created) != 0 {
		t.Fatal("store must not be called for invalid input")
	}
	obs := o.History()[3]
	if obs.Role != historyx.RoleDeveloper || !strings.Contains(obs.Payload, `"error":`) {
		t.Fatalf("observation entry = %#v", obs)
	}
}

func TestHandleMessageRejectsBlankInput(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{}
	o := newTestOrchestrator(t, oracle, &fakeStore{})

	_, err := o.HandleMessage(context.Background(), "   ")
	if !errors.Is(err, contractx.ErrInvalidMessage) {
		t.Fatalf("HandleMessage() error = %v, want ErrInvalidMessage", err)
	}
	if len(o.History()) != 1 || len(oracle.transcripts) != 0 {
		t.Fatal("blank input must not touch history or oracle")
	}
	if o.State() == StateHalted {
		t.Fatal("blank input must not halt the session")
	}
}

func TestHandleMessageOracleFailureIsFatal(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{err: fmt.Errorf("%w: timeout", contractx.ErrOracleInvoke)}
	o := newTestOrchestrator(t, oracle, &fakeStore{})

	_, err := o.HandleMessage(context.Background(), "hello")
	if !errors.Is(err, contractx.ErrOracleInvoke) {
		t.Fatalf("HandleMessage() error = %v, want ErrOracleInvoke", err)
	}
}

func TestHandleMessageJournalsEveryEntry(t *testing.T) {
	t.Parallel()

	journal := newFakeJournal()
	oracle := &fakeOracle{replies: []string{
		`{"type":"action","function":"getAllTodos","input":""}`,
		`{"type":"output","output":"You have no todos."}`,
	}}
	o := newTestOrchestrator(t, oracle, &fakeStore{}, WithJournal(journal), WithSessionID("s-1"))

	if o.SessionID() != "s-1" {
		t.Fatalf("SessionID() = %q", o.SessionID())
	}
	if _, err := o.HandleMessage(context.Background(), "what do I have?"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	journaled := journal.entries["s-1"]
	h := o.History()
	if len(journaled) != len(h) {
		t.Fatalf("journal has %d entries, history has %d", len(journaled), len(h))
	}
	for i := range h {
		if journaled[i] != h[i] {
			t.Fatalf("journal entry %d = %#v, want %#v", i, journaled[i], h[i])
		}
	}
	if h[3].Payload != `{"type":"observation","observation":[]}` {
		t.Fatalf("observation entry = %q", h[3].Payload)
	}
}

func TestNewResumesJournaledSession(t *testing.T) {
	t.Parallel()

	journal := newFakeJournal()
	journal.entries["s-2"] = []historyx.Entry{
		{Role: historyx.RoleSystem, Payload: "original prompt"},
		{Role: historyx.RoleUser, Payload: `{"type":"user","user":"hi"}`},
		{Role: historyx.RoleAssistant, Payload: `{"type":"output","output":"hello"}`},
	}
	oracle := &fakeOracle{replies: []string{`{"type":"output","output":"welcome back"}`}}
	o := newTestOrchestrator(t, oracle, &fakeStore{}, WithJournal(journal), WithSessionID("s-2"))

	h := o.History()
	if len(h) != 3 || h[0].Payload != "original prompt" {
		t.Fatalf("restored history = %#v", h)
	}

	if _, err := o.HandleMessage(context.Background(), "remember me?"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if got := len(oracle.transcripts[0]); got != 4 {
		t.Fatalf("oracle saw %d entries, want 4", got)
	}
	if len(journal.entries["s-2"]) != 5 {
		t.Fatalf("journal has %d entries, want 5", len(journal.entries["s-2"]))
	}
}

func TestNewRejectsCorruptJournal(t *testing.T) {
	t.Parallel()

	journal := newFakeJournal()
	journal.entries["bad"] = []historyx.Entry{{Role: historyx.RoleUser, Payload: "x"}}
	tools, _ := toolx.NewRegistry(&fakeStore{})

	_, err := New(context.Background(), &fakeOracle{}, tools, testSystemPrompt,
		WithLogger(zerolog.Nop()), WithJournal(journal), WithSessionID("bad"))
	if !errors.Is(err, historyx.ErrMissingSystemEntry) {
		t.Fatalf("New() error = %v, want ErrMissingSystemEntry", err)
	}
}

func TestHandleMessageJournalFailureIsFatal(t *testing.T) {
	t.Parallel()

	journal := newFakeJournal()
	oracle := &fakeOracle{replies: []string{`{"type":"output","output":"x"}`}}
	o := newTestOrchestrator(t, oracle, &fakeStore{}, WithJournal(journal))

	journal.appendErr = errors.New("redis down")
	if _, err := o.HandleMessage(context.Background(), "hello"); err == nil {
		t.Fatal("expected journal failure to be fatal")
	}
	if o.State() != StateHalted {
		t.Fatalf("State() = %s, want halted", o.State())
	}
}

func TestHandleMessageNotifiesCompletedTurn(t *testing.T) {
	t.Parallel()

	notifier := &fakeNotifier{err: errors.New("qstash unavailable")}
	oracle := &fakeOracle{replies: []string{
		`{"type":"plan","plan":"create it"}`,
		`{"type":"action","function":"createTodo","input":"Buy milk"}`,
		`{"type":"output","output":"Added."}`,
	}}
	o := newTestOrchestrator(t, oracle, &fakeStore{nextID: 1}, WithNotifier(notifier), WithSessionID("s-3"))

	out, err := o.HandleMessage(context.Background(), "Add milk")
	if err != nil {
		t.Fatalf("notifier failure must not be fatal, got %v", err)
	}
	if out != "Added." {
		t.Fatalf("HandleMessage() = %q", out)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("expected 1 turn event, got %d", len(notifier.events))
	}
	ev := notifier.events[0]
	if ev.SessionID != "s-3" || ev.Input != "Add milk" || ev.Output != "Added." || ev.Steps != 3 {
		t.Fatalf("unexpected turn event: %#v", ev)
	}
	if len(ev.ToolCalls) != 1 || ev.ToolCalls[0].Tool != toolx.ToolCreateTodo || ev.ToolCalls[0].Failed {
		t.Fatalf("unexpected tool calls: %#v", ev.ToolCalls)
	}
	if !ev.CompletedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("CompletedAt = %v", ev.CompletedAt)
	}
}

func TestHandleMessageWindowLimitsOracleView(t *testing.T) {
	t.Parallel()

	oracle := &fakeOracle{replies: []string{
		`{"type":"output","output":"first"}`,
		`{"type":"output","output":"second"}`,
	}}
	o := newTestOrchestrator(t, oracle, &fakeStore{}, WithWindow(historyx.KeepRecent{Max: 2}))

	for _, msg := range []string{"one", "two"} {
		if _, err := o.HandleMessage(context.Background(), msg); err != nil {
			t.Fatalf("HandleMessage(%q) error = %v", msg, err)
		}
	}

	assertRoles(t, oracle.transcripts[1], historyx.RoleSystem, historyx.RoleUser)
	if oracle.transcripts[1][1].Payload != `{"type":"user","user":"two"}` {
		t.Fatalf("windowed view = %#v", oracle.transcripts[1])
	}
	if len(o.History()) != 5 {
		t.Fatalf("full history has %d entries, want 5", len(o.History()))
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	tools, _ := toolx.NewRegistry(&fakeStore{})
	ctx := context.Background()

	if _, err := New(ctx, nil, tools, testSystemPrompt); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("New(nil oracle) error = %v", err)
	}
	if _, err := New(ctx, &fakeOracle{}, nil, testSystemPrompt); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("New(nil tools) error = %v", err)
	}
	if _, err := New(ctx, &fakeOracle{}, tools, " "); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("New(blank prompt) error = %v", err)
	}
}

func TestNewGeneratesSessionID(t *testing.T) {
	t.Parallel()

	a := newTestOrchestrator(t, &fakeOracle{}, &fakeStore{})
	b := newTestOrchestrator(t, &fakeOracle{}, &fakeStore{})
	if a.SessionID() == "" || a.SessionID() == b.SessionID() {
		t.Fatalf("session ids = %q, %q", a.SessionID(), b.SessionID())
	}
}
