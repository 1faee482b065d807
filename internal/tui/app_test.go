package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/bleue/bleue-tui/internal/config"
	"github.com/bleue/bleue-tui/internal/gateway"
	"github.com/bleue/bleue-tui/internal/gateway/gatewaytest"
	"github.com/bleue/bleue-tui/internal/screen"
)

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

// newTestApp returns an app whose UI updates run immediately under
// uiUpdateMu instead of on a tview event loop.
func newTestApp(t *testing.T, stub *gatewaytest.Stub) *App {
	t.Helper()
	a := NewApp(stub, config.Config{RefreshInterval: time.Hour})
	a.queueUpdateDraw = func(f func()) { f() }
	t.Cleanup(func() { a.do(a.Close) })
	return a
}

// do runs f as if on the event loop.
func (a *App) do(f func()) {
	a.uiUpdateMu.Lock()
	defer a.uiUpdateMu.Unlock()
	f()
}

func (a *App) press(key tcell.Key, r rune) {
	a.do(func() { a.handleKey(tcell.NewEventKey(key, r, tcell.ModNone)) })
}

func (a *App) typeRune(r rune) {
	a.press(tcell.KeyRune, r)
}

func (a *App) top() screen.Screen {
	var s screen.Screen
	a.do(func() { s = a.snapshot.Top() })
	return s
}

func (a *App) hasPage(name string) bool {
	var ok bool
	a.do(func() { ok = a.pages.HasPage(name) })
	return ok
}

func (a *App) statusText() string {
	var s string
	a.do(func() { s = a.statusBar.GetText(true) })
	return s
}

func (a *App) rows() []int64 {
	var ids []int64
	a.do(func() { ids = append(ids, a.rowIDs...) })
	return ids
}

func startApp(t *testing.T, a *App, rows int) {
	t.Helper()
	a.do(a.ctrl.Start)
	waitForCondition(t, 2*time.Second, func() bool {
		top := a.top()
		return top.State.Tag != screen.TagLoading && len(a.rows()) == rows
	})
}

func TestApp_StartShowsIssues(t *testing.T) {
	stub := gatewaytest.New(
		gateway.Issue{ID: 1, Title: "Old issue", Description: "first"},
		gateway.Issue{ID: 2, Title: "Fix login bug", Description: "second", Status: gateway.StatusStarted},
	)
	a := newTestApp(t, stub)
	startApp(t, a, 2)

	if got := a.rows(); got[0] != 2 || got[1] != 1 {
		t.Errorf("rows = %v, want newest first [2 1]", got)
	}
	var cell string
	a.do(func() { cell = a.issuesTable.GetCell(1, 1).Text })
	if cell != "Fix login bug" {
		t.Errorf("first row summary = %q, want Fix login bug", cell)
	}
	if got := a.statusText(); !strings.Contains(got, "2 issues") {
		t.Errorf("status bar = %q, want issue count", got)
	}
}

func TestApp_EmptyListMessage(t *testing.T) {
	a := newTestApp(t, gatewaytest.New())
	a.do(a.ctrl.Start)
	waitForCondition(t, 2*time.Second, func() bool {
		return a.top().State.Tag == screen.TagEmpty
	})

	var cell string
	a.do(func() { cell = a.issuesTable.GetCell(1, 0).Text })
	if !strings.Contains(cell, "No issues found") {
		t.Errorf("message row = %q, want empty-list hint", cell)
	}
}

func TestApp_ViewAndBack(t *testing.T) {
	stub := gatewaytest.New(gateway.Issue{ID: 1, Title: "Fix login bug", Description: "Users cannot log in"})
	a := newTestApp(t, stub)
	startApp(t, a, 1)

	a.typeRune('v')
	waitForCondition(t, 2*time.Second, func() bool {
		top := a.top()
		return top.Kind == screen.KindDetail && top.State.Tag == screen.TagReady
	})

	var page, text string
	a.do(func() {
		page = a.contentPage
		text = a.detailsDescriptionView.GetText(true)
	})
	if page != pageDetail {
		t.Errorf("content page = %q, want %q", page, pageDetail)
	}
	if !strings.Contains(text, "Fix login bug") || !strings.Contains(text, "log in") {
		t.Errorf("detail text = %q, want title and description", text)
	}

	a.press(tcell.KeyEscape, 0)
	if top := a.top(); top.Kind != screen.KindList {
		t.Fatalf("top after Esc = %s, want list", top.Kind)
	}
	a.do(func() { page = a.contentPage })
	if page != pageList {
		t.Errorf("content page = %q, want %q", page, pageList)
	}
}

func TestApp_DeleteStartedIssueShowsNotice(t *testing.T) {
	stub := gatewaytest.New(gateway.Issue{ID: 7, Description: "in flight", Status: gateway.StatusStarted})
	a := newTestApp(t, stub)
	startApp(t, a, 1)

	a.typeRune('d')

	if a.hasPage(pageConfirm) {
		t.Error("confirmation shown for a started issue")
	}
	if got := a.statusText(); !strings.Contains(got, "Only pending issues can be deleted") {
		t.Errorf("status bar = %q, want delete rejection", got)
	}
	if n := stub.Count(gatewaytest.DeleteIssue); n != 0 {
		t.Errorf("DeleteIssue calls = %d, want 0", n)
	}
}

func TestApp_ConfirmDelete(t *testing.T) {
	stub := gatewaytest.New(gateway.Issue{ID: 3, Description: "obsolete"})
	a := newTestApp(t, stub)
	startApp(t, a, 1)

	a.typeRune('d')
	if !a.hasPage(pageConfirm) {
		t.Fatal("confirmation not shown")
	}
	if got := a.statusText(); !strings.Contains(got, "auto-refresh paused") {
		t.Errorf("status bar = %q, want paused marker under a modal", got)
	}

	a.do(func() { _ = a.ctrl.Confirm() })
	if a.hasPage(pageConfirm) {
		t.Error("confirmation still shown after Confirm")
	}
	waitForCondition(t, 2*time.Second, func() bool {
		return stub.Count(gatewaytest.DeleteIssue) == 1 && len(a.rows()) == 0
	})
}

func TestApp_CreateFromForm(t *testing.T) {
	stub := gatewaytest.New(gateway.Issue{ID: 1, Description: "existing"})
	a := newTestApp(t, stub)
	startApp(t, a, 1)

	a.typeRune('n')
	if !a.hasPage(pageForm) {
		t.Fatal("form not shown after n")
	}

	// An empty description keeps the form open with a notice.
	a.press(tcell.KeyCtrlS, 0)
	var notice string
	a.do(func() { notice = a.formModal.noticeView.GetText(true) })
	if !a.hasPage(pageForm) || notice == "" {
		t.Fatalf("form shown = %t, notice = %q; want form kept with a notice", a.hasPage(pageForm), notice)
	}

	a.do(func() {
		a.formModal.form.GetFormItemByLabel(labelTitle).(*tview.InputField).SetText("Fix login bug")
		a.formModal.form.GetFormItemByLabel(labelDescription).(*tview.TextArea).SetText("Users cannot log in", true)
	})
	a.press(tcell.KeyCtrlS, 0)

	if a.hasPage(pageForm) {
		t.Error("form still shown after a valid submit")
	}
	waitForCondition(t, 2*time.Second, func() bool {
		return len(a.rows()) == 2
	})
	if n := stub.Count(gatewaytest.CreateIssue); n != 1 {
		t.Errorf("CreateIssue calls = %d, want 1", n)
	}
}

func TestApp_FormCancel(t *testing.T) {
	a := newTestApp(t, gatewaytest.New(gateway.Issue{ID: 1, Description: "existing"}))
	startApp(t, a, 1)

	a.typeRune('n')
	a.do(a.formModal.cancel)

	if a.hasPage(pageForm) {
		t.Error("form still shown after cancel")
	}
	if top := a.top(); top.Kind != screen.KindList {
		t.Errorf("top = %s, want list", top.Kind)
	}
}

func TestApp_HelpOverlay(t *testing.T) {
	a := newTestApp(t, gatewaytest.New(gateway.Issue{ID: 1, Description: "existing"}))
	startApp(t, a, 1)

	a.typeRune('?')
	if !a.hasPage(pageHelp) {
		t.Fatal("help not shown")
	}
	var text string
	a.do(func() { text = a.helpView.GetText(true) })
	if !strings.Contains(text, "New issue") {
		t.Errorf("help = %q, want list commands", text)
	}

	// Command keys are swallowed while help is open.
	a.typeRune('n')
	if a.hasPage(pageForm) {
		t.Error("form opened under help")
	}

	a.press(tcell.KeyEscape, 0)
	if a.hasPage(pageHelp) {
		t.Error("help still shown after Esc")
	}
}

func TestApp_InvalidTransitionNoCall(t *testing.T) {
	stub := gatewaytest.New(gateway.Issue{ID: 5, Description: "new work"})
	a := newTestApp(t, stub)
	startApp(t, a, 1)

	a.typeRune('f')

	if got := a.statusText(); !strings.Contains(got, "That status change is not allowed") {
		t.Errorf("status bar = %q, want transition rejection", got)
	}
	if n := stub.Count(gatewaytest.UpdateStatus); n != 0 {
		t.Errorf("UpdateStatus calls = %d, want 0", n)
	}
}

func TestApp_AssignFromPicker(t *testing.T) {
	stub := gatewaytest.New(gateway.Issue{ID: 5, Description: "needs a worker"})
	a := newTestApp(t, stub)
	startApp(t, a, 1)

	a.typeRune('a')
	if !a.hasPage(pageForm) {
		t.Fatal("picker not shown after a")
	}
	a.do(func() {
		dd := a.formModal.form.GetFormItemByLabel(labelWorker).(*tview.DropDown)
		dd.SetCurrentOption(optionIndex(workerOptions(), "executor-3"))
	})
	a.press(tcell.KeyCtrlS, 0)

	if a.hasPage(pageForm) {
		t.Error("picker still shown after submit")
	}
	waitForCondition(t, 2*time.Second, func() bool {
		return strings.Contains(a.statusText(), "Issue #5 assigned to Executor 3")
	})
	var cell string
	a.do(func() { cell = a.issuesTable.GetCell(1, 4).Text })
	if cell != "Executor 3" {
		t.Errorf("worker cell = %q, want Executor 3", cell)
	}
	if n := stub.Count(gatewaytest.UpdateAssignment); n != 1 {
		t.Errorf("UpdateAssignment calls = %d, want 1", n)
	}
}

func TestApp_WorkflowOnStartedIssueShowsNotice(t *testing.T) {
	stub := gatewaytest.New(gateway.Issue{ID: 5, Description: "in progress", Status: gateway.StatusStarted})
	a := newTestApp(t, stub)
	startApp(t, a, 1)

	a.typeRune('w')

	if a.hasPage(pageForm) {
		t.Error("picker shown for a started issue")
	}
	if got := a.statusText(); !strings.Contains(got, "Only pending issues can have workflow set") {
		t.Errorf("status bar = %q, want pending-only notice", got)
	}
	if n := stub.Count(gatewaytest.UpdateWorkflow); n != 0 {
		t.Errorf("UpdateWorkflow calls = %d, want 0", n)
	}
}

func TestApp_RetryAfterFailedLoad(t *testing.T) {
	stub := gatewaytest.New(gateway.Issue{ID: 1, Description: "existing"})
	stub.Fail(gatewaytest.ListIssues, gateway.ErrTransport)
	a := newTestApp(t, stub)
	startApp(t, a, 0)
	if tag := a.top().State.Tag; tag != screen.TagError {
		t.Fatalf("tag = %s, want error", tag)
	}

	a.typeRune('r')
	waitForCondition(t, 2*time.Second, func() bool { return len(a.rows()) == 1 })
}
