package tui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/bleue/bleue-tui/internal/gateway"
	"github.com/bleue/bleue-tui/internal/logger"
	"github.com/bleue/bleue-tui/internal/screen"
)

const (
	labelTitle       = "Title"
	labelDescription = "Description"
	labelComment     = "Comment"
	labelWorker      = "Worker"
	labelWorkflow    = "Workflow"
)

// workerOptions lists the picker values, unassigned first.
func workerOptions() []string {
	return append([]string{""}, gateway.Workers...)
}

// optionIndex returns the position of value in options, or 0.
func optionIndex[T comparable](options []T, value T) int {
	for i, o := range options {
		if o == value {
			return i
		}
	}
	return 0
}

// FormModal is the overlay used to create an issue, edit a description,
// add a comment or pick a worker or workflow.
type FormModal struct {
	app          *App
	modal        *tview.Flex
	modalContent *tview.Flex
	form         *tview.Form
	noticeView   *tview.TextView
	helpView     *tview.TextView
	kind         screen.Kind
}

// NewFormModal creates the form overlay.
func NewFormModal(app *App) *FormModal {
	fm := &FormModal{app: app}

	fm.form = tview.NewForm()
	fm.form.SetItemPadding(1).
		SetButtonsAlign(tview.AlignRight).
		SetFieldBackgroundColor(app.theme.Background).
		SetFieldTextColor(app.theme.Foreground).
		SetLabelColor(app.theme.SecondaryText).
		SetButtonBackgroundColor(app.theme.SelectionBg).
		SetButtonTextColor(app.theme.Foreground).
		SetBackgroundColor(app.theme.HeaderBg)
	fm.form.SetCancelFunc(fm.cancel)

	fm.noticeView = tview.NewTextView()
	fm.noticeView.SetDynamicColors(true).
		SetBackgroundColor(app.theme.HeaderBg)

	fm.helpView = tview.NewTextView()
	fm.helpView.SetText("Ctrl+S: save • Tab: next field • Esc: cancel")
	fm.helpView.SetTextColor(app.theme.SecondaryText)
	fm.helpView.SetBackgroundColor(app.theme.HeaderBg)
	fm.helpView.SetTextAlign(tview.AlignCenter)

	fm.modalContent = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(fm.form, 0, 1, true).
		AddItem(fm.noticeView, 1, 0, false).
		AddItem(fm.helpView, 1, 0, false)
	fm.modalContent.SetBackgroundColor(app.theme.HeaderBg)
	fm.modalContent.SetBorder(true).
		SetBorderColor(app.theme.Accent).
		SetTitleColor(app.theme.Foreground)
	fm.modalContent.SetBorderPadding(0, 0, 1, 1)

	fm.modal = tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(fm.modalContent, 20, 0, true).
			AddItem(nil, 0, 1, false), 90, 0, true).
		AddItem(nil, 0, 1, false)

	return fm
}

// Show fills the form for the modal screen s and displays it.
func (fm *FormModal) Show(s screen.Screen) {
	fm.kind = s.Kind
	fm.form.Clear(true)

	switch s.Kind {
	case screen.KindCreate:
		fm.modalContent.SetTitle(" New issue ")
		fm.form.AddInputField(labelTitle, "", 0, nil, nil)
		fm.form.AddTextArea(labelDescription, "", 0, 8, 0, nil)
		fm.form.AddButton("Create", fm.submit)
	case screen.KindEdit:
		description := ""
		if s.State.Issue != nil {
			description = s.State.Issue.Description
		}
		fm.modalContent.SetTitle(fmt.Sprintf(" Edit #%d ", s.IssueID))
		fm.form.AddTextArea(labelDescription, description, 0, 10, 0, nil)
		fm.form.AddButton("Save", fm.submit)
	case screen.KindComment:
		fm.modalContent.SetTitle(fmt.Sprintf(" Comment on #%d ", s.IssueID))
		fm.form.AddTextArea(labelComment, "", 0, 8, 0, nil)
		fm.form.AddButton("Add", fm.submit)
	case screen.KindAssign:
		var current string
		if s.State.Issue != nil {
			current = s.State.Issue.AssignedTo
		}
		options := workerOptions()
		names := make([]string, len(options))
		for i, w := range options {
			names[i] = screen.WorkerName(w)
		}
		fm.modalContent.SetTitle(fmt.Sprintf(" Assign #%d ", s.IssueID))
		fm.form.AddDropDown(labelWorker, names, optionIndex(options, current), nil)
		fm.form.AddButton("Assign", fm.submit)
	case screen.KindWorkflow:
		var current gateway.Workflow
		if s.State.Issue != nil {
			current = s.State.Issue.Workflow
		}
		names := make([]string, len(gateway.Workflows))
		for i, w := range gateway.Workflows {
			names[i] = screen.WorkflowName(w)
		}
		fm.modalContent.SetTitle(fmt.Sprintf(" Workflow for #%d ", s.IssueID))
		fm.form.AddDropDown(labelWorkflow, names, optionIndex(gateway.Workflows, current), nil)
		fm.form.AddButton("Set", fm.submit)
	}
	fm.form.AddButton("Cancel", fm.cancel)
	fm.SetNotice(s.State.Notice)

	fm.app.pages.AddPage(pageForm, fm.modal, true, true)
	fm.app.pages.SendToFront(pageForm)
	fm.app.app.SetFocus(fm.form)
}

// Hide removes the form overlay.
func (fm *FormModal) Hide() {
	fm.app.pages.RemovePage(pageForm)
}

// SetNotice shows n under the form.
func (fm *FormModal) SetNotice(n *screen.Notice) {
	fm.noticeView.SetText(noticeText(n, fm.app.tags))
}

// HandleKey handles keys the form itself does not.
func (fm *FormModal) HandleKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyCtrlS {
		fm.submit()
		return nil
	}
	return event
}

func (fm *FormModal) submit() {
	var err error
	switch fm.kind {
	case screen.KindCreate:
		err = fm.app.ctrl.SubmitCreate(fm.text(labelDescription), fm.text(labelTitle))
	case screen.KindEdit:
		err = fm.app.ctrl.SubmitEdit(fm.text(labelDescription))
	case screen.KindComment:
		err = fm.app.ctrl.SubmitComment(fm.text(labelComment))
	case screen.KindAssign:
		err = fm.app.ctrl.SubmitAssign(workerOptions()[fm.choice(labelWorker)])
	case screen.KindWorkflow:
		err = fm.app.ctrl.SubmitWorkflow(gateway.Workflows[fm.choice(labelWorkflow)])
	}
	if err != nil {
		logger.Debug("tui.form: %s rejected: %v", fm.kind, err)
	}
}

func (fm *FormModal) cancel() {
	_ = fm.app.ctrl.Dismiss()
}

func (fm *FormModal) text(label string) string {
	switch item := fm.form.GetFormItemByLabel(label).(type) {
	case *tview.InputField:
		return item.GetText()
	case *tview.TextArea:
		return item.GetText()
	}
	return ""
}

// choice returns the selected index of the drop-down labelled label.
func (fm *FormModal) choice(label string) int {
	if dd, ok := fm.form.GetFormItemByLabel(label).(*tview.DropDown); ok {
		if i, _ := dd.GetCurrentOption(); i >= 0 {
			return i
		}
	}
	return 0
}
