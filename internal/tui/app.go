package tui

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/bleue/bleue-tui/internal/cache"
	"github.com/bleue/bleue-tui/internal/clock"
	"github.com/bleue/bleue-tui/internal/config"
	"github.com/bleue/bleue-tui/internal/gateway"
	"github.com/bleue/bleue-tui/internal/logger"
	"github.com/bleue/bleue-tui/internal/navigation"
	"github.com/bleue/bleue-tui/internal/screen"
)

const (
	pageMain    = "main"
	pageConfirm = "confirm"
	pageForm    = "form"
	pageHelp    = "help"

	pageList   = "list"
	pageDetail = "detail"
)

// App is the main application controller that manages all UI components.
// Everything below runs on the tview event loop, which is also the
// control thread of the cache and the navigation controller.
type App struct {
	app      *tview.Application
	config   config.Config
	theme    Theme
	tags     ThemeTags
	repo     *cache.Repository
	ctrl     *navigation.Controller
	commands []Command
	markdown *markdownRenderer

	// UI components
	pages                  *tview.Pages
	mainLayout             *tview.Flex
	header                 *tview.TextView
	content                *tview.Pages
	issuesTable            *tview.Table
	detailsView            *tview.Flex     // Flex container for details (description + comments)
	detailsDescriptionView *tview.TextView // Scrollable description/metadata view
	detailsCommentsView    *tview.TextView // Scrollable comments view
	statusBar              *tview.TextView
	confirmModal           *tview.Modal
	formModal              *FormModal
	helpView               *tview.TextView

	// Render state
	snapshot    navigation.Snapshot
	rowIDs      []int64
	selectedID  int64
	contentPage string
	modalKey    string
	hint        string

	// Details pane sub-view focus
	focusedComments bool

	queueUpdateDraw func(func())

	// UI update mutex (for test safety when queueUpdateDraw executes immediately)
	uiUpdateMu sync.Mutex

	unsubscribe func()
}

// NewApp creates a new application instance backed by gw.
func NewApp(gw gateway.Gateway, cfg config.Config) *App {
	theme := DefaultTheme()
	a := &App{
		app:      tview.NewApplication(),
		config:   cfg,
		theme:    theme,
		tags:     NewThemeTags(theme),
		commands: DefaultCommands(),
		markdown: newMarkdownRenderer(),
		pages:    tview.NewPages(),
	}
	a.queueUpdateDraw = func(f func()) {
		a.app.QueueUpdateDraw(f)
	}

	a.repo = cache.New(gw, a.QueueUpdateDraw)
	a.ctrl = navigation.NewController(navigation.Config{
		Repo:     a.repo,
		Clock:    clock.Real(),
		Post:     a.QueueUpdateDraw,
		Interval: cfg.RefreshInterval,
	})

	a.applyThemeStyles()
	a.buildLayout()
	a.bindGlobalKeys()
	a.unsubscribe = a.ctrl.Subscribe(a.render)

	return a
}

// Run starts the application and blocks until it exits.
func (a *App) Run() error {
	a.app.SetRoot(a.pages, true).EnableMouse(true)
	a.ctrl.Start()
	defer a.Close()

	logger.Info("tui.app: running backend=%s", a.config.Backend())
	return a.app.Run()
}

// Close stops periodic refresh and drops every outstanding request.
func (a *App) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	a.ctrl.Close()
	a.repo.Close()
}

// QueueUpdateDraw queues a UI update function to be run in the main thread.
func (a *App) QueueUpdateDraw(f func()) {
	if a.queueUpdateDraw != nil {
		// Serialize UI updates when test overrides queueUpdateDraw to execute immediately
		a.uiUpdateMu.Lock()
		defer a.uiUpdateMu.Unlock()
		a.queueUpdateDraw(f)
		return
	}
	a.app.QueueUpdateDraw(f)
}

func (a *App) buildLayout() {
	a.header = tview.NewTextView().SetDynamicColors(true)
	a.header.SetBackgroundColor(a.theme.HeaderBg)

	a.issuesTable = a.buildIssuesTable()
	a.detailsView = a.buildDetailsView()

	a.content = tview.NewPages()
	a.content.AddPage(pageList, a.issuesTable, true, true)
	a.content.AddPage(pageDetail, a.detailsView, true, false)
	a.contentPage = pageList

	a.statusBar = tview.NewTextView().SetDynamicColors(true)
	a.statusBar.SetBackgroundColor(a.theme.HeaderBg)

	a.mainLayout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.header, 1, 0, false).
		AddItem(a.content, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.formModal = NewFormModal(a)

	a.helpView = tview.NewTextView().SetDynamicColors(false)
	a.helpView.SetBorder(true).
		SetTitle(" Keys ").
		SetBorderColor(a.theme.Accent).
		SetBackgroundColor(a.theme.HeaderBg)
	a.helpView.SetBorderPadding(0, 0, 1, 1)

	a.pages.AddPage(pageMain, a.mainLayout, true, true)
	a.app.SetFocus(a.issuesTable)
}

func (a *App) buildIssuesTable() *tview.Table {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true).
		SetTitle(" Issues ").
		SetBorderColor(a.theme.Border)
	table.SetSelectedStyle(tcell.StyleDefault.
		Background(a.theme.SelectionBg).
		Foreground(a.theme.Foreground))
	table.SetSelectionChangedFunc(func(row, column int) {
		if id, ok := a.rowID(row); ok {
			a.selectedID = id
		}
	})
	table.SetSelectedFunc(func(row, column int) {
		a.run(a.command("view"))
	})
	return table
}

func (a *App) buildDetailsView() *tview.Flex {
	a.detailsDescriptionView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)
	a.detailsDescriptionView.SetBorder(true).SetBorderColor(a.theme.Border)

	a.detailsCommentsView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)
	a.detailsCommentsView.SetBorder(true).
		SetTitle(" Comments ").
		SetBorderColor(a.theme.Border)

	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.detailsDescriptionView, 0, 3, true).
		AddItem(a.detailsCommentsView, 0, 2, false)
}

// bindGlobalKeys sets up global keyboard shortcuts.
func (a *App) bindGlobalKeys() {
	a.app.SetInputCapture(a.handleKey)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyCtrlC {
		a.app.Stop()
		return nil
	}

	if a.pages.HasPage(pageHelp) {
		if event.Key() == tcell.KeyEscape ||
			(event.Key() == tcell.KeyRune && (event.Rune() == '?' || event.Rune() == 'q')) {
			a.hideHelp()
		}
		return nil
	}

	top := a.snapshot.Top()
	if top.Kind.Modal() {
		if a.pages.HasPage(pageForm) {
			return a.formModal.HandleKey(event)
		}
		return event
	}

	switch event.Key() {
	case tcell.KeyEscape, tcell.KeyBackspace, tcell.KeyBackspace2:
		a.ctrl.Back()
		return nil
	case tcell.KeyDelete:
		a.run(a.command("delete"))
		return nil
	case tcell.KeyTab, tcell.KeyBacktab:
		if top.Kind == screen.KindDetail {
			a.focusedComments = !a.focusedComments
			a.updateFocus()
		}
		return nil
	case tcell.KeyRune:
		for _, cmd := range a.commands {
			if cmd.ShortcutRune == event.Rune() && cmd.AppliesTo(top.Kind) {
				a.run(cmd)
				return nil
			}
		}
	}
	return event
}

func (a *App) command(id string) Command {
	for _, cmd := range a.commands {
		if cmd.ID == id {
			return cmd
		}
	}
	return Command{}
}

// run executes cmd. Rejections the controller already reported on the
// screen are only logged.
func (a *App) run(cmd Command) {
	if cmd.Run == nil {
		return
	}
	err := cmd.Run(a)
	switch {
	case err == nil:
		if cmd.ID == "copy_id" {
			id, _ := a.currentIssueID()
			a.setHint(fmt.Sprintf("Copied #%d", id))
		}
	case errors.Is(err, errNoIssueSelected), errors.Is(err, navigation.ErrNotAvailable):
		logger.Debug("tui.app: %s ignored: %v", cmd.ID, err)
		a.setHint(capitalizeFirst(err.Error()))
	default:
		logger.Debug("tui.app: %s rejected: %v", cmd.ID, err)
	}
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// setHint shows a transient message in the status bar until the next
// snapshot.
func (a *App) setHint(text string) {
	a.hint = text
	a.updateStatusBar()
}

func (a *App) rowID(row int) (int64, bool) {
	i := row - 1
	if i < 0 || i >= len(a.rowIDs) {
		return 0, false
	}
	return a.rowIDs[i], true
}

// currentIssueID returns the issue the user is looking at: the open
// detail, or the selected list row.
func (a *App) currentIssueID() (int64, bool) {
	top := a.snapshot.Top()
	switch top.Kind {
	case screen.KindDetail:
		return top.IssueID, true
	case screen.KindList:
		for _, id := range a.rowIDs {
			if id == a.selectedID {
				return id, true
			}
		}
	}
	return 0, false
}

func (a *App) openSelected() error {
	if a.snapshot.Top().Kind != screen.KindList {
		return navigation.ErrNotAvailable
	}
	id, ok := a.currentIssueID()
	if !ok {
		return errNoIssueSelected
	}
	return a.ctrl.Open(id)
}

func (a *App) showHelp() {
	kind := a.snapshot.Top().Kind
	a.helpView.SetText(helpText(a.commands, kind) + "\n\nEsc to close")
	lines := strings.Count(a.helpView.GetText(false), "\n") + 3

	modal := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(a.helpView, lines, 0, true).
			AddItem(nil, 0, 1, false), 44, 0, true).
		AddItem(nil, 0, 1, false)
	a.pages.AddPage(pageHelp, modal, true, true)
	a.app.SetFocus(a.helpView)
}

func (a *App) hideHelp() {
	a.pages.RemovePage(pageHelp)
	a.updateFocus()
}

// render draws a snapshot published by the navigation controller.
func (a *App) render(snap navigation.Snapshot) {
	a.snapshot = snap
	a.hint = ""
	base, modal := splitScreens(snap.Screens)

	switch base.Kind {
	case screen.KindDetail:
		a.renderDetail(base)
		a.switchContent(pageDetail)
	default:
		a.renderList(base)
		a.switchContent(pageList)
	}

	a.syncModal(modal)
	a.header.SetText(fmt.Sprintf(" %sbleue[-] %s  %s%s[-]",
		a.tags.Accent, breadcrumb(snap.Screens), a.tags.SecondaryText, tview.Escape(a.config.Backend())))
	a.updateStatusBar()
}

func (a *App) switchContent(page string) {
	if a.contentPage == page {
		return
	}
	a.contentPage = page
	a.focusedComments = false
	a.content.SwitchToPage(page)
	a.updateFocus()
}

func (a *App) renderList(s screen.Screen) {
	table := a.issuesTable
	table.Clear()

	headers := []string{"ID", "Summary", "Status", "Workflow", "Worker", "Created"}
	for col, h := range headers {
		table.SetCell(0, col, tview.NewTableCell(h).
			SetTextColor(a.theme.SecondaryText).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}

	a.rowIDs = a.rowIDs[:0]
	message := ""
	switch {
	case s.State.Tag == screen.TagError:
		message = a.tags.Error + tview.Escape(s.State.Err) + "[-]"
	case s.State.Tag == screen.TagEmpty:
		message = a.tags.SecondaryText + "No issues found. Press n to create one.[-]"
	case s.State.Tag == screen.TagLoading && len(s.State.Issues) == 0:
		message = a.tags.SecondaryText + "Loading issues…[-]"
	}
	if message != "" {
		table.SetCell(1, 0, tview.NewTableCell(message).
			SetSelectable(false).
			SetExpansion(1))
	}
	if s.State.Tag == screen.TagError || s.State.Tag == screen.TagEmpty {
		return
	}

	selectRow := 0
	for i, is := range s.State.Issues {
		row := i + 1
		for col, text := range issueCells(is, a.tags) {
			cell := tview.NewTableCell(text)
			if col == 1 {
				cell.SetExpansion(1)
			}
			table.SetCell(row, col, cell)
		}
		a.rowIDs = append(a.rowIDs, is.ID)
		if is.ID == a.selectedID {
			selectRow = row
		}
	}
	if len(a.rowIDs) == 0 {
		return
	}
	if selectRow == 0 {
		selectRow = 1
	}
	table.Select(selectRow, 0)
	a.selectedID = a.rowIDs[selectRow-1]
}

func (a *App) renderDetail(s screen.Screen) {
	a.detailsDescriptionView.SetTitle(fmt.Sprintf(" Issue #%d ", s.IssueID))
	_, _, width, _ := a.detailsDescriptionView.GetInnerRect()

	var b strings.Builder
	if s.State.Tag == screen.TagError {
		fmt.Fprintf(&b, "%s%s[-]\n\n", a.tags.Error, tview.Escape(s.State.Err))
	}
	switch {
	case s.State.Issue != nil:
		b.WriteString(detailHeader(*s.State.Issue, s.State.Pending, a.tags))
		b.WriteString("\n")
		if desc := a.markdown.Render(s.State.Issue.Description, width); desc != "" {
			b.WriteString(desc)
		} else {
			b.WriteString(a.tags.SecondaryText + "No description[-]")
		}
	case s.State.Tag == screen.TagLoading:
		b.WriteString(a.tags.SecondaryText + "Loading issue…[-]")
	}
	a.detailsDescriptionView.SetText(b.String())

	if s.State.Issue == nil {
		a.detailsCommentsView.SetText("")
		return
	}
	a.detailsCommentsView.SetTitle(fmt.Sprintf(" Comments (%d) ", len(s.State.Comments)))
	a.detailsCommentsView.SetText(commentsText(s.State.Comments, a.markdown, width, a.tags))
}

// syncModal shows the overlay for modal, rebuilding it only when a
// different modal comes on top.
func (a *App) syncModal(modal *screen.Screen) {
	key := ""
	if modal != nil {
		key = fmt.Sprintf("%s:%d", modal.Kind, modal.IssueID)
	}
	if key == a.modalKey {
		if modal != nil && modal.Kind != screen.KindConfirmDelete {
			a.formModal.SetNotice(modal.State.Notice)
		}
		return
	}

	a.pages.RemovePage(pageConfirm)
	a.formModal.Hide()
	a.modalKey = key

	switch {
	case modal == nil:
		a.updateFocus()
	case modal.Kind == screen.KindConfirmDelete:
		a.showConfirm(*modal)
	default:
		a.formModal.Show(*modal)
	}
}

func (a *App) showConfirm(s screen.Screen) {
	text := fmt.Sprintf("Delete issue #%d?", s.IssueID)
	if s.State.Issue != nil {
		text = fmt.Sprintf("Delete issue #%d?\n\n%s", s.IssueID, truncate(s.State.Issue.Summary(), 60))
	}

	a.confirmModal = tview.NewModal().
		SetText(text).
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			if buttonLabel == "Delete" {
				_ = a.ctrl.Confirm()
				return
			}
			_ = a.ctrl.Dismiss()
		})
	a.confirmModal.SetBackgroundColor(a.theme.HeaderBg)
	a.confirmModal.SetTextColor(a.theme.Foreground).
		SetButtonBackgroundColor(a.theme.SelectionBg).
		SetButtonTextColor(a.theme.Foreground)

	a.pages.AddPage(pageConfirm, a.confirmModal, false, true)
	a.app.SetFocus(a.confirmModal)
}

// updateFocus focuses the active content pane.
func (a *App) updateFocus() {
	if a.modalKey != "" || a.pages.HasPage(pageHelp) {
		return
	}
	if a.contentPage == pageDetail {
		a.detailsDescriptionView.SetBorderColor(a.theme.Border)
		a.detailsCommentsView.SetBorderColor(a.theme.Border)
		if a.focusedComments {
			a.detailsCommentsView.SetBorderColor(a.theme.Accent)
			a.app.SetFocus(a.detailsCommentsView)
			return
		}
		a.detailsDescriptionView.SetBorderColor(a.theme.Accent)
		a.app.SetFocus(a.detailsDescriptionView)
		return
	}
	a.app.SetFocus(a.issuesTable)
}

func (a *App) updateStatusBar() {
	base, _ := splitScreens(a.snapshot.Screens)
	text := statusBarText(base, a.snapshot.Paused, shortHelp(a.snapshot.Top().Kind), a.tags)
	if a.hint != "" {
		text += a.tags.Border + " | [-]" + a.tags.Warning + tview.Escape(a.hint) + "[-]"
	}
	a.statusBar.SetText(text)
}
