package tui

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/bleue/bleue-tui/internal/gateway"
	"github.com/bleue/bleue-tui/internal/logger"
	"github.com/bleue/bleue-tui/internal/navigation"
	"github.com/bleue/bleue-tui/internal/screen"
)

// FormatShortcut returns a human-readable string for a shortcut.
func FormatShortcut(r rune) string {
	if r == 0 {
		return ""
	}
	return string(r)
}

// Command is a keyboard action.
type Command struct {
	ID              string
	Title           string
	ShortcutRune    rune   // The rune for the keyboard shortcut (e.g., 'r' for refresh)
	ShortcutDisplay string // Custom display text for shortcut (e.g., "Esc"), overrides ShortcutRune display
	// Screens lists where the command applies. Empty means everywhere.
	Screens []screen.Kind
	Run     func(a *App) error
}

// Shortcut returns the key shown for the command.
func (c Command) Shortcut() string {
	if c.ShortcutDisplay != "" {
		return c.ShortcutDisplay
	}
	return FormatShortcut(c.ShortcutRune)
}

// AppliesTo reports whether the command is offered on screens of kind.
func (c Command) AppliesTo(kind screen.Kind) bool {
	if len(c.Screens) == 0 {
		return true
	}
	for _, k := range c.Screens {
		if k == kind {
			return true
		}
	}
	return false
}

var listAndDetail = []screen.Kind{screen.KindList, screen.KindDetail}

// DefaultCommands returns the default set of commands.
func DefaultCommands() []Command {
	return []Command{
		{
			ID:           "new",
			Title:        "New issue",
			ShortcutRune: 'n',
			Screens:      []screen.Kind{screen.KindList},
			Run:          func(a *App) error { return a.ctrl.BeginCreate() },
		},
		{
			ID:              "view",
			Title:           "View issue",
			ShortcutRune:    'v',
			ShortcutDisplay: "Enter/v",
			Screens:         []screen.Kind{screen.KindList},
			Run:             func(a *App) error { return a.openSelected() },
		},
		{
			ID:           "refresh",
			Title:        "Refresh or retry",
			ShortcutRune: 'r',
			Screens:      listAndDetail,
			Run: func(a *App) error {
				if a.snapshot.Top().State.Tag == screen.TagError {
					return a.ctrl.Retry()
				}
				return a.ctrl.Refresh()
			},
		},
		{
			ID:           "start",
			Title:        "Start issue",
			ShortcutRune: 's',
			Screens:      listAndDetail,
			Run:          statusCommand(gateway.StatusStarted),
		},
		{
			ID:           "finish",
			Title:        "Mark issue done",
			ShortcutRune: 'f',
			Screens:      listAndDetail,
			Run:          statusCommand(gateway.StatusDone),
		},
		{
			ID:           "cancel",
			Title:        "Cancel issue",
			ShortcutRune: 'x',
			Screens:      listAndDetail,
			Run:          statusCommand(gateway.StatusCancelled),
		},
		{
			ID:           "delete",
			Title:        "Delete issue",
			ShortcutRune: 'd',
			Screens:      listAndDetail,
			Run:          issueCommand(func(a *App, id int64) error { return a.ctrl.RequestDelete(id) }),
		},
		{
			ID:           "assign",
			Title:        "Assign worker",
			ShortcutRune: 'a',
			Screens:      listAndDetail,
			Run:          issueCommand(func(a *App, id int64) error { return a.ctrl.BeginAssign(id) }),
		},
		{
			ID:           "workflow",
			Title:        "Set workflow",
			ShortcutRune: 'w',
			Screens:      listAndDetail,
			Run:          issueCommand(func(a *App, id int64) error { return a.ctrl.BeginWorkflow(id) }),
		},
		{
			ID:           "edit",
			Title:        "Edit description",
			ShortcutRune: 'e',
			Screens:      []screen.Kind{screen.KindDetail},
			Run:          func(a *App) error { return a.ctrl.BeginEdit() },
		},
		{
			ID:           "comment",
			Title:        "Add comment",
			ShortcutRune: 'c',
			Screens:      []screen.Kind{screen.KindDetail},
			Run:          func(a *App) error { return a.ctrl.BeginComment() },
		},
		{
			ID:           "copy_id",
			Title:        "Copy issue ID",
			ShortcutRune: 'y',
			Screens:      listAndDetail,
			Run: func(a *App) error {
				id, ok := a.currentIssueID()
				if !ok {
					return errNoIssueSelected
				}
				return copyToClipboard(strconv.FormatInt(id, 10))
			},
		},
		{
			ID:              "back",
			Title:           "Back",
			ShortcutDisplay: "Esc",
			Screens:         []screen.Kind{screen.KindDetail},
			Run: func(a *App) error {
				if !a.ctrl.Back() {
					return navigation.ErrNotAvailable
				}
				return nil
			},
		},
		{
			ID:           "help",
			Title:        "Help",
			ShortcutRune: '?',
			Run: func(a *App) error {
				a.showHelp()
				return nil
			},
		},
		{
			ID:           "quit",
			Title:        "Quit",
			ShortcutRune: 'q',
			Run: func(a *App) error {
				a.app.Stop()
				return nil
			},
		},
	}
}

var errNoIssueSelected = errors.New("no issue selected")

// issueCommand runs fn on the issue the user is looking at.
func issueCommand(fn func(a *App, id int64) error) func(a *App) error {
	return func(a *App) error {
		id, ok := a.currentIssueID()
		if !ok {
			return errNoIssueSelected
		}
		return fn(a, id)
	}
}

func statusCommand(next gateway.Status) func(a *App) error {
	return issueCommand(func(a *App, id int64) error { return a.ctrl.ChangeStatus(id, next) })
}

// helpText lists the commands offered on screens of kind.
func helpText(commands []Command, kind screen.Kind) string {
	var b strings.Builder
	for _, cmd := range commands {
		if !cmd.AppliesTo(kind) {
			continue
		}
		fmt.Fprintf(&b, "%-8s %s\n", cmd.Shortcut(), cmd.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}

// shortHelp is the key hint shown in the status bar.
func shortHelp(kind screen.Kind) string {
	switch kind {
	case screen.KindList:
		return "Enter: view | n: new | s/f/x: status | a: assign | w: workflow | d: delete | r: refresh | ?: help | q: quit"
	case screen.KindDetail:
		return "Esc: back | e: edit | c: comment | s/f/x: status | a: assign | w: workflow | d: delete | r: refresh | ?: help"
	case screen.KindConfirmDelete:
		return "Enter: choose | Esc: cancel"
	case screen.KindAssign, screen.KindWorkflow:
		return "Enter: pick | Ctrl+S: save | Esc: cancel"
	}
	return "Ctrl+S: save | Tab: next field | Esc: cancel"
}

// copyToClipboard copies text to the system clipboard.
func copyToClipboard(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		logger.Warning("tui.commands: unsupported OS for clipboard operations os=%s", runtime.GOOS)
		return nil
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		logger.ErrorWithErr(err, "tui.commands: failed to get stdin pipe for clipboard command")
		return err
	}

	if err := cmd.Start(); err != nil {
		logger.ErrorWithErr(err, "tui.commands: failed to start clipboard command")
		return err
	}

	if _, err := stdin.Write([]byte(text)); err != nil {
		logger.ErrorWithErr(err, "tui.commands: failed to write to clipboard")
		return err
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		logger.ErrorWithErr(err, "tui.commands: clipboard command failed")
		return err
	}

	logger.Debug("tui.commands: copied to clipboard text_length=%d", len(text))
	return nil
}
