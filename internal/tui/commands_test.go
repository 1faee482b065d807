package tui

import (
	"strings"
	"testing"

	"github.com/bleue/bleue-tui/internal/screen"
)

func TestDefaultCommands_UniqueShortcuts(t *testing.T) {
	seen := make(map[rune]string)
	ids := make(map[string]bool)
	for _, cmd := range DefaultCommands() {
		if ids[cmd.ID] {
			t.Errorf("duplicate command id %q", cmd.ID)
		}
		ids[cmd.ID] = true
		if cmd.Run == nil {
			t.Errorf("command %q has no Run", cmd.ID)
		}
		if cmd.ShortcutRune == 0 {
			continue
		}
		if other, ok := seen[cmd.ShortcutRune]; ok {
			t.Errorf("shortcut %q used by %q and %q", cmd.ShortcutRune, other, cmd.ID)
		}
		seen[cmd.ShortcutRune] = cmd.ID
	}
}

func TestCommand_AppliesTo(t *testing.T) {
	cmds := make(map[string]Command)
	for _, cmd := range DefaultCommands() {
		cmds[cmd.ID] = cmd
	}

	tests := []struct {
		id   string
		kind screen.Kind
		want bool
	}{
		{"new", screen.KindList, true},
		{"new", screen.KindDetail, false},
		{"edit", screen.KindDetail, true},
		{"edit", screen.KindList, false},
		{"delete", screen.KindList, true},
		{"delete", screen.KindDetail, true},
		{"assign", screen.KindList, true},
		{"assign", screen.KindDetail, true},
		{"workflow", screen.KindDetail, true},
		{"workflow", screen.KindAssign, false},
		{"help", screen.KindDetail, true},
		{"quit", screen.KindList, true},
	}
	for _, tt := range tests {
		if got := cmds[tt.id].AppliesTo(tt.kind); got != tt.want {
			t.Errorf("%s.AppliesTo(%s) = %t, want %t", tt.id, tt.kind, got, tt.want)
		}
	}
}

func TestCommand_Shortcut(t *testing.T) {
	if got := (Command{ShortcutRune: 'r'}).Shortcut(); got != "r" {
		t.Errorf("Shortcut() = %q, want r", got)
	}
	if got := (Command{ShortcutRune: 'v', ShortcutDisplay: "Enter/v"}).Shortcut(); got != "Enter/v" {
		t.Errorf("Shortcut() = %q, want Enter/v", got)
	}
	if got := FormatShortcut(0); got != "" {
		t.Errorf("FormatShortcut(0) = %q, want empty", got)
	}
}

func TestHelpText(t *testing.T) {
	list := helpText(DefaultCommands(), screen.KindList)
	if !strings.Contains(list, "New issue") {
		t.Errorf("list help = %q, want New issue", list)
	}
	if strings.Contains(list, "Edit description") {
		t.Errorf("list help = %q, want no detail-only commands", list)
	}

	detail := helpText(DefaultCommands(), screen.KindDetail)
	for _, want := range []string{"Edit description", "Add comment", "Esc"} {
		if !strings.Contains(detail, want) {
			t.Errorf("detail help = %q, want it to contain %q", detail, want)
		}
	}
}
