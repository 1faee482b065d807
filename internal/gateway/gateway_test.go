package gateway

import (
	"errors"
	"strings"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"pending", StatusPending},
		{"started", StatusStarted},
		{" DONE ", StatusDone},
		{"cancelled", StatusCancelled},
		{"", StatusPending},
		{"bogus", StatusPending},
	}
	for _, tt := range tests {
		if got := ParseStatus(tt.in); got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIssueSummary(t *testing.T) {
	if got := (Issue{Title: "Title", Description: "body"}).Summary(); got != "Title" {
		t.Errorf("Summary() = %q, want %q", got, "Title")
	}
	if got := (Issue{Description: "first line\nsecond"}).Summary(); got != "first line" {
		t.Errorf("Summary() = %q, want %q", got, "first line")
	}
}

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"trimmed", "  Fix login bug \n", "Fix login bug", false},
		{"exact minimum", "0123456789", "0123456789", false},
		{"multibyte counted as characters", "ééééééééééé", "ééééééééééé", false},
		{"empty", "   ", "", true},
		{"short", "123456789", "", true},
		{"long", strings.Repeat("a", MaxDescriptionLength+1), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeDescription(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("NormalizeDescription() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("NormalizeDescription() = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}

func TestParseWorkflow(t *testing.T) {
	tests := []struct {
		in   string
		want Workflow
	}{
		{"main", WorkflowMain},
		{" Patch ", WorkflowPatch},
		{"", WorkflowNone},
		{"nightly", WorkflowNone},
	}
	for _, tt := range tests {
		if got := ParseWorkflow(tt.in); got != tt.want {
			t.Errorf("ParseWorkflow(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCheckWorkerAndWorkflow(t *testing.T) {
	for _, w := range append([]string{""}, Workers...) {
		if err := CheckWorker(w); err != nil {
			t.Errorf("CheckWorker(%q) = %v, want nil", w, err)
		}
	}
	if err := CheckWorker("hailmary-9"); !errors.Is(err, ErrValidation) {
		t.Errorf("CheckWorker(unknown) = %v, want ErrValidation", err)
	}
	for _, w := range Workflows {
		if err := CheckWorkflow(w); err != nil {
			t.Errorf("CheckWorkflow(%q) = %v, want nil", w, err)
		}
	}
	if err := CheckWorkflow("nightly"); !errors.Is(err, ErrValidation) {
		t.Errorf("CheckWorkflow(nightly) = %v, want ErrValidation", err)
	}
}
