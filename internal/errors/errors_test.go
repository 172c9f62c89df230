package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{
			name:    "config error",
			code:    "C101",
			wantMsg: "Failed to parse configuration",
			wantCat: CategoryConfig,
		},
		{
			name:    "scenario error",
			code:    "C112",
			wantMsg: "Unknown cell",
			wantCat: CategoryScenario,
		},
		{
			name:    "expectation error",
			code:    "C120",
			wantMsg: "Cell value mismatch",
			wantCat: CategoryExpect,
		},
		{
			name:    "unknown error code",
			code:    "C999",
			wantMsg: "Unknown error",
			wantCat: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestNewCopiesSuggestion(t *testing.T) {
	err := New("C112")
	if err.Suggestion == "" {
		t.Error("template suggestion should be copied")
	}
	err.WithSuggestion("other")
	if tmpl, _ := GetTemplate("C112"); tmpl.Suggestion == "other" {
		t.Error("WithSuggestion must not modify the template")
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CategoryCLI, "flag %q is required", "--file")
	if err.Message != `flag "--file" is required` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Category != CategoryCLI {
		t.Errorf("Category = %q, want %q", err.Category, CategoryCLI)
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"code only", New("C112"), "C112: Unknown cell"},
		{"with detail", New("C112").WithDetail(`"total"`), `C112: Unknown cell: "total"`},
		{"with location", &Error{Code: "C113", Message: "Duplicate name", Location: &Location{File: "a.yaml", Line: 3}}, "a.yaml:3: C113: Duplicate name"},
		{"no code", &Error{Message: "test error"}, "test error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func writeScenario(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "counter.yaml")
	content := `cells:
  count: {value: 0}
steps:
  - set: count
    value: oops
  - expect: count
    value: 1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestError_WithLocation(t *testing.T) {
	path := writeScenario(t)

	err := New("C115").WithLocation(path, 5, 12)

	if err.Location == nil {
		t.Fatal("Location is nil")
	}
	if err.Location.File != path || err.Location.Line != 5 || err.Location.Column != 12 {
		t.Errorf("Location = %+v", err.Location)
	}
	want := []string{"steps:", "  - set: count", "    value: oops", "  - expect: count", "    value: 1"}
	if len(err.Context) != len(want) {
		t.Fatalf("Context = %q, want %q", err.Context, want)
	}
	for i := range want {
		if err.Context[i] != want[i] {
			t.Errorf("Context[%d] = %q, want %q", i, err.Context[i], want[i])
		}
	}
}

func TestError_WithLocationMissingFile(t *testing.T) {
	err := New("C115").WithLocation(filepath.Join(t.TempDir(), "nope.yaml"), 2, 1)
	if err.Location == nil {
		t.Fatal("Location should be set even when the file is unreadable")
	}
	if err.Context != nil {
		t.Errorf("Context = %q, want nil", err.Context)
	}
}

func TestError_Builders(t *testing.T) {
	err := New("C120").
		WithDetailf("cell %q = %v, want %v", "sum", 3, 4).
		WithSuggestion("check the step order").
		WithExample("- expect: sum\n  value: 3")

	if err.Detail != `cell "sum" = 3, want 4` {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Suggestion != "check the step order" {
		t.Errorf("Suggestion = %q", err.Suggestion)
	}
	if !strings.Contains(err.Example, "expect: sum") {
		t.Errorf("Example = %q", err.Example)
	}
}

func TestError_Wrap(t *testing.T) {
	inner := fmt.Errorf("disk full")
	outer := New("C130").Wrap(inner)

	if outer.Unwrap() != inner {
		t.Error("Unwrap() should return wrapped error")
	}
	if !stderrors.Is(outer, inner) {
		t.Error("errors.Is should see the wrapped error")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "C130") != nil {
		t.Error("FromError(nil, ...) should return nil")
	}

	ce := New("C112")
	if FromError(fmt.Errorf("context: %w", ce), "C130") != ce {
		t.Error("FromError should return the coded error found in the chain")
	}

	std := stderrors.New("boom")
	result := FromError(std, "C130")
	if result.Wrapped != std || result.Code != "C130" {
		t.Errorf("FromError = %+v", result)
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("run: %w", New("C120").Wrap(New("C115")))
	if !HasCode(err, "C120") {
		t.Error("HasCode should find the outer code")
	}
	if !HasCode(err, "C115") {
		t.Error("HasCode should find a nested code")
	}
	if HasCode(err, "C112") {
		t.Error("HasCode reported an absent code")
	}
	if HasCode(stderrors.New("plain"), "C120") {
		t.Error("HasCode on a plain error")
	}
}

func TestLocation_String(t *testing.T) {
	tests := []struct {
		name string
		loc  *Location
		want string
	}{
		{"nil location", nil, ""},
		{"with column", &Location{File: "a.yaml", Line: 10, Column: 5}, "a.yaml:10:5"},
		{"without column", &Location{File: "a.yaml", Line: 10}, "a.yaml:10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.loc.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	path := writeScenario(t)
	err := New("C115").
		WithLocation(path, 5, 12).
		WithDetail(`"oops" is not an int`).
		Wrap(stderrors.New("strconv failure"))

	formatted := err.Format()

	for _, want := range []string{
		"ERROR C115: Value does not match cell type",
		path + ":5:12",
		"→    5 │     value: oops",
		"           ^",
		`"oops" is not an int`,
		"Cause: strconv failure",
	} {
		if !strings.Contains(formatted, want) {
			t.Errorf("Format missing %q:\n%s", want, formatted)
		}
	}
}

func TestFormatHintAndExample(t *testing.T) {
	DisableColors()
	defer EnableColors()

	formatted := New("C116").WithExample("- set: count\n  value: 1").Format()
	if !strings.Contains(formatted, "Hint: Each step has exactly one of") {
		t.Errorf("Format should contain template hint:\n%s", formatted)
	}
	if !strings.Contains(formatted, "Example:\n    - set: count\n      value: 1") {
		t.Errorf("Format should indent the example:\n%s", formatted)
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("C112").WithLocation("missing.yaml", 10, 5)
	want := "missing.yaml:10:5: C112: Unknown cell"
	if got := err.FormatCompact(); got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("C112").WithLocation("missing.yaml", 10, 5).WithDetail(`"total"`)

	var got map[string]any
	if e := json.Unmarshal([]byte(err.FormatJSON()), &got); e != nil {
		t.Fatalf("FormatJSON is not valid JSON: %v", e)
	}
	if got["code"] != "C112" || got["category"] != "scenario" || got["message"] != "Unknown cell" {
		t.Errorf("FormatJSON = %v", got)
	}
	loc, ok := got["location"].(map[string]any)
	if !ok || loc["line"] != float64(10) {
		t.Errorf("location = %v", got["location"])
	}
}

func TestFprint(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var b strings.Builder
	Fprint(&b, fmt.Errorf("wrapped: %w", New("C100")))
	if !strings.Contains(b.String(), "ERROR C100: Configuration file not found") {
		t.Errorf("Fprint coded = %q", b.String())
	}

	b.Reset()
	Fprint(&b, stderrors.New("plain failure"))
	if !strings.Contains(b.String(), "ERROR: plain failure") {
		t.Errorf("Fprint plain = %q", b.String())
	}
}

func TestGetAllCodes(t *testing.T) {
	codes := GetAllCodes()
	found := false
	for _, code := range codes {
		if code == "C111" {
			found = true
		}
		if !strings.HasPrefix(code, "C") {
			t.Errorf("unexpected code %q", code)
		}
	}
	if !found {
		t.Error("C111 should be in the codes list")
	}
}

func TestRegister(t *testing.T) {
	Register("C999", ErrorTemplate{
		Category: CategoryCLI,
		Message:  "Custom test error",
	})
	defer delete(registry, "C999")

	if err := New("C999"); err.Message != "Custom test error" {
		t.Errorf("Message = %q, want %q", err.Message, "Custom test error")
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("short text", 100)
	if len(got) != 1 || got[0] != "short text" {
		t.Errorf("wrapText short text: got %v", got)
	}

	got = wrapText("this is a longer text that should be wrapped", 20)
	if len(got) != 3 {
		t.Errorf("wrapText long text: expected 3 lines, got %d: %v", len(got), got)
	}

	if got = wrapText("", 10); len(got) != 0 {
		t.Errorf("wrapText empty: expected empty, got %v", got)
	}
}

func TestPaintDisabled(t *testing.T) {
	DisableColors()
	defer EnableColors()
	if got := paint(errorStyle, "x"); got != "x" {
		t.Errorf("paint with colors disabled = %q", got)
	}
}
