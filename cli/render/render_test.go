package render

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{"text lowercase", "text", FormatText, false},
		{"json lowercase", "json", FormatJSON, false},
		{"json uppercase", "JSON", FormatJSON, false},
		{"yaml", "yaml", FormatYAML, false},
		{"empty", "", "", false},
		{"invalid", "xml", "", true},
		{"table is not a format", "table", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFormat_InvalidErrorMessage(t *testing.T) {
	_, err := ParseFormat("xml")
	if err == nil {
		t.Fatal("expected error for invalid format")
	}
	if !strings.Contains(err.Error(), "text, json, or yaml") {
		t.Errorf("error message should mention valid formats, got: %v", err)
	}
}

func TestRenderer_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatJSON, false, &buf)

	data := map[string]string{"key": "value"}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, `"key"`) || !strings.Contains(got, `"value"`) {
		t.Errorf("JSON output missing expected content: %s", got)
	}
}

func TestRenderer_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatYAML, false, &buf)

	data := map[string]string{"key": "value"}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "key:") || !strings.Contains(got, "value") {
		t.Errorf("YAML output missing expected content: %s", got)
	}
}

func TestRenderer_TextStruct(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatText, true, &buf)

	data := struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}{ID: "s-1", Title: "quantum notes"}

	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "id:") || !strings.Contains(got, "s-1") {
		t.Errorf("text output missing id field: %s", got)
	}
	if !strings.Contains(got, "title:") || !strings.Contains(got, "quantum notes") {
		t.Errorf("text output missing title field: %s", got)
	}
}

func TestRenderer_TextSlice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatText, true, &buf)

	data := []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}{
		{ID: "s-1", Title: "first"},
		{ID: "s-2", Title: "second"},
	}

	if err := r.Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "id") || !strings.Contains(lines[0], "title") {
		t.Errorf("header row = %q, want field names", lines[0])
	}
	if !strings.Contains(lines[1], "s-1") || !strings.Contains(lines[2], "s-2") {
		t.Errorf("rows missing data: %q", lines)
	}
}

func TestRenderer_TextEmptySlice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatText, true, &buf)

	if err := r.Render([]string{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("empty slice output = %q, want (no results)", buf.String())
	}
}

func TestRenderer_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(Format("csv"), false, &buf)

	if err := r.Render(map[string]string{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
