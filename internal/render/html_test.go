package render

import (
	"strings"
	"testing"
)

func TestHTMLRendersHeadingsAndTables(t *testing.T) {
	md := "# Go-to-Market Priority Report\n\n" +
		"| Rank | Segment |\n|------|--------|\n| 1 | High Value, Low Barrier |\n"
	got, err := HTML(md)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{
		"<h1",
		"Go-to-Market Priority Report",
		"<table>",
		"High Value, Low Barrier",
		"<!doctype html>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestHTMLEmptyMarkdown(t *testing.T) {
	got, err := HTML("")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(got, "<body>") {
		t.Error("expected a full document even for empty input")
	}
}
