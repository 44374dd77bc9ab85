// Package render turns report markdown into HTML and PDF documents.
package render

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const styleCSS = `
body{font-family:Georgia,'Times New Roman',serif;color:#1c1917;max-width:900px;margin:0 auto;padding:1rem;line-height:1.5;}
h1{font-size:1.6rem;border-bottom:2px solid #0f766e;padding-bottom:0.3rem;}
h2{font-size:1.2rem;color:#0f766e;margin-top:1.6rem;}
h3{font-size:1rem;margin-top:1.2rem;}
table{width:100%;border-collapse:collapse;font-size:0.85rem;margin:0.75rem 0;}
th,td{border:1px solid #a8a29e;padding:0.35rem 0.5rem;text-align:left;vertical-align:top;}
thead th{background:#f1f5f9;font-weight:700;}
blockquote{border-left:3px solid #b45309;background:#fffbeb;margin:0.75rem 0;padding:0.5rem 0.75rem;color:#78350f;}
code{background:#f5f5f4;padding:0.1rem 0.3rem;font-size:0.85em;}
`

// HTML converts report markdown into a standalone HTML document.
func HTML(markdown string) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>Go-to-Market Priority Report</title>" +
		"<style>" + styleCSS +
		"html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;} " +
		"@media print{ @page{size:auto;margin:12mm;} body{padding:0;} }" +
		"</style></head><body>" + content.String() + "</body></html>", nil
}
