package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/nexasales/nexasales/internal/render"
	"github.com/nexasales/nexasales/internal/runstore"
)

// Renders a stored run, or a markdown file, to PDF.
func main() {
	dbPath := flag.String("db", "nexasales.db", "SQLite run store path")
	runID := flag.String("run", "", "Run id to render from the store")
	mdPath := flag.String("markdown", "", "Markdown file to render instead of a stored run")
	outPath := flag.String("out", "report.pdf", "PDF output path")
	flag.Parse()

	markdown := ""
	switch {
	case *mdPath != "":
		b, err := os.ReadFile(*mdPath)
		if err != nil {
			log.Fatalf("read %s: %v", *mdPath, err)
		}
		markdown = string(b)
	case *runID != "":
		store, err := runstore.Open(*dbPath)
		if err != nil {
			log.Fatal(err)
		}
		defer store.Close()
		rep, err := store.Get(*runID)
		if err != nil {
			log.Fatalf("load run %s: %v", *runID, err)
		}
		markdown = rep.Markdown
	default:
		log.Fatal("one of -run or -markdown is required")
	}

	pdf, err := render.NewChromiumPDFRenderer().Render(context.Background(), markdown)
	if err != nil {
		log.Fatalf("render pdf: %v", err)
	}
	if err := os.WriteFile(*outPath, pdf, 0o644); err != nil {
		log.Fatalf("write %s: %v", *outPath, err)
	}
	log.Printf("wrote %s (%d bytes)", *outPath, len(pdf))
}
