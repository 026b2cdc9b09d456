package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/scanvault/docpipe/constants"
	"github.com/scanvault/docpipe/internal/app"
	"github.com/scanvault/docpipe/internal/batch"
	"github.com/scanvault/docpipe/internal/common"
	"github.com/scanvault/docpipe/internal/entity"
	"github.com/scanvault/docpipe/internal/pdfsplit"
	"github.com/scanvault/docpipe/internal/recognition"
)

// printError prints to stderr, falling back to stdout if stderr fails.
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir     = flag.String("dir", "", "directory of documents to ingest (required)")
		name    = flag.String("name", "", "batch name (defaults to the directory name)")
		project = flag.String("project", "", "project UUID (defaults to a fresh one)")
		method  = flag.String("method", "none", "separation method: none | fixed_page_count")
		pages   = flag.Int("pages", 0, "pages per document (required for fixed_page_count)")
		fields  = flag.String("fields", "", "extraction fields as JSON, e.g. [{\"name\":\"total\",\"required\":true}]")
		inmem   = flag.Bool("inmem", false, "use the in-memory sqlite store")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if *inmem {
		cfg.Database.DSN = ""
		cfg.Database.SQLitePath = ":memory:"
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	projectID := uuid.New()
	if *project != "" {
		parsed, err := uuid.Parse(*project)
		if err != nil {
			printError("Error: invalid --project UUID: %v\n", err)
			os.Exit(1)
		}
		projectID = parsed
	}

	extractionFields, err := parseFields(*fields)
	if err != nil {
		printError("Error: invalid --fields: %v\n", err)
		os.Exit(1)
	}

	files, err := collectFiles(*dir)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		printError("Error: no supported documents under %s\n", *dir)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		printError("Error: wiring pipeline: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	batchName := *name
	if batchName == "" {
		batchName = filepath.Base(*dir)
	}
	b := &entity.Batch{ProjectID: projectID, Name: batchName}
	if err := a.Batches.Create(ctx, b); err != nil {
		printError("Error: creating batch: %v\n", err)
		os.Exit(1)
	}

	summary, err := a.Orchestrator.Process(ctx, batch.Request{
		ProjectID:        projectID,
		BatchID:          b.ID,
		TenantID:         cfg.Recognition.TenantID,
		Files:            files,
		Policy:           pdfsplit.Policy{Method: pdfsplit.Method(*method), PagesPerDocument: *pages},
		ExtractionFields: extractionFields,
	})
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	if summary.Status == constants.RunStatusFailed {
		os.Exit(1)
	}
}

// collectFiles walks dir and returns every supported document, skipping
// hidden entries and anything with an unrecognized extension.
func collectFiles(dir string) ([]batch.UploadFile, error) {
	var files []batch.UploadFile
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		kind := constants.MapExtToKind(filepath.Ext(path))
		if kind == "" {
			return nil
		}
		files = append(files, batch.UploadFile{Name: filepath.Base(path), Path: path, Kind: kind})
		return nil
	})
	return files, err
}

func parseFields(raw string) ([]recognition.FieldSpec, error) {
	if raw == "" {
		return nil, nil
	}
	var fields []recognition.FieldSpec
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
