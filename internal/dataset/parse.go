package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/labelbench/internal/storage"
)

// ParseResult separates an import file into the samples that passed
// validation and the records that did not, both in file order.
type ParseResult struct {
	Samples []storage.Sample
	Invalid []*ValidationError
}

// ParseJSON reads the import JSON shape: an object with a top-level
// "samples" array of records.
func ParseJSON(r io.Reader) (*ParseResult, error) {
	var doc struct {
		Samples []Record `json:"samples"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding import JSON: %w", err)
	}
	if doc.Samples == nil {
		return nil, errors.New(`import JSON must have a top-level "samples" array`)
	}

	res := &ParseResult{}
	for i, rec := range doc.Samples {
		sm, err := rec.Validate(i)
		if err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				return nil, err
			}
			res.Invalid = append(res.Invalid, verr)
			continue
		}
		res.Samples = append(res.Samples, sm)
	}
	return res, nil
}

// ParseCSV reads comma-separated records with a header row. The id, prompt,
// and response columns are required; any other column becomes a
// string-valued metadata key.
func ParseCSV(r io.Reader) (*ParseResult, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("import CSV is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"id", "prompt", "response"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("import CSV is missing the %q column", required)
		}
	}

	res := &ParseResult{}
	for index := 0; ; index++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV record %d: %w", index, err)
		}

		var rec Record
		for name, i := range cols {
			if i >= len(row) {
				continue
			}
			switch name {
			case "id":
				rec.ID = row[i]
			case "prompt":
				rec.Prompt = row[i]
			case "response":
				rec.Response = row[i]
			default:
				if row[i] == "" {
					continue
				}
				if rec.Metadata == nil {
					rec.Metadata = make(map[string]any)
				}
				rec.Metadata[name] = row[i]
			}
		}

		sm, err := rec.Validate(index)
		if err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				return nil, err
			}
			res.Invalid = append(res.Invalid, verr)
			continue
		}
		res.Samples = append(res.Samples, sm)
	}
	return res, nil
}

// ParseFile dispatches on the file extension (.json or .csv) and tags any
// validation errors with the file name.
func ParseFile(path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening import file: %w", err)
	}
	defer f.Close()

	var res *ParseResult
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		res, err = ParseJSON(f)
	case ".csv":
		res, err = ParseCSV(f)
	default:
		return nil, fmt.Errorf("unsupported import format %q (want .json or .csv)", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, verr := range res.Invalid {
		verr.File = filepath.Base(path)
	}
	return res, nil
}

// ParseFiles parses several import files concurrently and concatenates the
// results in argument order.
func ParseFiles(ctx context.Context, paths []string) (*ParseResult, error) {
	if len(paths) == 0 {
		return &ParseResult{}, nil
	}

	results := make([]*ParseResult, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency; imports are disk-bound anyway.

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res, err := ParseFile(path)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &ParseResult{}
	for _, res := range results {
		merged.Samples = append(merged.Samples, res.Samples...)
		merged.Invalid = append(merged.Invalid, res.Invalid...)
	}
	return merged, nil
}
