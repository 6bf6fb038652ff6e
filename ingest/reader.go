// Package ingest reads raw review records and normalizes them for sampling
// and embedding.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hubenschmidt/go-reviewrag/core"
)

// maxLineBytes bounds a single JSONL record. Reviews above this size are
// malformed by definition and counted as skipped.
const maxLineBytes = 1 << 20

// ReadResult holds the decoded records plus the number of lines that could
// not be parsed. Malformed lines are skipped, never fatal.
type ReadResult struct {
	Records []core.ReviewRecord
	Skipped int
}

// ReadJSONL decodes one review record per line. Any record-oriented source
// can be adapted by writing its rows through an io.Reader in this shape.
func ReadJSONL(r io.Reader) (ReadResult, error) {
	var result ReadResult

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec core.ReviewRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			result.Skipped++
			continue
		}
		result.Records = append(result.Records, rec)
	}

	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("scan records: %w", err)
	}
	return result, nil
}

// ReadJSONLFile reads review records from a JSONL file on disk.
func ReadJSONLFile(path string) (ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReadResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return ReadJSONL(f)
}
