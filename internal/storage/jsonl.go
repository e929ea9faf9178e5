package storage

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sugawarayuuta/sonnet"

	"ammstate/internal/model"
)

// jsonlFile appends JSON values, one per line.
type jsonlFile struct {
	path string
	mu   sync.Mutex
}

func (f *jsonlFile) append(n int, value func(i int) interface{}) error {
	if n == 0 {
		return nil
	}

	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for i := 0; i < n; i++ {
		line, err := sonnet.Marshal(value(i))
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// JsonlStorage writes log records to a JSONL file.
type JsonlStorage struct {
	file jsonlFile
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{file: jsonlFile{path: path}}
}

// PutLogBatch appends a batch of log records as JSON lines.
func (s *JsonlStorage) PutLogBatch(logs []model.LogRecord) error {
	return s.file.append(len(logs), func(i int) interface{} { return logs[i] })
}

// JsonlSnapshots writes pool snapshots to a JSONL file.
type JsonlSnapshots struct {
	file jsonlFile
}

func NewJsonlSnapshots(path string) *JsonlSnapshots {
	return &JsonlSnapshots{file: jsonlFile{path: path}}
}

func (s *JsonlSnapshots) PutSnapshots(_ context.Context, snapshots []model.PoolSnapshot) error {
	return s.file.append(len(snapshots), func(i int) interface{} { return snapshots[i] })
}

// JsonlErrors writes rejected logs to a JSONL file.
type JsonlErrors struct {
	file jsonlFile
}

func NewJsonlErrors(path string) *JsonlErrors {
	return &JsonlErrors{file: jsonlFile{path: path}}
}

func (s *JsonlErrors) PutDecodeErrors(errs []model.DecodeError) error {
	return s.file.append(len(errs), func(i int) interface{} { return errs[i] })
}

// ReadLogRecords decodes a JSONL stream of log records and calls fn for each. Blank lines
// are skipped. A line that does not decode is passed to onBad, if set, and skipped.
func ReadLogRecords(r io.Reader, fn func(model.LogRecord) error, onBad func(line int, err error)) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record model.LogRecord
		if err := sonnet.Unmarshal(line, &record); err != nil {
			if onBad != nil {
				onBad(lineNo, err)
			}
			continue
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}
