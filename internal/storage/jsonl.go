package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"clipscope/internal/model"
)

// StdoutPath makes JsonlStorage write to standard output.
const StdoutPath = "-"

// JsonlStorage writes display records to a JSONL file, one record per line.
type JsonlStorage struct {
	path   string
	stdout io.Writer
	mu     sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path, stdout: os.Stdout}
}

// PutCatalog truncates the output and writes records in order.
func (s *JsonlStorage) PutCatalog(_ context.Context, _ string, records []model.DisplayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == StdoutPath {
		return writeRecords(s.stdout, records)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	tmpPath := s.path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	if err := writeRecords(file, records); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename output file: %w", err)
	}

	return nil
}

func writeRecords(w io.Writer, records []model.DisplayRecord) error {
	writer := bufio.NewWriter(w)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal display record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write display record: %w", err)
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
