package recovery

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"taskscope/internal/domain"
)

// LoadExport reads task records from a JSON export file.
func LoadExport(path string) ([]domain.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tasks, err := DecodeExport(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tasks, nil
}

// DecodeExport accepts either an array of task rows or a single row.
func DecodeExport(r io.Reader) ([]domain.Task, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	dec := json.NewDecoder(br)
	switch first {
	case '[':
		var tasks []domain.Task
		if err := dec.Decode(&tasks); err != nil {
			return nil, fmt.Errorf("decode export: %w", err)
		}
		return tasks, nil
	case '{':
		var t domain.Task
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("decode export: %w", err)
		}
		return []domain.Task{t}, nil
	}
	return nil, fmt.Errorf("decode export: expected an array or object, got %q", first)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
