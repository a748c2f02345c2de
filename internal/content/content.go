// Package content reads, writes and renders the extraction tool's content list.
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuongbtq/docconv/internal/domain"
)

// Load reads a content list JSON file
func Load(path string) ([]domain.ContentBlock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content list: %w", err)
	}

	var blocks []domain.ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("failed to parse content list %s: %w", path, err)
	}
	return blocks, nil
}

// Save overwrites path with blocks, replacing the file in one rename
func Save(path string, blocks []domain.ContentBlock) error {
	if blocks == nil {
		blocks = []domain.ContentBlock{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(blocks); err != nil {
		return fmt.Errorf("failed to encode content list: %w", err)
	}

	return WriteFile(path, buf.Bytes())
}

// WriteFile writes data to a temporary sibling and renames it over path
func WriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// ByPage returns the blocks of page pageIdx in their original order
func ByPage(blocks []domain.ContentBlock, pageIdx int) []domain.ContentBlock {
	page := make([]domain.ContentBlock, 0)
	for _, b := range blocks {
		if b.PageIdx == pageIdx {
			page = append(page, b)
		}
	}
	return page
}

// PageCount returns max(page_idx)+1, or 0 for an empty list
func PageCount(blocks []domain.ContentBlock) int {
	if len(blocks) == 0 {
		return 0
	}
	highest := 0
	for _, b := range blocks {
		if b.PageIdx > highest {
			highest = b.PageIdx
		}
	}
	return highest + 1
}

// ToMarkdown renders blocks as a Markdown document. A page header is
// written before the first block and whenever page_idx changes.
func ToMarkdown(blocks []domain.ContentBlock) string {
	if len(blocks) == 0 {
		return ""
	}

	total := strconv.Itoa(PageCount(blocks))

	var sb strings.Builder
	current := -1
	for _, b := range blocks {
		if b.PageIdx != current {
			current = b.PageIdx
			sb.WriteString("@@ Page ")
			sb.WriteString(strconv.Itoa(current + 1))
			sb.WriteString("/")
			sb.WriteString(total)
			sb.WriteString(" @@\n\n")
		}

		if b.Type != domain.BlockTypeText {
			continue
		}
		if b.TextLevel != nil {
			sb.WriteString(strings.Repeat("#", *b.TextLevel))
			sb.WriteString(" ")
		}
		sb.WriteString(b.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
