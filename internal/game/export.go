package game

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExportSession appends one finished session to a plain-text results file.
// Best-effort bookkeeping for party hosts; the in-memory history remains
// the source of truth.
func ExportSession(s Session, filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s Game - %s\n", s.Type, s.Timestamp.Format("2006-01-02 15:04:05")))
	sb.WriteString(strings.Repeat("-", 40) + "\n")
	for i, p := range s.Players {
		sb.WriteString(fmt.Sprintf("%d. %s: %d points\n", i+1, p.Name, p.Score))
	}
	sb.WriteString("\n")

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}
