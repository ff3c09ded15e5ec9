package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PointerName is the link that follows the most recently started daemon log.
const PointerName = "daemon.log"

const maxLineBytes = 1024 * 1024

var (
	// ErrNoLog reports that no log file matched.
	ErrNoLog = errors.New("no daemon log found")
	// ErrAmbiguous reports that a uid prefix matched more than one log.
	ErrAmbiguous = errors.New("uid prefix matches several daemon logs")
)

// FileName returns the log file name for the daemon with uid.
func FileName(uid string) string {
	return "daemon-" + uid + ".log"
}

// Chunk is a batch of lines and the byte offset just past them.
type Chunk struct {
	Lines  []string
	Offset int64
}

// Resolve returns the log path in dir for uid. An empty uid selects the
// pointer link; otherwise uid may be any unique prefix.
func Resolve(dir, uid string) (string, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		path := filepath.Join(dir, PointerName)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("%w in %s", ErrNoLog, dir)
			}
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		return path, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "daemon-"+uid+"*.log"))
	if err != nil {
		return "", fmt.Errorf("match daemon logs: %w", err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w for uid %q", ErrNoLog, uid)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("%w: %s", ErrAmbiguous, strings.Join(matches, ", "))
	}
}

// Last returns up to n trailing lines of path. n <= 0 returns no lines but
// still reports the end offset so callers can follow from there.
func Last(path string, n int) (Chunk, error) {
	file, err := os.Open(path)
	if err != nil {
		return Chunk{}, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	var ring []string
	if n > 0 {
		ring = make([]string, 0, n)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return Chunk{}, fmt.Errorf("read log: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return Chunk{}, fmt.Errorf("log offset: %w", err)
	}
	return Chunk{Lines: ring, Offset: offset}, nil
}

// ReadFrom returns the complete lines written after offset. A file that
// shrank below offset was truncated and is read from the start.
func ReadFrom(path string, offset int64) (Chunk, error) {
	file, err := os.Open(path)
	if err != nil {
		return Chunk{Offset: offset}, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Chunk{Offset: offset}, fmt.Errorf("stat log: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Chunk{Offset: offset}, fmt.Errorf("seek log: %w", err)
	}

	reader := bufio.NewReader(file)
	chunk := Chunk{Offset: offset}
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// Partial trailing line; pick it up once it is terminated.
			return chunk, nil
		}
		if err != nil {
			return chunk, fmt.Errorf("read log: %w", err)
		}
		chunk.Offset += int64(len(line))
		chunk.Lines = append(chunk.Lines, strings.TrimRight(line, "\r\n"))
	}
}

// Follow polls path every interval and passes new lines to emit until ctx is
// done or emit fails. A missing file is waited for.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func([]string) error) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		chunk, err := ReadFrom(path, offset)
		switch {
		case err == nil:
			offset = chunk.Offset
			if len(chunk.Lines) > 0 {
				if err := emit(chunk.Lines); err != nil {
					return err
				}
			}
		case errors.Is(err, os.ErrNotExist):
			offset = 0
		default:
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
