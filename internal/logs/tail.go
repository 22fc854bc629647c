package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const pollInterval = 250 * time.Millisecond

// TailOptions controls a Tail call. A negative Offset asks for the last Limit
// matching entries; otherwise reading resumes at Offset.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Filter Filter
}

// TailResult carries the entries read and the offset to resume from.
type TailResult struct {
	Entries []Entry
	Offset  int64
}

// Tail reads entries from the log at path. A missing file yields no entries
// and offset zero so a follower can start before the first write.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	result := TailResult{Offset: opts.Offset}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.Offset = 0
			return result, nil
		}
		return result, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return result, fmt.Errorf("log path %q is a directory", path)
	}
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	if opts.Offset < 0 {
		entries, offset, err := readLast(path, opts.Limit, opts.Filter)
		if err != nil {
			return result, err
		}
		result.Entries = entries
		result.Offset = offset
		if opts.Follow && opts.Wait > 0 && len(entries) == 0 {
			return waitForEntries(ctx, path, offset, opts.Wait, opts.Filter)
		}
		return result, nil
	}

	offset := opts.Offset
	if offset > info.Size() {
		// Truncated or rotated; start over.
		offset = 0
	}
	entries, newOffset, err := readForward(path, offset, opts.Filter)
	if err != nil {
		return result, err
	}
	result.Entries = entries
	result.Offset = newOffset
	if opts.Follow && opts.Wait > 0 && len(entries) == 0 {
		return waitForEntries(ctx, path, newOffset, opts.Wait, opts.Filter)
	}
	return result, nil
}

func readLast(path string, limit int, filter Filter) ([]Entry, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		size, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, size, nil
	}

	ring := make([]Entry, limit)
	count, idx := 0, 0
	offset, err := scanLines(file, 0, filter, func(entry Entry) {
		ring[idx] = entry
		idx = (idx + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return nil, 0, err
	}

	entries := make([]Entry, count)
	if count == limit {
		for i := 0; i < count; i++ {
			entries[i] = ring[(idx+i)%limit]
		}
	} else {
		copy(entries, ring[:count])
	}
	return entries, offset, nil
}

// scanLines hands every complete, matching line after start to fn and returns
// the offset just past the last newline. A trailing partial line is left for
// the next call.
func scanLines(r io.Reader, start int64, filter Filter, fn func(Entry)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	next := start
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return next, nil
			}
			return next, fmt.Errorf("read log file: %w", err)
		}
		next += int64(len(line))
		text := strings.TrimRight(line, "\r\n")
		if text == "" {
			continue
		}
		if entry := ParseEntry(text); filter.Match(entry) {
			fn(entry)
		}
	}
}

func readForward(path string, offset int64, filter Filter) ([]Entry, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("seek log file: %w", err)
	}
	var entries []Entry
	next, err := scanLines(file, offset, filter, func(entry Entry) {
		entries = append(entries, entry)
	})
	if err != nil {
		return nil, 0, err
	}
	return entries, next, nil
}

func waitForEntries(ctx context.Context, path string, offset int64, wait time.Duration, filter Filter) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		entries, newOffset, err := readForward(path, result.Offset, filter)
		if err != nil {
			return result, err
		}
		result.Offset = newOffset
		if len(entries) > 0 {
			result.Entries = entries
			return result, nil
		}
		if time.Now().After(deadline) {
			return result, nil
		}
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
