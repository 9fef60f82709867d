package storage

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Range parsing errors. An invalid format degrades to a full-body response;
// an unsatisfiable range surfaces as 416.
var (
	errRangeInvalid        = errors.New("invalid range format")
	errRangeNotSatisfiable = errors.New("range not satisfiable")
)

// ParseRange parses a Range header value ("bytes=start-end", "bytes=start-",
// "bytes=-suffix") against the file size. Returned offsets are inclusive.
func ParseRange(header string, size int64) (start, end int64, err error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, errRangeInvalid
	}

	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return 0, 0, errRangeInvalid
	}

	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])

	// Suffix range: last N bytes.
	if startStr == "" {
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, errRangeInvalid
		}
		if suffix <= 0 || size == 0 {
			return 0, 0, errRangeNotSatisfiable
		}
		start = size - suffix
		if start < 0 {
			start = 0
		}
		return start, size - 1, nil
	}

	start, err = strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, errRangeInvalid
	}
	if start >= size {
		return 0, 0, errRangeNotSatisfiable
	}

	if endStr == "" {
		end = size - 1
	} else {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return 0, 0, errRangeInvalid
		}
		// Clamp to the last byte of the file.
		if end > size-1 {
			end = size - 1
		}
	}

	if start > end {
		return 0, 0, errRangeNotSatisfiable
	}

	return start, end, nil
}

// ServeFile streams a file honoring an optional Range request header.
// The file is never buffered whole; the reader seeks to the range start and
// copies at most the requested length even if the file grows concurrently.
// Returns ErrNotFound when the path does not exist; any other error means
// nothing has been written yet.
func ServeFile(w http.ResponseWriter, r *http.Request, path, contentType, filename string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}
	size := info.Size()

	var start, end int64 = 0, size - 1
	partial := false

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		s, e, err := ParseRange(rangeHeader, size)
		switch {
		case err == nil:
			start, end, partial = s, e, true
		case errors.Is(err, errRangeNotSatisfiable):
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return nil
		default:
			// Malformed header: ignore it and serve the full file.
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	length := end - start + 1
	if size == 0 {
		length = 0
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	h.Set("Accept-Ranges", "bytes")
	if filename != "" {
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}

	if partial {
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek: %w", err)
		}
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if length > 0 {
		// CopyN bounds the read; a write error here means the client went
		// away mid-transfer and there is nothing left to do about it.
		if _, err := io.CopyN(w, f, length); err != nil {
			return nil
		}
	}

	return nil
}
