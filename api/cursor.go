package api

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCursor extracts the numeric ordering key from a "{shard}-{counter}"
// cursor. All current data lives on shard 0; multi-shard cursors have no
// documented ordering semantics yet and are rejected as unsupported
// rather than guessed at.
func ParseCursor(cursor string) (int64, error) {
	shard, counter, found := strings.Cut(cursor, "-")
	if !found {
		return 0, fmt.Errorf("malformed cursor %q", cursor)
	}
	if shard != "0" {
		return 0, fmt.Errorf("unsupported cursor shard %q", shard)
	}
	ordinal, err := strconv.ParseInt(counter, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed cursor counter %q: %w", counter, err)
	}
	return ordinal, nil
}
