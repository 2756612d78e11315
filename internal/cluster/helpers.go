package cluster

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/memberlist"
)

// splitHostPort parses "host:port" into its memberlist Config fields.
func splitHostPort(addr string) (string, int, error) {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("expected host:port, got %q", addr)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	return parts[0], port, nil
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// nodeNames extracts the stable node-id names memberlist tracks for each
// live member.
func nodeNames(members []*memberlist.Node) []string {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	return names
}

// drain empties any events already queued behind the one just received,
// without blocking once the channel goes quiet.
func drain(ch <-chan memberlist.NodeEvent) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// diff returns the keys present only in next (added) and only in prev
// (removed).
func diff(prev, next map[string]bool) (added, removed []string) {
	for k := range next {
		if !prev[k] {
			added = append(added, k)
		}
	}
	for k := range prev {
		if !next[k] {
			removed = append(removed, k)
		}
	}
	return added, removed
}

// parseUUIDs converts string trigger ids back to uuid.UUID, dropping any
// that fail to parse (defensive against a malformed node name never
// reaching this path in practice, since trigger ids are always minted by
// uuid.New()).
func parseUUIDs(ss []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ss))
	for _, s := range ss {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}
