package audit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/huntfabric/corehunt/pkg/contracts"
)

const rfc3339Nano = time.RFC3339Nano

// decodeStoredEntry fills in the fields of e that both SQL-backed stores
// serialize identically, so Persist/Load stay symmetric across backends.
func decodeStoredEntry(e *AuditEntry, ts, kind, payload, prevHex, entryHex string) error {
	parsedTS, err := time.Parse(rfc3339Nano, ts)
	if err != nil {
		return fmt.Errorf("audit: parse stored timestamp %q: %w", ts, err)
	}
	e.Timestamp = parsedTS
	e.EventKind = EventKind(kind)

	var kvs []contracts.KV
	if err := json.Unmarshal([]byte(payload), &kvs); err != nil {
		return fmt.Errorf("audit: unmarshal stored payload for seq %d: %w", e.Seq, err)
	}
	e.Payload = kvs

	prev, err := hex.DecodeString(prevHex)
	if err != nil || len(prev) != 32 {
		return fmt.Errorf("audit: malformed previous_hash for seq %d", e.Seq)
	}
	copy(e.PreviousHash[:], prev)

	entryHash, err := hex.DecodeString(entryHex)
	if err != nil || len(entryHash) != 32 {
		return fmt.Errorf("audit: malformed entry_hash for seq %d", e.Seq)
	}
	copy(e.EntryHash[:], entryHash)

	return nil
}
