package audit

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/huntfabric/corehunt/pkg/canonicalize"
)

// fileFormatVersion is the on-disk format version stamped into the header
// record. Bump only with a migration path; readers reject versions they do
// not know.
const fileFormatVersion = 1

// maxFrameSize bounds a single record so a corrupted length prefix cannot
// make the reader allocate gigabytes.
const maxFrameSize = 16 << 20

// FileStore persists entries as a sequence of length-prefixed canonical
// records. Each record is the JCS encoding of
// one entry, preceded by a 4-byte big-endian length. The first record is a
// header carrying the format version and the genesis hash. Writes go
// through a single O_APPEND handle; Load streams through an independent
// read-only handle.
type FileStore struct {
	mu   sync.Mutex
	path string
	w    *os.File
}

type fileHeader struct {
	FormatVersion int    `json:"format_version"`
	GenesisHash   string `json:"genesis_hash"`
}

// fileRecord is the flat, string-valued shape of one persisted entry. It
// carries the same fields the SQL stores persist so decodeStoredEntry stays
// the single decode path across backends.
type fileRecord struct {
	Seq          uint64 `json:"seq"`
	EntryID      string `json:"entry_id"`
	Timestamp    string `json:"timestamp"`
	EventKind    string `json:"event_kind"`
	Actor        string `json:"actor"`
	Payload      string `json:"payload"`
	PreviousHash string `json:"previous_hash"`
	EntryHash    string `json:"entry_hash"`
}

// OpenFileStore opens (creating if necessary) the length-prefixed audit log
// at path. A freshly created log gets its header record before any entry;
// an existing log has its header validated against the current genesis.
func OpenFileStore(path string) (*FileStore, error) {
	w, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file store: %w", err)
	}
	s := &FileStore{path: path, w: w}

	info, err := w.Stat()
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("audit: stat file store: %w", err)
	}
	if info.Size() == 0 {
		hdr := fileHeader{
			FormatVersion: fileFormatVersion,
			GenesisHash:   hex.EncodeToString(genesisHash[:]),
		}
		b, err := canonicalize.JCS(hdr)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("audit: encode file header: %w", err)
		}
		if err := s.writeFrame(b); err != nil {
			w.Close()
			return nil, err
		}
		return s, nil
	}

	if err := s.validateHeader(); err != nil {
		w.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) validateHeader() error {
	r, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("audit: reopen file store for header check: %w", err)
	}
	defer r.Close()

	frame, err := readFrame(bufio.NewReader(r))
	if err != nil {
		return fmt.Errorf("audit: read file store header: %w", err)
	}
	var hdr fileHeader
	if err := json.Unmarshal(frame, &hdr); err != nil {
		return fmt.Errorf("audit: decode file store header: %w", err)
	}
	if hdr.FormatVersion != fileFormatVersion {
		return fmt.Errorf("audit: unsupported file store format version %d", hdr.FormatVersion)
	}
	if hdr.GenesisHash != hex.EncodeToString(genesisHash[:]) {
		return errors.New("audit: file store genesis hash does not match this chain's genesis")
	}
	return nil
}

// Persist appends one length-prefixed record. The underlying descriptor is
// O_APPEND, so the frame lands after any bytes written by a crashed prior
// process; the mutex keeps the length prefix and body of a single frame
// contiguous.
func (s *FileStore) Persist(ctx context.Context, entry AuditEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("audit: marshal payload for seq %d: %w", entry.Seq, err)
	}
	rec := fileRecord{
		Seq:          entry.Seq,
		EntryID:      entry.EntryID,
		Timestamp:    entry.Timestamp.Format(rfc3339Nano),
		EventKind:    string(entry.EventKind),
		Actor:        entry.Actor,
		Payload:      string(payload),
		PreviousHash: hex.EncodeToString(entry.PreviousHash[:]),
		EntryHash:    hex.EncodeToString(entry.EntryHash[:]),
	}
	b, err := canonicalize.JCS(rec)
	if err != nil {
		return fmt.Errorf("audit: encode record for seq %d: %w", entry.Seq, err)
	}
	return s.writeFrame(b)
}

func (s *FileStore) writeFrame(body []byte) error {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("audit: write frame prefix: %w", err)
	}
	if _, err := s.w.Write(body); err != nil {
		return fmt.Errorf("audit: write frame body: %w", err)
	}
	return nil
}

// Load streams the log back in write order, skipping the header record. A
// truncated trailing frame (crash mid-write) is reported as an error rather
// than silently dropped — the operator decides what to do with a torn log.
func (s *FileStore) Load(ctx context.Context) ([]AuditEntry, error) {
	r, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("audit: open file store for load: %w", err)
	}
	defer r.Close()

	br := bufio.NewReader(r)

	// Header frame first.
	if _, err := readFrame(br); err != nil {
		return nil, fmt.Errorf("audit: read file store header: %w", err)
	}

	var out []AuditEntry
	for {
		frame, err := readFrame(br)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("audit: read record %d: %w", len(out), err)
		}
		var rec fileRecord
		if err := json.Unmarshal(frame, &rec); err != nil {
			return nil, fmt.Errorf("audit: decode record %d: %w", len(out), err)
		}
		e := AuditEntry{Seq: rec.Seq, EntryID: rec.EntryID, Actor: rec.Actor}
		if err := decodeStoredEntry(&e, rec.Timestamp, rec.EventKind, rec.Payload, rec.PreviousHash, rec.EntryHash); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
}

func readFrame(br *bufio.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(br, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("torn length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame length %d exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, fmt.Errorf("torn frame body: %w", err)
	}
	return body, nil
}

// Close releases the write handle.
func (s *FileStore) Close() error { return s.w.Close() }
