package wal

import (
	"encoding/json"
	"hash/crc32"
)

// Entry is a single line of the write-ahead log.
type Entry struct {
	Sequence        uint64    `json:"sequence"`
	TimestampMicros uint64    `json:"timestamp_micros"`
	MachineID       string    `json:"machine_id"`
	Operation       Operation `json:"operation"`
	Checksum        uint32    `json:"checksum"`
}

// NewEntry builds an Entry with a computed CRC32 checksum over the
// serialized operation.
func NewEntry(sequence uint64, timestampMicros uint64, machineID string, op Operation) (Entry, error) {
	sum, err := checksum(op)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Sequence:        sequence,
		TimestampMicros: timestampMicros,
		MachineID:       machineID,
		Operation:       op,
		Checksum:        sum,
	}, nil
}

func checksum(op Operation) (uint32, error) {
	b, err := json.Marshal(op)
	if err != nil {
		return 0, err
	}
	return crc32.ChecksumIEEE(b), nil
}

// Verify reports whether the entry's checksum matches its operation.
func (e Entry) Verify() bool {
	sum, err := checksum(e.Operation)
	if err != nil {
		return false
	}
	return sum == e.Checksum
}

// ToLine serializes the entry to a single JSON line (no trailing newline).
func (e Entry) ToLine() ([]byte, error) {
	return json.Marshal(e)
}

// EntryFromLine parses a single JSON line into an Entry.
func EntryFromLine(line []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
