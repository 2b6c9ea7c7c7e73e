package store

import (
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/dlbrittain/chunkedgraph/internal/ids"
)

// Column family prefixes. Keeping operation-log keys
// big-endian on operation_id means Badger's native key ordering is already
// operation order, so ReadLogRows needs no secondary sort for the common
// case of a full-table scan.
const (
	prefixParent       byte = 0x01
	prefixChild        byte = 0x02
	prefixAtomic       byte = 0x03
	prefixCrossIndex   byte = 0x04
	prefixLogEntry     byte = 0x05
	prefixLogByUser    byte = 0x06
	prefixSequence     byte = 0x07
)

func be64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func parseBE64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// parentKey: 0x01 || child_id || ts
func parentKey(child ids.ID, ts int64) []byte {
	k := make([]byte, 0, 17)
	k = append(k, prefixParent)
	k = append(k, be64(uint64(child))...)
	k = append(k, be64(uint64(ts))...)
	return k
}

func parentPrefix(child ids.ID) []byte {
	k := make([]byte, 0, 9)
	k = append(k, prefixParent)
	k = append(k, be64(uint64(child))...)
	return k
}

// childKey: 0x02 || parent_id || ts || child_id
func childKey(parent ids.ID, ts int64, child ids.ID) []byte {
	k := make([]byte, 0, 25)
	k = append(k, prefixChild)
	k = append(k, be64(uint64(parent))...)
	k = append(k, be64(uint64(ts))...)
	k = append(k, be64(uint64(child))...)
	return k
}

func childPrefix(parent ids.ID) []byte {
	k := make([]byte, 0, 9)
	k = append(k, prefixChild)
	k = append(k, be64(uint64(parent))...)
	return k
}

// atomicKey: 0x03 || min(u,v) || max(u,v)
func atomicKey(u, v ids.ID) []byte {
	lo, hi := u, v
	if lo > hi {
		lo, hi = hi, lo
	}
	k := make([]byte, 0, 17)
	k = append(k, prefixAtomic)
	k = append(k, be64(uint64(lo))...)
	k = append(k, be64(uint64(hi))...)
	return k
}

func encodeAffinity(aff float32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, math.Float32bits(aff))
	return b
}

func decodeAffinity(b []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

// crossIndexKey: 0x04 || node_id || partner_id (presence marker; the value
// is empty, the key itself is the fact).
func crossIndexKey(node, partner ids.ID) []byte {
	k := make([]byte, 0, 17)
	k = append(k, prefixCrossIndex)
	k = append(k, be64(uint64(node))...)
	k = append(k, be64(uint64(partner))...)
	return k
}

func crossIndexPrefix(node ids.ID) []byte {
	k := make([]byte, 0, 9)
	k = append(k, prefixCrossIndex)
	k = append(k, be64(uint64(node))...)
	return k
}

// logEntryKey: 0x05 || operation_id (big-endian so key order == op order).
func logEntryKey(operationID uint64) []byte {
	k := make([]byte, 0, 9)
	k = append(k, prefixLogEntry)
	k = append(k, be64(operationID)...)
	return k
}

// logByUserKey: 0x06 || user_id || operation_id
func logByUserKey(userID string, operationID uint64) []byte {
	k := make([]byte, 0, 1+len(userID)+8)
	k = append(k, prefixLogByUser)
	k = append(k, []byte(userID)...)
	k = append(k, be64(operationID)...)
	return k
}

func logByUserPrefix(userID string) []byte {
	k := make([]byte, 0, 1+len(userID))
	k = append(k, prefixLogByUser)
	k = append(k, []byte(userID)...)
	return k
}

// sequenceKey: 0x07 || layer || cx || cy || cz
func sequenceKey(layer int, chunk ids.ChunkCoord) []byte {
	k := make([]byte, 0, 17)
	k = append(k, prefixSequence)
	k = append(k, byte(layer))
	k = append(k, be64(uint64(chunk.X))...)
	k = append(k, be64(uint64(chunk.Y))...)
	k = append(k, be64(uint64(chunk.Z))...)
	return k
}

// serializableLogEntry uses a JSON-via-intermediate-struct codec idiom,
// keeping the wire layout decoupled from the in-memory LogEntry shape.
type serializableLogEntry struct {
	OperationID  uint64      `json:"operation_id"`
	UserID       string      `json:"user_id"`
	Actor        string      `json:"actor"`
	Timestamp    int64       `json:"timestamp"`
	Kind         string      `json:"kind"`
	AddedEdges   [][2]uint64 `json:"added_edges,omitempty"`
	RemovedEdges [][2]uint64 `json:"removed_edges,omitempty"`
	OldRootIDs   []uint64    `json:"old_root_ids,omitempty"`
	NewRootIDs   []uint64    `json:"new_root_ids,omitempty"`
	NewLvl2IDs   []uint64    `json:"new_lvl2_ids,omitempty"`
	UndoOf       uint64      `json:"undo_of,omitempty"`
	RedoOf       uint64      `json:"redo_of,omitempty"`
	Superseded   bool        `json:"superseded,omitempty"`
}

func encodeLogEntry(e LogEntry) ([]byte, error) {
	return json.Marshal(serializableLogEntry{
		OperationID:  e.OperationID,
		UserID:       e.UserID,
		Actor:        e.Actor,
		Timestamp:    e.Timestamp,
		Kind:         string(e.Kind),
		AddedEdges:   e.AddedEdges,
		RemovedEdges: e.RemovedEdges,
		OldRootIDs:   e.OldRootIDs,
		NewRootIDs:   e.NewRootIDs,
		NewLvl2IDs:   e.NewLvl2IDs,
		UndoOf:       e.UndoOf,
		RedoOf:       e.RedoOf,
		Superseded:   e.Superseded,
	})
}

func decodeLogEntry(b []byte) (LogEntry, error) {
	var s serializableLogEntry
	if err := json.Unmarshal(b, &s); err != nil {
		return LogEntry{}, err
	}
	return LogEntry{
		OperationID:  s.OperationID,
		UserID:       s.UserID,
		Actor:        s.Actor,
		Timestamp:    s.Timestamp,
		Kind:         OperationKind(s.Kind),
		AddedEdges:   s.AddedEdges,
		RemovedEdges: s.RemovedEdges,
		OldRootIDs:   s.OldRootIDs,
		NewRootIDs:   s.NewRootIDs,
		NewLvl2IDs:   s.NewLvl2IDs,
		UndoOf:       s.UndoOf,
		RedoOf:       s.RedoOf,
		Superseded:   s.Superseded,
	}, nil
}
