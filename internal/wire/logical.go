package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// logicalEntry is the stored body of a logically-expiring cache entry:
//
//	{"data": <payload>, "expireTime": "<RFC3339Nano>"}
//
// When the value codec emits JSON the payload is embedded verbatim. Binary
// payloads (msgpack, cbor, protobuf) are carried as a base64 string and
// flagged with "binary": true.
type logicalEntry struct {
	Data       json.RawMessage `json:"data"`
	ExpireTime *time.Time      `json:"expireTime"`
	Binary     bool            `json:"binary,omitempty"`
}

// EncodeLogical wraps an encoded value together with its logical expiry.
func EncodeLogical(payload []byte, expireAt time.Time) ([]byte, error) {
	e := logicalEntry{ExpireTime: &expireAt}
	if len(payload) > 0 && json.Valid(payload) {
		e.Data = payload
	} else {
		b, err := json.Marshal(payload) // []byte -> base64 string
		if err != nil {
			return nil, err
		}
		e.Data = b
		e.Binary = true
	}
	return json.Marshal(e)
}

// DecodeLogical is the inverse of EncodeLogical. Any shape mismatch
// (not JSON, missing expireTime, missing data) reports ErrCorrupt.
func DecodeLogical(b []byte) (payload []byte, expireAt time.Time, err error) {
	var e logicalEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if e.ExpireTime == nil || len(e.Data) == 0 {
		return nil, time.Time{}, ErrCorrupt
	}
	if !e.Binary {
		return []byte(e.Data), *e.ExpireTime, nil
	}
	var raw []byte
	if err := json.Unmarshal(e.Data, &raw); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return raw, *e.ExpireTime, nil
}
