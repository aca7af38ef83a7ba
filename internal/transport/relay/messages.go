package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// Relay protocol verbs. Frames are JSON arrays with the verb first:
//
//	client -> relay: ["AUTH", token], ["EVENT", event],
//	                 ["REQ", subID, filter], ["CLOSE", subID]
//	relay -> client: ["OK", eventID, accepted, reason],
//	                 ["EVENT", subID, event], ["EOSE", subID], ["NOTICE", msg]
const (
	verbAuth   = "AUTH"
	verbEvent  = "EVENT"
	verbReq    = "REQ"
	verbClose  = "CLOSE"
	verbOK     = "OK"
	verbEOSE   = "EOSE"
	verbNotice = "NOTICE"
)

// Event is the relay's record unit. (Author, Kind, Identifier) addresses a
// replaceable record: publishing again under the same triple supersedes the
// previous value on the relay.
type Event struct {
	ID         string          `json:"id"`
	Author     string          `json:"author"`
	Kind       int             `json:"kind"`
	Identifier string          `json:"identifier"`
	Payload    json.RawMessage `json:"payload"`
	Tags       [][2]string     `json:"tags"`
	CreatedAt  int64           `json:"created_at"`
}

// ComputeEventID derives the event id from the addressable triple and the
// payload. Re-publishing an identical event (a retry after a lost ack)
// produces the same id, so the relay acks it as a duplicate instead of
// storing a second copy.
func ComputeEventID(author string, kind int, identifier string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(author))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(kind)))
	h.Write([]byte{0})
	h.Write([]byte(identifier))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// encodeFrame serializes a protocol frame: the verb followed by its
// arguments.
func encodeFrame(verb string, args ...any) ([]byte, error) {
	frame := make([]any, 0, len(args)+1)
	frame = append(frame, verb)
	frame = append(frame, args...)

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", verb, err)
	}
	return data, nil
}

// decodeFrame splits a raw frame into its verb and raw arguments.
func decodeFrame(data []byte) (verb string, args []json.RawMessage, err error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", nil, fmt.Errorf("frame is not a JSON array: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("empty frame")
	}
	if err := json.Unmarshal(parts[0], &verb); err != nil {
		return "", nil, fmt.Errorf("frame verb is not a string: %w", err)
	}
	return verb, parts[1:], nil
}
