package applier

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// decodePayload gob-decodes an event's payload into v. The example
// appliers use gob for their event payloads, the same encoding the
// caller package's own wire frames use, rather than inventing a second
// ad hoc format for a handful of small demo structs.
func decodePayload(payload []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return fmt.Errorf("applier: decoding event payload: %w", err)
	}
	return nil
}

// encodePayload gob-encodes v, used to pack a node's value bytes (e.g. a
// decoded material type, re-encoded so it can be read back the same way
// a future event's match would expect).
func encodePayload(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("applier: encoding value: %w", err)
	}
	return buf.Bytes(), nil
}
