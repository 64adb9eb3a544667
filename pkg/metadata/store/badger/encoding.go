package badger

import (
	"encoding/json"
	"fmt"

	"github.com/dropgate/dropgate/pkg/metadata"
)

// Key namespace:
//
//	Data Type     Prefix    Key Format       Value Type
//	User Record   "user:"   user:<userKey>   UserRecord (JSON)
//
// One key per user keeps transactions small and makes per-user range
// scans trivial if a finer split (one key per upload) is ever needed.
const prefixUser = "user:"

// keyUser generates the key for a user record: "user:<userKey>".
func keyUser(userKey string) []byte {
	return []byte(prefixUser + userKey)
}

// encodeUser serializes a user record to JSON. Map keys and chunk sets
// encode in sorted order, so equal records produce equal bytes.
func encodeUser(rec *metadata.UserRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode user record: %w", err)
	}
	return data, nil
}

// decodeUser deserializes a user record from JSON.
func decodeUser(data []byte) (*metadata.UserRecord, error) {
	var rec metadata.UserRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode user record: %w", err)
	}
	return &rec, nil
}
