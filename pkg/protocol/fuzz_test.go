package protocol

import "testing"

// FuzzDecodeBatchJSON ensures hostile batch payloads never panic the
// decoder; they either decode or fail with an error.
func FuzzDecodeBatchJSON(f *testing.F) {
	f.Add([]byte(`{"version":1,"batchId":1,"operations":[]}`))
	f.Add([]byte(`{"version":1,"batchId":2,"operations":[{"op":"CREATE","id":1,"type":"View","props":{"a":1}}]}`))
	f.Add([]byte(`{"operations":[{"op":"REORDER","parentId":0,"childIds":[1,2,3]}]}`))
	f.Add([]byte(`{"op":"DELETE"}`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`{"operations":[{"op":"TEXT","id":4,"text":"x"}]}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		batch, err := DecodeBatchJSON(data)
		if err != nil {
			return
		}
		// Whatever decodes must re-encode.
		if _, err := batch.EncodeJSON(); err != nil {
			t.Fatalf("decoded batch failed to re-encode: %v", err)
		}
	})
}
