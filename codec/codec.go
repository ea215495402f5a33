// Package codec (de)serializes typed records to the byte blobs coorddb
// stores under paths. Pick one codec per record type and keep it stable for
// the lifetime of the data; codecs are not self-describing.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
