package kv

import (
	"fmt"
	"sync"
)

// Key layout:
//
//	dataset:<id>                          dataset JSON
//	dataset:idx:slug:<slug>               dataset id
//	spcgen:<datasetID>                    current species generation
//	spc:<datasetID>:<gen>:<pos>           species JSON, pos keeps sheet order
//	spcname:<datasetID>:<gen>:<name>      species record key
const (
	datasetPrefix     = "dataset:"
	speciesGenPrefix  = "spcgen:"
	speciesPrefix     = "spc:"
	speciesNamePrefix = "spcname:"
)

// keyPool provides reusable byte slices for building database keys.
var keyPool = sync.Pool{
	New: func() any {
		// Prefix, a 24 byte dataset ID, two counters and most species names fit.
		return make([]byte, 0, 128)
	},
}

// buildKey concatenates parts into a pooled buffer.
// Callers MUST call releaseKey when done with the key.
func buildKey(parts ...string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0]
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

// buildIndexKey builds "<prefix>idx:<name>:<value>" into a pooled buffer.
// Callers MUST call releaseKey when done with the key.
func buildIndexKey(prefix, indexName, value string) []byte {
	return buildKey(prefix, "idx:", indexName, ":", value)
}

// releaseKey returns a key buffer to the pool. The slice must not be used
// afterwards.
func releaseKey(key []byte) {
	if cap(key) <= 512 {
		keyPool.Put(key[:0]) //nolint:staticcheck // slices are the pooled type
	}
}

func generationKey(datasetID string) []byte {
	return []byte(speciesGenPrefix + datasetID)
}

// speciesGenPrefixFor is the prefix shared by every record of one generation.
func speciesGenPrefixFor(datasetID string, gen uint64) string {
	return fmt.Sprintf("%s%s:%08d:", speciesPrefix, datasetID, gen)
}

func speciesKey(datasetID string, gen uint64, pos int) []byte {
	return fmt.Appendf(nil, "%s%08d", speciesGenPrefixFor(datasetID, gen), pos)
}

func speciesNameKey(datasetID string, gen uint64, name string) []byte {
	return fmt.Appendf(nil, "%s%s:%08d:%s", speciesNamePrefix, datasetID, gen, name)
}

func speciesNameGenPrefix(datasetID string, gen uint64) string {
	return fmt.Sprintf("%s%s:%08d:", speciesNamePrefix, datasetID, gen)
}
