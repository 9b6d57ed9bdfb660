package store

import "fmt"

// NextIDs returns count sequential chunk ids of the form
// "chunk_{collectionName}_{ordinal}" starting at startOrdinal. The
// caller reads the collection's current count first and uses it as
// the starting ordinal, so appends never reuse an id.
func NextIDs(collectionName string, startOrdinal, count int) []string {
	ids := make([]string, count)
	for i := 0; i < count; i++ {
		ids[i] = fmt.Sprintf("chunk_%s_%d", collectionName, startOrdinal+i)
	}
	return ids
}
