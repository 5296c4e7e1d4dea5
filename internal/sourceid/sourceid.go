// Package sourceid derives deterministic document IDs from source
// identities, so re-ingesting the same file or connector item updates the
// existing document instead of duplicating it.
package sourceid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// FileDocID returns a stable document ID for the given absolute path.
// Same path always yields the same ID.
func FileDocID(absolutePath string) string {
	return docID("file", filepath.Clean(absolutePath))
}

// RemoteDocID returns a stable document ID for a connector item, keyed by
// source type and the connector's own reference (repo path, page ID,
// ticket key).
func RemoteDocID(sourceType, ref string) string {
	return docID(sourceType, ref)
}

func docID(kind, ref string) string {
	hash := sha256.Sum256([]byte(ref))
	return kind + ":" + hex.EncodeToString(hash[:])
}
