package images

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gocv.io/x/gocv"
)

// MatChecksum generates a deterministic checksum of a Mat's dimensions and
// pixel data. Two Mats with the same checksum render identically.
//
// Arguments:
//   - mat: The Mat to compute checksum for.
//
// Returns:
//   - A hex-encoded SHA-256 checksum string, or "empty" for an empty Mat.
func MatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	hash := sha256.New()
	fmt.Fprintf(hash, "%dx%dx%d:%d;", mat.Cols(), mat.Rows(), mat.Channels(), mat.Type())
	hash.Write(mat.ToBytes())
	return hex.EncodeToString(hash.Sum(nil))
}
