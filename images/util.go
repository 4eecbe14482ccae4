package images

import (
	"crypto/md5"
	"fmt"

	"gocv.io/x/gocv"
)

// ComputeMatChecksum generates a deterministic checksum of a Mat's pixels.
//
// Arguments:
// - mat: The Mat to compute checksum for.
//
// Returns:
// - A hex-encoded MD5 checksum string, "empty" for an empty Mat.
func ComputeMatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}
	if !mat.IsContinuous() {
		mat = mat.Clone()
		defer mat.Close()
	}

	data, _ := mat.DataPtrUint8()
	hash := md5.New()
	hash.Write(data)
	return fmt.Sprintf("%x", hash.Sum(nil))
}
