package hash

import (
	"crypto/md5"
	"encoding/hex"

	"imagesweep/internal/models"
)

// ContentFingerprint computes the exact-match fingerprint of raw file bytes.
// Width and height are the decoded image dimensions; they are carried along
// but play no part in content comparison.
func ContentFingerprint(data []byte, width, height int) models.Fingerprint {
	sum := md5.Sum(data)
	return models.Fingerprint{
		Kind:   models.KindExact,
		Hash:   hex.EncodeToString(sum[:]),
		Width:  width,
		Height: height,
	}
}

// SameContent reports whether two records were read from byte-identical files
func SameContent(x, y models.ImageRecord) bool {
	return x.Original.Hash == y.Original.Hash
}
