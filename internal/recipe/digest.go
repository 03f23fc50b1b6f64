package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/uzulab/drydock/internal/model"
)

// Digest computes a stable content digest over the build-affecting
// fields of a variant: name, base image, apt packages, pip extras,
// ASGI target, and port strategy. HealthPath is excluded because it
// only steers verification, not the image.
//
// The digest is recorded as a label on built images so an unchanged
// recipe can skip its rebuild.
//
// Determinism rules:
//   - Apt packages are treated as a set and sorted, matching the
//     sorted package list the renderer emits.
//   - Pip extras keep their order, matching the pip command line.
//   - All fields are length-prefixed to avoid ambiguity between
//     adjacent values.
func Digest(v model.Variant) string {
	h := sha256.New()

	writeField := func(data []byte) {
		length := uint64(len(data))
		lengthBytes := []byte{
			byte(length >> 56),
			byte(length >> 48),
			byte(length >> 40),
			byte(length >> 32),
			byte(length >> 24),
			byte(length >> 16),
			byte(length >> 8),
			byte(length),
		}
		h.Write(lengthBytes)
		h.Write(data)
	}

	writeField([]byte(v.Name))
	writeField([]byte(v.BaseImage))

	sortedApt := make([]string, len(v.AptPackages))
	copy(sortedApt, v.AptPackages)
	sort.Strings(sortedApt)
	writeField([]byte{byte(len(sortedApt))})
	for _, pkg := range sortedApt {
		writeField([]byte(pkg))
	}

	writeField([]byte{byte(len(v.PipExtras))})
	for _, pkg := range v.PipExtras {
		writeField([]byte(pkg))
	}

	writeField([]byte(v.ASGIApp))
	writeField([]byte(v.Port.Kind))
	writeField([]byte(strconv.Itoa(v.Port.Number)))
	writeField([]byte(v.Port.Env))

	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
