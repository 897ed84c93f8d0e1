package storage

import (
	"crypto/rand"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ImagePurpose selects the prefix an uploaded image is stored under.
type ImagePurpose string

const (
	PurposeProductCover ImagePurpose = "product-cover"
	PurposeVariantImage ImagePurpose = "variant-image"
)

var purposePrefixes = map[ImagePurpose]string{
	PurposeProductCover: "products/covers",
	PurposeVariantImage: "products/variants",
}

var allowedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {}, ".gif": {},
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// ObjectName returns a fresh, sortable object name for an uploaded file, keeping the original
// extension. The original base name is discarded.
func ObjectName(purpose ImagePurpose, originalName string, now time.Time) (string, error) {
	prefix, ok := purposePrefixes[purpose]
	if !ok {
		return "", fmt.Errorf("storage: unsupported image purpose %q", purpose)
	}
	fileName, err := validateFileName(originalName)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(path.Ext(fileName))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", fmt.Errorf("storage: file extension %q not allowed", ext)
	}

	entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("storage: generate object id: %w", err)
	}
	return fmt.Sprintf("%s/%s%s", prefix, strings.ToLower(id.String()), ext), nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}

// validateObjectName rejects names that could escape the store root.
func validateObjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("storage: object name is required")
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "..") || strings.Contains(name, "\\") {
		return "", fmt.Errorf("storage: object name %q is not allowed", name)
	}
	return name, nil
}
