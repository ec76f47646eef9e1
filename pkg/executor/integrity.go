package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// VerifyAsset checks that the model asset at path exists and, when want is
// non-empty, that its SHA-256 digest equals want (hex, any case).
func VerifyAsset(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: model asset: %v", ErrResourceUnavailable, err)
	}
	defer f.Close()

	if want == "" {
		return nil
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrResourceUnavailable, path, err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, strings.TrimSpace(want)) {
		return fmt.Errorf("%w: %s digest %s, want %s", ErrIntegrityCheckFailed, path, got, want)
	}
	return nil
}
