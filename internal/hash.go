package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// hashChunkSize is the read buffer used while fingerprinting.
const hashChunkSize = 64 * 1024

// Fingerprint computes the SHA-256 of a file's content, streamed in fixed
// chunks, as a lowercase hex string.
func Fingerprint(path string) (string, error) {
	return fingerprintWithBuffer(path, make([]byte, hashChunkSize))
}

func fingerprintWithBuffer(path string, buf []byte) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", IOError(path, "hash", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, onlyReader{f}, buf); err != nil {
		return "", IOError(path, "hash", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// onlyReader hides WriterTo so io.CopyBuffer honours the buffer size.
type onlyReader struct{ io.Reader }

// safeCopyPath generates a safe new path if dest exists by appending _2, _3...
func safeCopyPath(dest string) string {
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return dest
	}
	ext := filepath.Ext(dest)
	base := dest[:len(dest)-len(ext)]
	for i := 2; ; i++ {
		try := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(try); os.IsNotExist(err) {
			return try
		}
	}
}

// replaceFile moves src over dest. Rename is atomic on one filesystem; across
// filesystems the content is copied to a temp file next to dest first.
func replaceFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	if err := copyFileAtomic(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFileAtomic copies a file atomically (copy temp → rename)
func copyFileAtomic(src, dest string) error {
	tmp := dest + ".tmp"
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, dest)
}
