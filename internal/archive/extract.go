// Package archive extracts the relevant payload from downloaded report
// archives and discards the archive afterwards.
//
// Archive entries are untrusted input: absolute paths and parent-directory
// segments are rejected so extraction can never write outside the
// destination directory.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"reportbridge/internal/services"
)

// ExtractSingle streams the first safe member matching ext (e.g. ".csv")
// from a tar.gz archive into destDir, using only the member's base name.
// Pre-existing files with the same extension are purged first so the
// directory holds at most one live data file. The archive is removed after a
// successful extraction. Returns the extracted file path.
func ExtractSingle(archivePath, destDir, ext string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create destination directory: %w", err)
	}
	if err := purgeByExtension(destDir, ext); err != nil {
		return "", err
	}

	extracted, err := extractFirstMatch(archivePath, destDir, ext)
	if err != nil {
		return "", err
	}

	if err := os.Remove(archivePath); err != nil {
		return "", fmt.Errorf("remove archive after extraction: %w", err)
	}
	return extracted, nil
}

// ExtractPromote extracts the whole archive tree into destDir, removes the
// archive, then promotes the first ext file found in the nested directory up
// to destDir and deletes all extracted subdirectories. A missing or empty
// nested directory is not an error; the promoted path is empty and the
// caller decides what that means.
func ExtractPromote(archivePath, destDir, nestedDir, ext string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create destination directory: %w", err)
	}
	if err := extractTree(archivePath, destDir); err != nil {
		return "", err
	}
	if err := os.Remove(archivePath); err != nil {
		return "", fmt.Errorf("remove archive after extraction: %w", err)
	}

	promoted, err := promoteFirst(filepath.Join(destDir, nestedDir), destDir, ext)
	if err != nil {
		return "", err
	}
	if err := removeSubdirectories(destDir); err != nil {
		return "", err
	}
	return promoted, nil
}

// safeMemberName reports whether a tar member may be extracted and returns
// its cleaned relative path. Absolute paths and any ".." segment disqualify
// the member.
func safeMemberName(name string) (string, bool) {
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return "", false
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." {
		return "", false
	}
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == ".." {
			return "", false
		}
	}
	return cleaned, true
}

func extractFirstMatch(archivePath, destDir, ext string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return "", fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	reader := tar.NewReader(gz)
	lowerExt := strings.ToLower(ext)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read archive member: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		cleaned, ok := safeMemberName(header.Name)
		if !ok {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(cleaned), lowerExt) {
			continue
		}

		target := filepath.Join(destDir, path.Base(cleaned))
		out, err := os.Create(target)
		if err != nil {
			return "", fmt.Errorf("create extracted file: %w", err)
		}
		if _, err := io.Copy(out, reader); err != nil {
			out.Close()
			return "", fmt.Errorf("extract %s: %w", cleaned, err)
		}
		if err := out.Close(); err != nil {
			return "", fmt.Errorf("close extracted file: %w", err)
		}
		return target, nil
	}

	return "", services.Wrap(services.ErrNoPayload, "", "extract archive",
		fmt.Sprintf("no safe %s member in %s", ext, filepath.Base(archivePath)), nil)
}

func extractTree(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	reader := tar.NewReader(gz)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read archive member: %w", err)
		}
		cleaned, ok := safeMemberName(header.Name)
		if !ok {
			continue
		}
		target := filepath.Join(destDir, filepath.FromSlash(cleaned))

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", cleaned, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create parent for %s: %w", cleaned, err)
			}
			out, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("create extracted file: %w", err)
			}
			if _, err := io.Copy(out, reader); err != nil {
				out.Close()
				return fmt.Errorf("extract %s: %w", cleaned, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("close extracted file: %w", err)
			}
		default:
			// Symlinks and special files from an untrusted archive are skipped.
		}
	}
	return nil
}

func purgeByExtension(dir, ext string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list destination directory: %w", err)
	}
	lowerExt := strings.ToLower(ext)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(entry.Name()), lowerExt) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("remove stale file %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func promoteFirst(nestedDir, destDir, ext string) (string, error) {
	entries, err := os.ReadDir(nestedDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("list nested directory: %w", err)
	}
	lowerExt := strings.ToLower(ext)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(entry.Name()), lowerExt) {
			continue
		}
		source := filepath.Join(nestedDir, entry.Name())
		target := filepath.Join(destDir, entry.Name())
		if err := os.Rename(source, target); err != nil {
			return "", fmt.Errorf("promote %s: %w", entry.Name(), err)
		}
		return target, nil
	}
	return "", nil
}

func removeSubdirectories(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("list destination directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("remove extracted directory %s: %w", entry.Name(), err)
		}
	}
	return nil
}
