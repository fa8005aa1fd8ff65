package levelfile

import (
	"bytes"
	"fmt"
	"os"
)

// GuessLoad peeks the first seven bytes of the file at path; if they
// match the native magic it decodes the native format, otherwise it
// falls back to the legacy importer. A successful legacy import is
// transparently rewritten as a native file and the original is renamed
// with a trailing '~' so it is never re-ingested.
func GuessLoad(path string) (*WorldData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("levelfile: opening %s: %w", path, err)
	}
	defer f.Close()

	var head [7]byte
	n, err := f.Read(head[:])
	if err != nil && n == 0 {
		return nil, fmt.Errorf("levelfile: reading %s: %w", path, err)
	}

	if bytes.Equal(head[:n], Magic[:]) {
		if _, err := f.Seek(0, 0); err != nil {
			return nil, err
		}
		return Load(f)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("levelfile: stat %s: %w", path, err)
	}

	data, err := LoadLegacy(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("levelfile: legacy import of %s: %w", path, err)
	}

	if err := rewriteAsNative(path, data); err != nil {
		return nil, fmt.Errorf("levelfile: rewriting %s as native: %w", path, err)
	}

	return data, nil
}

// rewriteAsNative saves data to the legacy path with ".hbit" appended
// (the original extension is kept) and renames the original legacy file
// with a trailing '~'.
func rewriteAsNative(legacyPath string, data *WorldData) error {
	nativePath := legacyPath + ".hbit"
	out, err := os.Create(nativePath)
	if err != nil {
		return err
	}
	if err := Save(out, data); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(legacyPath, legacyPath+"~")
}
