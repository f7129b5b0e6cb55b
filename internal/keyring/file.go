package keyring

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// File is a durable Store backed by a JSON file, the way CLI tools keep
// their cached credentials. Writes go through a temp file and rename so
// a crash mid-write never leaves a torn file behind.
type File struct {
	path   string
	values map[string]string
}

// NewFile opens (or creates) a file-backed store at path. A missing file
// starts empty; an unreadable or corrupt file is treated as empty and
// will be overwritten on the next Set, matching the session core's
// "silently repair corrupt storage" policy.
func NewFile(path string) *File {
	f := &File{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("keyring file unreadable, starting empty",
				slog.String("path", path),
				slog.Any("error", err),
			)
		}
		return f
	}

	if err := json.Unmarshal(data, &f.values); err != nil {
		slog.Warn("keyring file corrupt, starting empty",
			slog.String("path", path),
			slog.Any("error", err),
		)
		f.values = make(map[string]string)
	}

	return f
}

// Get returns the value for key and whether it was present.
func (f *File) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Set writes the value for key and flushes to disk.
func (f *File) Set(key, value string) {
	f.values[key] = value
	f.flush()
}

// Delete removes key and flushes to disk.
func (f *File) Delete(key string) {
	if _, ok := f.values[key]; !ok {
		return
	}
	delete(f.values, key)
	f.flush()
}

// flush writes the current map atomically. Errors are logged, not
// returned: persistence failures degrade to a session-scoped experience
// rather than breaking the auth flow.
func (f *File) flush() {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		slog.Error("marshaling keyring", slog.Any("error", err))
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".keyring-*")
	if err != nil {
		slog.Error("creating keyring temp file", slog.Any("error", err))
		return
	}

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmp.Name())
		slog.Error("writing keyring file",
			slog.Any("write_error", werr),
			slog.Any("close_error", cerr),
		)
		return
	}

	// 0600: the file holds a bearer token.
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		slog.Warn("chmod keyring file", slog.Any("error", err))
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		slog.Error("replacing keyring file", slog.Any("error", err))
	}
}
