package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
)

// Dir serves documents from a local directory laid out as <agreement-id>/<filename>.
// All access goes through os.Root, so keys cannot escape the directory.
type Dir struct {
	root *os.Root
}

func OpenDir(dir string) (*Dir, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open attachment dir: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Close() error {
	return d.root.Close()
}

func (d *Dir) Get(_ context.Context, ref Ref) ([]byte, error) {
	key, err := cleanKey(ref.Key)
	if err != nil {
		return nil, err
	}
	f, err := d.root.Open(key)
	if err != nil {
		return nil, translateFSErr(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, translateFSErr(err)
	}
	if info.IsDir() {
		return nil, sentinel.ErrNotFound
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read attachment %s: %w", key, err)
	}
	return data, nil
}

func (d *Dir) Exists(_ context.Context, ref Ref) (bool, error) {
	key, err := cleanKey(ref.Key)
	if err != nil {
		return false, nil
	}
	info, err := d.root.Stat(key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// Latest returns the most recently modified file in the agreement's directory.
func (d *Dir) Latest(_ context.Context, agreementID id.AgreementID) (Ref, error) {
	entries, err := fs.ReadDir(d.root.FS(), agreementID.String())
	if err != nil {
		return Ref{}, translateFSErr(err)
	}
	var (
		latest  fs.FileInfo
		current string
	)
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if latest == nil || info.ModTime().After(latest.ModTime()) {
			latest, current = info, e.Name()
		}
	}
	if latest == nil {
		return Ref{}, sentinel.ErrNotFound
	}
	contentType := mime.TypeByExtension(filepath.Ext(current))
	if contentType == "" {
		contentType = DefaultContentType
	}
	return Ref{
		Key:         path.Join(agreementID.String(), current),
		Filename:    current,
		ContentType: contentType,
	}, nil
}

func cleanKey(key string) (string, error) {
	if key == "" || !fs.ValidPath(key) {
		return "", sentinel.ErrNotFound
	}
	return key, nil
}

func translateFSErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return sentinel.ErrNotFound
	}
	return err
}
