package storage

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lucko/bytebin/internal/content"
	"github.com/lucko/bytebin/internal/contentencoding"
)

// fileVersion is the on-disk format version this build writes. Version
// 1 files (pre-dating the encoding block) are still read correctly;
// readers must not drop support for it.
const fileVersion = 2

// LocalDisk stores one file per key in a flat directory. Writes are
// atomic: the file is written to a temp name in the same directory and
// renamed into place, the pattern used by most "diskFS" style stores
// for crash-consistency.
type LocalDisk struct {
	id  string
	dir string
}

// NewLocalDisk returns a backend rooted at dir, identified by id. The
// directory is created if it does not already exist.
func NewLocalDisk(id, dir string) (*LocalDisk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("localdisk: create dir: %w", err)
	}
	return &LocalDisk{id: id, dir: dir}, nil
}

func (d *LocalDisk) BackendID() string { return d.id }

func (d *LocalDisk) pathFor(key string) string {
	return filepath.Join(d.dir, key)
}

// ErrCorrupt is returned when a stored file is truncated or otherwise
// unreadable. Callers treat this the same as an expired record.
var ErrCorrupt = errors.New("localdisk: corrupt or truncated record")

func (d *LocalDisk) Save(ctx context.Context, rec *content.Record) error {
	tmp, err := os.CreateTemp(d.dir, ".tmp-"+rec.Key+"-*")
	if err != nil {
		return fmt.Errorf("localdisk: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	w := bufio.NewWriter(tmp)
	if err := writeRecord(w, rec); err != nil {
		tmp.Close()
		return fmt.Errorf("localdisk: write %s: %w", rec.Key, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, d.pathFor(rec.Key))
}

func writeRecord(w io.Writer, rec *content.Record) error {
	if err := binary.Write(w, binary.BigEndian, uint32(fileVersion)); err != nil {
		return err
	}
	if err := writeUTF(w, rec.Key); err != nil {
		return err
	}
	if err := writeLenPrefixed(w, []byte(rec.ContentType)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, expiryMillis(rec.Expiry)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, rec.LastModified.UnixMilli()); err != nil {
		return err
	}
	modifiable := byte(0)
	if rec.Modifiable {
		modifiable = 1
	}
	if err := binary.Write(w, binary.BigEndian, modifiable); err != nil {
		return err
	}
	if rec.Modifiable {
		if err := writeUTF(w, rec.AuthKey); err != nil {
			return err
		}
	}
	if err := writeLenPrefixed(w, []byte(strings.Join(rec.Encoding, ","))); err != nil {
		return err
	}
	return writeLenPrefixed(w, rec.Content)
}

func expiryMillis(t time.Time) int64 {
	if t.IsZero() {
		return -1
	}
	return t.UnixMilli()
}

func writeUTF(w io.Writer, s string) error {
	b := []byte(s)
	if err := binary.Write(w, binary.BigEndian, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readUTF(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeLenPrefixed(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// readRecord reads a record from r. When skipContent is true, the
// trailing content block's length is read but the bytes are skipped,
// used by List to enumerate metadata cheaply.
func readRecord(r io.Reader, key string, skipContent bool) (*content.Record, error) {
	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if version != 1 && version != 2 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}

	diskKey, err := readUTF(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	ctypeBytes, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var expiryMs, lastModMs int64
	if err := binary.Read(r, binary.BigEndian, &expiryMs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := binary.Read(r, binary.BigEndian, &lastModMs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var modifiableByte byte
	if err := binary.Read(r, binary.BigEndian, &modifiableByte); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var authKey string
	if modifiableByte == 1 {
		authKey, err = readUTF(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}

	var encoding []string
	if version == 1 {
		encoding = []string{contentencoding.GZIP}
	} else {
		encBytes, err := readLenPrefixed(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if len(encBytes) > 0 {
			encoding = strings.Split(string(encBytes), ",")
		}
	}

	rec := &content.Record{
		Key:          diskKey,
		ContentType:  string(ctypeBytes),
		Encoding:     encoding,
		LastModified: time.UnixMilli(lastModMs),
		Modifiable:   modifiableByte == 1,
		AuthKey:      authKey,
	}
	if expiryMs == -1 {
		rec.Expiry = time.Time{}
	} else {
		rec.Expiry = time.UnixMilli(expiryMs)
	}
	if rec.Key == "" {
		rec.Key = key
	}

	if skipContent {
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		rec.ContentLength = int64(n)
		return rec, nil
	}

	data, err := readLenPrefixed(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rec.Content = data
	rec.ContentLength = int64(len(data))
	return rec, nil
}

func (d *LocalDisk) Load(ctx context.Context, key string) (*content.Record, error) {
	f, err := os.Open(d.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	rec, err := readRecord(bufio.NewReader(f), key, false)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			_ = os.Remove(d.pathFor(key))
			return nil, nil
		}
		return nil, err
	}
	rec.BackendID = d.id
	return rec, nil
}

func (d *LocalDisk) Delete(ctx context.Context, key string) error {
	err := os.Remove(d.pathFor(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (d *LocalDisk) List(ctx context.Context) ([]*content.Record, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	var out []*content.Record
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		f, err := os.Open(filepath.Join(d.dir, e.Name()))
		if err != nil {
			continue
		}
		rec, err := readRecord(bufio.NewReader(f), e.Name(), true)
		f.Close()
		if err != nil {
			if errors.Is(err, ErrCorrupt) {
				_ = os.Remove(filepath.Join(d.dir, e.Name()))
				continue
			}
			continue
		}
		rec.BackendID = d.id
		out = append(out, rec)
	}
	return out, nil
}

func (d *LocalDisk) ListKeys(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}
