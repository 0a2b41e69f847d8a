// Package index implements the durable, single-file metadata store
// that the coordinator consults to resolve a key to its backend and
// to drive housekeeping and metrics.
package index

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/lucko/bytebin/internal/content"
)

var (
	bucketRecords = []byte("records")
	// bucketByExpiry holds composite keys (expiryMillisBigEndian + "\x00"
	// + key) mapping to nothing; it exists purely to support an
	// ordered range scan for GetExpired without a second database
	// engine or a full table scan.
	bucketByExpiry = []byte("by_expiry")
)

// Index is a bbolt-backed keyed store of record metadata (no content
// bytes). It is safe for concurrent use; bbolt serialises writers
// internally.
type Index struct {
	db *bbolt.DB
}

// row is the gob-encoded value stored for each key. It mirrors
// content.Record minus the unexported save-signal fields, which gob
// cannot (and should not) carry across a restart.
type row struct {
	Key           string
	ContentType   string
	Encoding      []string
	ExpiryMillis  int64 // -1 means never
	LastModified  int64
	Modifiable    bool
	AuthKey       string
	BackendID     string
	ContentLength int64
}

// Open creates or opens the index database file at path, creating its
// buckets if this is a fresh file.
func Open(path string) (*Index, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketByExpiry)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("index: init buckets: %w", err)
	}
	return &Index{db: db}, nil
}

func (i *Index) Close() error { return i.db.Close() }

func toRow(rec *content.Record) row {
	r := row{
		Key:           rec.Key,
		ContentType:   rec.ContentType,
		Encoding:      rec.Encoding,
		LastModified:  rec.LastModified.UnixMilli(),
		Modifiable:    rec.Modifiable,
		AuthKey:       rec.AuthKey,
		BackendID:     rec.BackendID,
		ContentLength: rec.ContentLength,
	}
	if rec.Expiry.IsZero() {
		r.ExpiryMillis = -1
	} else {
		r.ExpiryMillis = rec.Expiry.UnixMilli()
	}
	return r
}

func (r row) toRecord() *content.Record {
	rec := &content.Record{
		Key:           r.Key,
		ContentType:   r.ContentType,
		Encoding:      r.Encoding,
		Modifiable:    r.Modifiable,
		AuthKey:       r.AuthKey,
		BackendID:     r.BackendID,
		ContentLength: r.ContentLength,
		LastModified:  time.UnixMilli(r.LastModified),
	}
	if r.ExpiryMillis == -1 {
		rec.Expiry = time.Time{}
	} else {
		rec.Expiry = time.UnixMilli(r.ExpiryMillis)
	}
	return rec
}

func encodeRow(r row) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRow(b []byte) (row, error) {
	var r row
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return row{}, err
	}
	return r, nil
}

func expiryIndexKey(expiryMillis int64, key string) []byte {
	buf := make([]byte, 8+1+len(key))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiryMillis))
	buf[8] = 0
	copy(buf[9:], key)
	return buf
}

// Put upserts rec's metadata, keeping the secondary expiry index in
// sync within the same transaction.
func (i *Index) Put(rec *content.Record) error {
	return i.db.Update(func(tx *bbolt.Tx) error {
		return i.put(tx, rec)
	})
}

func (i *Index) put(tx *bbolt.Tx, rec *content.Record) error {
	records := tx.Bucket(bucketRecords)
	byExpiry := tx.Bucket(bucketByExpiry)

	// if a row already exists for this key, remove its stale expiry
	// index entry first.
	if existing := records.Get([]byte(rec.Key)); existing != nil {
		old, err := decodeRow(existing)
		if err == nil {
			_ = byExpiry.Delete(expiryIndexKey(old.ExpiryMillis, old.Key))
		}
	}

	r := toRow(rec)
	encoded, err := encodeRow(r)
	if err != nil {
		return err
	}
	if err := records.Put([]byte(rec.Key), encoded); err != nil {
		return err
	}
	return byExpiry.Put(expiryIndexKey(r.ExpiryMillis, r.Key), nil)
}

// PutAll bulk-upserts records, used to rebuild the index from a
// backend listing.
func (i *Index) PutAll(recs []*content.Record) error {
	return i.db.Update(func(tx *bbolt.Tx) error {
		for _, rec := range recs {
			if err := i.put(tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns the metadata row for key, or nil if absent.
func (i *Index) Get(key string) (*content.Record, error) {
	var rec *content.Record
	err := i.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRecords).Get([]byte(key))
		if v == nil {
			return nil
		}
		r, err := decodeRow(v)
		if err != nil {
			return err
		}
		rec = r.toRecord()
		return nil
	})
	return rec, err
}

// Remove deletes key's metadata row and its expiry index entry.
func (i *Index) Remove(key string) error {
	return i.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		v := records.Get([]byte(key))
		if v == nil {
			return nil
		}
		r, err := decodeRow(v)
		if err != nil {
			return err
		}
		if err := records.Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(bucketByExpiry).Delete(expiryIndexKey(r.ExpiryMillis, r.Key))
	})
}

// GetExpired returns every record whose expiry is finite and before
// now, using the secondary expiry index to avoid a full table scan.
func (i *Index) GetExpired(now time.Time) ([]*content.Record, error) {
	var out []*content.Record
	nowMillis := now.UnixMilli()
	err := i.db.View(func(tx *bbolt.Tx) error {
		byExpiry := tx.Bucket(bucketByExpiry)
		records := tx.Bucket(bucketRecords)
		c := byExpiry.Cursor()
		// -1 (never) reinterpreted as uint64 is the maximum representable
		// value, so in unsigned big-endian key order every finite
		// (positive) expiry sorts before it; a plain ascending scan from
		// the start visits expired candidates in order and only reaches
		// the never-expiring block at the very end.
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			millis := int64(binary.BigEndian.Uint64(k[:8]))
			if millis == -1 {
				continue
			}
			if millis >= nowMillis {
				break
			}
			key := string(k[9:])
			v := records.Get([]byte(key))
			if v == nil {
				continue
			}
			r, err := decodeRow(v)
			if err != nil {
				continue
			}
			out = append(out, r.toRecord())
		}
		return nil
	})
	return out, err
}

// Agg is the result of a GroupBy query: counts and summed content
// length, bucketed by (content_type, backend_id).
type Agg struct {
	ContentType string
	BackendID   string
	Count       int64
	SumLength   int64
}

// GroupBy scans every record and aggregates count(*) and
// sum(content_length) grouped by (content_type, backend_id), used to
// drive the housekeeper's stored-content gauges.
func (i *Index) GroupBy() ([]Agg, error) {
	buckets := make(map[[2]string]*Agg)
	err := i.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			r, err := decodeRow(v)
			if err != nil {
				return nil // skip unreadable rows rather than fail the whole scan
			}
			key := [2]string{r.ContentType, r.BackendID}
			a, ok := buckets[key]
			if !ok {
				a = &Agg{ContentType: r.ContentType, BackendID: r.BackendID}
				buckets[key] = a
			}
			a.Count++
			a.SumLength += r.ContentLength
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	out := make([]Agg, 0, len(buckets))
	for _, a := range buckets {
		out = append(out, *a)
	}
	return out, nil
}
