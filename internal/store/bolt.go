package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketTx   = []byte("tx")
	bucketSum  = []byte("sum")
	bucketMeta = []byte("meta")
	keyFormat  = []byte("format")
)

func boltFile(dir string) string {
	return filepath.Join(dir, "factdb.bolt")
}

// Bolt is the bolt backend: a bbolt file with the canonical payload of each
// transaction under its big-endian tx id, and checksums in a sibling bucket.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt creates or opens a bbolt log at the given file path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTx, bucketSum, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if format := meta.Get(keyFormat); format == nil {
			return meta.Put(keyFormat, []byte(formatVersion))
		} else if string(format) != formatVersion {
			return fmt.Errorf("unsupported storage format %q", format)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize bolt database: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Close closes the bolt file.
func (b *Bolt) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func txKey(txID int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(txID))
	return key
}

// Append stores the record payload and checksum in one bolt transaction.
func (b *Bolt) Append(ctx context.Context, rec TxRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := rec.marshal()
	if err != nil {
		return fmt.Errorf("append tx %d: %w", rec.TxID, err)
	}
	key := txKey(rec.TxID)
	err = b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTx).Get(key) != nil {
			return fmt.Errorf("transaction %d already stored", rec.TxID)
		}
		if err := tx.Bucket(bucketTx).Put(key, payload); err != nil {
			return err
		}
		return tx.Bucket(bucketSum).Put(key, []byte(rec.Checksum))
	})
	if err != nil {
		return fmt.Errorf("append tx %d: %w", rec.TxID, err)
	}
	return nil
}

// Load reads every record in key (tx) order.
func (b *Bolt) Load(ctx context.Context) ([]TxRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs := []TxRecord{}
	err := b.db.View(func(tx *bolt.Tx) error {
		sums := tx.Bucket(bucketSum)
		return tx.Bucket(bucketTx).ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return corrupt(0, fmt.Errorf("malformed key %x", k))
			}
			txID := int64(binary.BigEndian.Uint64(k))
			sum := sums.Get(k)
			if sum == nil {
				return corrupt(txID, fmt.Errorf("missing checksum"))
			}
			// Bolt values are only valid inside the transaction; decoding copies.
			rec, err := decodePayload(txID, v, string(sum))
			if err != nil {
				return err
			}
			if err := rec.Verify(); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}
