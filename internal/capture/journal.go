package capture

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const pendingBucketName = "pending_attachments"

// PendingAttachment records an attachment upload that failed after its
// transaction was created. The financial record is final; the entry exists so
// the image association can be retried later.
type PendingAttachment struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	ImagePath     string    `json:"image_path"`
	Filename      string    `json:"filename"`
	ContentType   string    `json:"content_type"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Journal defines the interface for the pending-attachment journal.
type Journal interface {
	// Add records a failed attachment upload for later retry
	Add(pending *PendingAttachment) error

	// List returns all pending attachments
	List() ([]*PendingAttachment, error)

	// Remove deletes the entry for a transaction
	Remove(transactionID uuid.UUID) error

	// Close closes the journal
	Close() error
}

// BoltJournal implements the Journal interface using BoltDB
type BoltJournal struct {
	db *bbolt.DB
}

// NewBoltJournal creates a new BoltJournal instance
func NewBoltJournal(path string) (*BoltJournal, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(pendingBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltJournal{db: db}, nil
}

// Add records a pending attachment, keyed by transaction ID
func (b *BoltJournal) Add(pending *PendingAttachment) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingBucketName))
		data, err := json.Marshal(pending)
		if err != nil {
			return fmt.Errorf("marshaling pending attachment: %w", err)
		}
		return bucket.Put([]byte(pending.TransactionID.String()), data)
	})
}

// List returns all pending attachments
func (b *BoltJournal) List() ([]*PendingAttachment, error) {
	pending := make([]*PendingAttachment, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var p PendingAttachment
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshaling pending attachment: %w", err)
			}
			pending = append(pending, &p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// Remove deletes the entry for a transaction
func (b *BoltJournal) Remove(transactionID uuid.UUID) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingBucketName))
		return bucket.Delete([]byte(transactionID.String()))
	})
}

// Close closes the journal database
func (b *BoltJournal) Close() error {
	return b.db.Close()
}
