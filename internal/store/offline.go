package store

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	bolt "go.etcd.io/bbolt"
)

// Record is one undelivered document mutation awaiting reconciliation.
type Record struct {
	ID        string `json:"id"`
	DocID     string `json:"docId"`
	Update    []byte `json:"update"` // json base64, matching the wire encoding
	Timestamp int64  `json:"timestamp"`
	SpaceID   string `json:"spaceId"`
	SpaceType string `json:"spaceType"`
	SessionID string `json:"sessionId"`
	ClientID  string `json:"clientId,omitempty"`
}

// NewRecordID returns a unique record id: millisecond time component plus
// random suffix, lexically ordered by creation time.
func NewRecordID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// normalize trims identifier fields so records compare equal regardless of
// which code path produced them. Applied on both write and read.
func (r *Record) normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.DocID = strings.TrimSpace(r.DocID)
	r.SpaceID = strings.TrimSpace(r.SpaceID)
	r.SpaceType = strings.TrimSpace(r.SpaceType)
	r.SessionID = strings.TrimSpace(r.SessionID)
	r.ClientID = strings.TrimSpace(r.ClientID)
}

// readQueue loads the whole offline queue inside tx. Corrupt JSON resets the
// queue to empty: durability must never surface an unrecoverable parse error.
func (s *Store) readQueue(tx *bolt.Tx) []Record {
	raw := tx.Bucket([]byte(bucketName)).Get([]byte(keyOfflineQueue))
	if raw == nil {
		return nil
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		s.logger.Warn("offline queue corrupted, resetting",
			slog.Int("bytes", len(raw)),
			slog.String("error", err.Error()))
		return nil
	}

	for i := range records {
		records[i].normalize()
	}
	return records
}

func (s *Store) writeQueue(tx *bolt.Tx, records []Record) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(bucketName)).Put([]byte(keyOfflineQueue), raw)
}

// AppendOffline appends a mutation record to the offline queue. The whole
// JSON array is read, modified and rewritten under one key.
func (s *Store) AppendOffline(rec Record) error {
	if err := s.guard(); err != nil {
		return err
	}
	rec.normalize()
	err := s.db.Update(func(tx *bolt.Tx) error {
		records := s.readQueue(tx)
		records = append(records, rec)
		return s.writeQueue(tx, records)
	})
	if err != nil {
		return NewStoreError("append offline", err)
	}
	return nil
}

// ListOffline returns the queued records for one space, sorted ascending by
// timestamp. Delivery order matters: later mutations may depend on earlier
// ones being applied first.
func (s *Store) ListOffline(spaceType, spaceID string) ([]Record, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	spaceType = strings.TrimSpace(spaceType)
	spaceID = strings.TrimSpace(spaceID)

	var matched []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, rec := range s.readQueue(tx) {
			if rec.SpaceType == spaceType && rec.SpaceID == spaceID {
				matched = append(matched, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewStoreError("list offline", err)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Timestamp != matched[j].Timestamp {
			return matched[i].Timestamp < matched[j].Timestamp
		}
		return matched[i].ID < matched[j].ID
	})
	return matched, nil
}

// CountOffline returns the number of queued records for one space.
func (s *Store) CountOffline(spaceType, spaceID string) (int, error) {
	records, err := s.ListOffline(spaceType, spaceID)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// RemoveOffline removes records by id. Ids are used instead of full-object
// equality because payloads may be large.
func (s *Store) RemoveOffline(ids []string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[strings.TrimSpace(id)] = true
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		records := s.readQueue(tx)
		kept := records[:0]
		for _, rec := range records {
			if !drop[rec.ID] {
				kept = append(kept, rec)
			}
		}
		return s.writeQueue(tx, kept)
	})
	if err != nil {
		return NewStoreError("remove offline", err)
	}
	return nil
}

// ClearOffline removes every queued record for one space. Records belonging
// to other spaces are untouched.
func (s *Store) ClearOffline(spaceType, spaceID string) error {
	if err := s.guard(); err != nil {
		return err
	}
	spaceType = strings.TrimSpace(spaceType)
	spaceID = strings.TrimSpace(spaceID)

	err := s.db.Update(func(tx *bolt.Tx) error {
		records := s.readQueue(tx)
		kept := records[:0]
		for _, rec := range records {
			if rec.SpaceType != spaceType || rec.SpaceID != spaceID {
				kept = append(kept, rec)
			}
		}
		return s.writeQueue(tx, kept)
	})
	if err != nil {
		return NewStoreError("clear offline", err)
	}
	return nil
}
