package assessment

import (
	"encoding/binary"
	"sync"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/protobuf"
	bbolt "go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

const dbVersion = 1

var storageKey = []byte("storage")

// storage1 is the bookkeeping the service keeps in memory and snapshots
// to disk: ID allocation, pending reveals, the counters, the category
// registry, the audited snapshots and the oracle binding. The measurement
// and assessment records themselves live in recordStorage.
type storage1 struct {
	// NextID is handed to the next submission.
	NextID uint64
	// Pending maps an oracle request ID to what its answer is for. An
	// entry is consumed by the callback that settles it.
	Pending map[string]*pendingRequest
	// Counters holds one encrypted counter per initialized risk level.
	Counters map[string]*Counter
	// Registry lists categories in the order their counters were first
	// incremented. Append-only.
	Registry []RiskLevel
	// Revealed keeps the freshest audited snapshot per category.
	Revealed map[string]*RevealedCount
	// Binding is nil until an operator binds an oracle.
	Binding *oracleBinding

	sync.Mutex
}

// pendingRequest remembers where a decryption answer must be routed.
type pendingRequest struct {
	Target RevealTarget
	// Generation is the counter generation at request time. A category
	// snapshot from an older generation never overwrites a newer one.
	Generation uint64
	CreatedAt  int64
}

// oracleBinding pins the oracle roster and its public material. The
// signing public key authenticates every decryption callback.
type oracleBinding struct {
	Roster        *onet.Roster
	Scheme        string
	SchemePublic  []byte
	SigningPublic kyber.Point
}

// saves all data.
func (s *Service) save() error {
	s.storage.Lock()
	defer s.storage.Unlock()
	err := s.Save(storageKey, s.storage)
	if err != nil {
		log.Error("Couldn't save data:", err)
		return xerrors.Errorf("saving storage: %w", err)
	}
	return nil
}

// Tries to load the configuration and updates the data in the service
// if it finds a valid config-file.
func (s *Service) tryLoad() error {
	s.storage = &storage1{}
	defer func() {
		if s.storage.Pending == nil {
			s.storage.Pending = make(map[string]*pendingRequest)
		}
		if s.storage.Counters == nil {
			s.storage.Counters = make(map[string]*Counter)
		}
		if s.storage.Revealed == nil {
			s.storage.Revealed = make(map[string]*RevealedCount)
		}
		if s.storage.NextID == 0 {
			s.storage.NextID = 1
		}
	}()
	ver, err := s.LoadVersion()
	if err != nil {
		return xerrors.Errorf("loading version: %w", err)
	}
	// In the future, we'll make database upgrades below.
	if ver < dbVersion {
		// There is no version 0. Save empty storage and update version number.
		if err = s.save(); err != nil {
			return err
		}
		return s.SaveVersion(dbVersion)
	}
	msg, err := s.Load(storageKey)
	if err != nil {
		return xerrors.Errorf("loading storage: %w", err)
	}
	if msg == nil {
		return nil
	}
	var ok bool
	s.storage, ok = msg.(*storage1)
	if !ok {
		return xerrors.New("data of wrong type")
	}
	return nil
}

// recordStorage keeps the measurements and assessments in two bbolt
// buckets, keyed by big-endian ID. Records hit disk before the reply goes
// out, so a restart never loses an acknowledged submission.
type recordStorage struct {
	db           *bbolt.DB
	measurements []byte
	assessments  []byte
}

func newRecordStorage(c *onet.Context) *recordStorage {
	db, measurements := c.GetAdditionalBucket([]byte("measurements"))
	_, assessments := c.GetAdditionalBucket([]byte("assessments"))
	return &recordStorage{
		db:           db,
		measurements: measurements,
		assessments:  assessments,
	}
}

func recordKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func (r *recordStorage) storeMeasurement(m *Measurement) error {
	buf, err := protobuf.Encode(m)
	if err != nil {
		return xerrors.Errorf("encoding measurement: %v", err)
	}
	err = r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(r.measurements).Put(recordKey(m.ID), buf)
	})
	if err != nil {
		return xerrors.Errorf("storing measurement: %v", err)
	}
	return nil
}

// getMeasurement returns nil without error if the ID is unknown.
func (r *recordStorage) getMeasurement(id uint64) (*Measurement, error) {
	var buf []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(r.measurements).Get(recordKey(id)); v != nil {
			buf = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("reading measurement: %v", err)
	}
	if buf == nil {
		return nil, nil
	}
	m := &Measurement{}
	if err := protobuf.Decode(buf, m); err != nil {
		return nil, xerrors.Errorf("decoding measurement: %v", err)
	}
	return m, nil
}

func (r *recordStorage) storeAssessment(id uint64, a *Assessment) error {
	buf, err := protobuf.Encode(a)
	if err != nil {
		return xerrors.Errorf("encoding assessment: %v", err)
	}
	err = r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(r.assessments).Put(recordKey(id), buf)
	})
	if err != nil {
		return xerrors.Errorf("storing assessment: %v", err)
	}
	return nil
}

// getAssessment returns nil without error if the ID is unknown.
func (r *recordStorage) getAssessment(id uint64) (*Assessment, error) {
	var buf []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(r.assessments).Get(recordKey(id)); v != nil {
			buf = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("reading assessment: %v", err)
	}
	if buf == nil {
		return nil, nil
	}
	a := &Assessment{}
	if err := protobuf.Decode(buf, a); err != nil {
		return nil, xerrors.Errorf("decoding assessment: %v", err)
	}
	return a, nil
}
