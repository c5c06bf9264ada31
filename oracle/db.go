package oracle

import (
	"sync"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

const dbVersion = 1

// storageKey reflects the data we're storing - we could store more
// than one structure.
var storageKey = []byte("storage")

// storage1 holds the oracle's keys: one signing keypair for attestations
// and one keypair per cryptosystem, created on first use.
type storage1 struct {
	SigningPublic  kyber.Point
	SigningPrivate kyber.Scalar
	Keys           map[string]*schemeKeys

	sync.Mutex
}

// schemeKeys is the persisted keypair of one cryptosystem, in the scheme's
// own serialization.
type schemeKeys struct {
	Private []byte
	Public  []byte
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
	ver, err := s.LoadVersion()
	if err != nil {
		return xerrors.Errorf("loading version: %w", err)
	}

	// Make sure we don't have any unallocated maps.
	defer func() {
		if len(s.storage.Keys) == 0 {
			s.storage.Keys = make(map[string]*schemeKeys)
		}
	}()

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
