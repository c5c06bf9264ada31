package oracle

import (
	"sync"

	"golang.org/x/xerrors"
)

// Scheme is a cryptosystem the oracle can hold keys for. Keys and handles
// are opaque bytes: the services store, forward and combine them without
// ever looking inside. Encrypt, EncryptZero and Add only need the public
// material, Decrypt only runs inside the oracle.
type Scheme interface {
	Name() string
	KeyGen() (private, public []byte, err error)
	Encrypt(public []byte, value uint64) ([]byte, error)
	EncryptZero(public []byte) ([]byte, error)
	Add(a, b []byte) ([]byte, error)
	Decrypt(private, handle []byte) (uint64, error)
}

var schemes = struct {
	sync.Mutex
	byName map[string]Scheme
}{byName: make(map[string]Scheme)}

// RegisterScheme makes a cryptosystem available by name. Meant to be called
// from init, like service registration.
func RegisterScheme(s Scheme) error {
	schemes.Lock()
	defer schemes.Unlock()
	if _, ok := schemes.byName[s.Name()]; ok {
		return xerrors.Errorf("scheme %q is already registered", s.Name())
	}
	schemes.byName[s.Name()] = s
	return nil
}

// SchemeByName returns the registered cryptosystem with that name.
func SchemeByName(name string) (Scheme, error) {
	schemes.Lock()
	defer schemes.Unlock()
	s, ok := schemes.byName[name]
	if !ok {
		return nil, xerrors.Errorf("unknown scheme %q", name)
	}
	return s, nil
}
