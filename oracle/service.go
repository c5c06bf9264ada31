// Package oracle implements the decryption authority of riskco. It is the
// only holder of the cryptosystem private keys: services submit batches of
// ciphertext handles together with a callback identity, get an opaque
// request id back right away, and receive the decrypted values later,
// signed so the receiver can check the plaintext really belongs to the
// request before trusting it.
package oracle

import (
	"math"

	"github.com/riskco/riskco"
	"github.com/riskco/riskco/lib"
	uuid "github.com/satori/go.uuid"
	"go.dedis.ch/kyber/v3/util/key"
	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/onet/v3/network"
	"golang.org/x/xerrors"
)

// ServiceName is used for registration on the onet.
const ServiceName = "RiskOracle"

// serviceID is used for tests.
var serviceID onet.ServiceID

func init() {
	var err error
	serviceID, err = onet.RegisterNewService(ServiceName, newService)
	log.ErrFatal(err)
	network.RegisterMessages(&storage1{},
		&DecryptBatch{}, &DecryptBatchReply{},
		&Delivery{}, &DeliveryReply{},
		&GetPublic{}, &GetPublicReply{})
}

// Service is the oracle. Scheme keypairs are created on first use and kept
// in the service storage; the signing keypair is created at first start.
type Service struct {
	*onet.ServiceProcessor
	storage *storage1
}

// DecryptBatch mints a fresh request id for the batch and starts decrypting
// in the background. The values reach the callback service asynchronously,
// as one Delivery message.
func (s *Service) DecryptBatch(req *DecryptBatch) (*DecryptBatchReply, error) {
	if len(req.Handles) == 0 {
		return nil, xerrors.New("empty batch")
	}
	if req.Callback.ServerIdentity == nil || req.Callback.Service == "" {
		return nil, xerrors.New("missing callback identity")
	}
	scheme, err := SchemeByName(req.Scheme)
	if err != nil {
		return nil, riskco.ErrorOrNil(err, "resolving scheme")
	}
	keys, err := s.schemeKeys(scheme)
	if err != nil {
		return nil, riskco.ErrorOrNil(err, "loading scheme keys")
	}

	id := RequestID(uuid.NewV4().String())
	handles := make([][]byte, len(req.Handles))
	copy(handles, req.Handles)
	go s.decryptAndDeliver(scheme, keys, id, handles, req.Callback)

	log.Lvl2("issued request", id, "for a batch of", len(handles))
	return &DecryptBatchReply{RequestID: id}, nil
}

func (s *Service) decryptAndDeliver(scheme Scheme, keys *schemeKeys,
	id RequestID, handles [][]byte, cb Callback) {
	values := make([]uint32, len(handles))
	for i, handle := range handles {
		v, err := scheme.Decrypt(keys.Private, handle)
		if err != nil {
			log.Errorf("request %s: decrypting handle %d: %+v", id, i, err)
			return
		}
		if v > math.MaxUint32 {
			log.Errorf("request %s: handle %d decrypts out of range", id, i)
			return
		}
		values[i] = uint32(v)
	}
	plaintext := lib.EncodeValues(values)

	s.storage.Lock()
	private := s.storage.SigningPrivate
	s.storage.Unlock()
	attestation, err := lib.Attest(private, string(id), plaintext)
	if err != nil {
		log.Errorf("request %s: %+v", id, err)
		return
	}

	client := onet.NewClient(riskco.Suite, cb.Service)
	err = client.SendProtobuf(cb.ServerIdentity, &Delivery{
		RequestID:   id,
		Plaintext:   plaintext,
		Attestation: attestation,
	}, nil)
	if err != nil {
		log.Errorf("request %s: delivering to %s/%s: %+v", id,
			cb.ServerIdentity, cb.Service, err)
		return
	}
	log.Lvl2("delivered request", id)
}

// GetPublic returns the signing key attestations verify against and the
// scheme's public encryption material, generating the scheme keypair on
// first use.
func (s *Service) GetPublic(req *GetPublic) (*GetPublicReply, error) {
	scheme, err := SchemeByName(req.Scheme)
	if err != nil {
		return nil, riskco.ErrorOrNil(err, "resolving scheme")
	}
	keys, err := s.schemeKeys(scheme)
	if err != nil {
		return nil, riskco.ErrorOrNil(err, "loading scheme keys")
	}

	s.storage.Lock()
	defer s.storage.Unlock()
	return &GetPublicReply{
		SigningPublic: s.storage.SigningPublic,
		SchemePublic:  keys.Public,
	}, nil
}

func (s *Service) schemeKeys(scheme Scheme) (*schemeKeys, error) {
	s.storage.Lock()
	keys, ok := s.storage.Keys[scheme.Name()]
	s.storage.Unlock()
	if ok {
		return keys, nil
	}

	private, public, err := scheme.KeyGen()
	if err != nil {
		return nil, xerrors.Errorf("generating %s keypair: %w", scheme.Name(), err)
	}
	keys = &schemeKeys{Private: private, Public: public}
	s.storage.Lock()
	if existing, ok := s.storage.Keys[scheme.Name()]; ok {
		// A concurrent request won the generation.
		s.storage.Unlock()
		return existing, nil
	}
	s.storage.Keys[scheme.Name()] = keys
	s.storage.Unlock()
	if err := s.save(); err != nil {
		return nil, err
	}
	log.Lvl2("generated keypair for scheme", scheme.Name())
	return keys, nil
}

func newService(c *onet.Context) (onet.Service, error) {
	s := &Service{ServiceProcessor: onet.NewServiceProcessor(c)}
	if err := s.tryLoad(); err != nil {
		return nil, err
	}
	if s.storage.SigningPublic == nil {
		kp := key.NewKeyPair(riskco.Suite)
		s.storage.Lock()
		s.storage.SigningPublic = kp.Public
		s.storage.SigningPrivate = kp.Private
		s.storage.Unlock()
		if err := s.save(); err != nil {
			return nil, err
		}
	}
	if err := s.RegisterHandlers(s.DecryptBatch, s.GetPublic); err != nil {
		return nil, xerrors.Errorf("registering handlers: %w", err)
	}
	return s, nil
}
