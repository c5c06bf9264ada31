package oracle

import (
	"github.com/riskco/riskco"
	"github.com/riskco/riskco/lib"
	"go.dedis.ch/kyber/v3/util/key"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// SchemeElGamal is the default cryptosystem: Ed25519 ElGamal with the value
// in the exponent, implemented in package lib.
const SchemeElGamal = "ed25519-elgamal"

func init() {
	log.ErrFatal(RegisterScheme(elGamal{}))
}

type elGamal struct{}

func (elGamal) Name() string {
	return SchemeElGamal
}

func (elGamal) KeyGen() ([]byte, []byte, error) {
	kp := key.NewKeyPair(riskco.Suite)
	private, err := kp.Private.MarshalBinary()
	if err != nil {
		return nil, nil, xerrors.Errorf("marshaling private key: %w", err)
	}
	public, err := kp.Public.MarshalBinary()
	if err != nil {
		return nil, nil, xerrors.Errorf("marshaling public key: %w", err)
	}
	return private, public, nil
}

func (elGamal) Encrypt(public []byte, value uint64) ([]byte, error) {
	X := riskco.Suite.Point()
	if err := X.UnmarshalBinary(public); err != nil {
		return nil, xerrors.Errorf("unmarshaling public key: %w", err)
	}
	return lib.EncryptInt(X, value).ToBytes()
}

func (e elGamal) EncryptZero(public []byte) ([]byte, error) {
	return e.Encrypt(public, 0)
}

func (elGamal) Add(a, b []byte) ([]byte, error) {
	ca, err := lib.NewCipherTextFromBytes(a)
	if err != nil {
		return nil, xerrors.Errorf("first operand: %w", err)
	}
	cb, err := lib.NewCipherTextFromBytes(b)
	if err != nil {
		return nil, xerrors.Errorf("second operand: %w", err)
	}
	return lib.NewCipherText().Add(*ca, *cb).ToBytes()
}

func (elGamal) Decrypt(private, handle []byte) (uint64, error) {
	x := riskco.Suite.Scalar()
	if err := x.UnmarshalBinary(private); err != nil {
		return 0, xerrors.Errorf("unmarshaling private key: %w", err)
	}
	ct, err := lib.NewCipherTextFromBytes(handle)
	if err != nil {
		return 0, xerrors.Errorf("unmarshaling handle: %w", err)
	}
	return lib.DecryptInt(x, *ct)
}
