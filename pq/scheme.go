// Package pq carries the lattice-based variant of the riskco cryptosystem,
// BGV over the parameters below. Handles are marshaled rlwe ciphertexts;
// one value lives in slot zero. It registers itself with the oracle under
// the name SchemeBGV, so a deployment that wants post-quantum measurement
// confidentiality only has to select it when binding the oracle.
package pq

import (
	"math"

	"github.com/riskco/riskco/oracle"
	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/heint"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// SchemeBGV is the name the lattice cryptosystem registers under.
const SchemeBGV = "bgv"

var params heint.Parameters

func init() {
	var err error
	params, err = heint.NewParametersFromLiteral(heint.ParametersLiteral{
		LogN:             13,
		LogQ:             []int{22, 22, 22, 22, 22, 22},
		LogP:             []int{31},
		PlaintextModulus: 2752513, // 21*2^17 + 1
	})
	log.ErrFatal(err)
	log.ErrFatal(oracle.RegisterScheme(bgv{}))
}

type bgv struct{}

func (bgv) Name() string {
	return SchemeBGV
}

func (bgv) KeyGen() ([]byte, []byte, error) {
	sk, pk := rlwe.NewKeyGenerator(params).GenKeyPairNew()
	private, err := sk.MarshalBinary()
	if err != nil {
		return nil, nil, xerrors.Errorf("marshaling secret key: %w", err)
	}
	public, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, xerrors.Errorf("marshaling public key: %w", err)
	}
	return private, public, nil
}

func (bgv) Encrypt(public []byte, value uint64) ([]byte, error) {
	if value >= params.PlaintextModulus() {
		return nil, xerrors.Errorf("value %d exceeds the plaintext modulus", value)
	}
	pk := new(rlwe.PublicKey)
	if err := pk.UnmarshalBinary(public); err != nil {
		return nil, xerrors.Errorf("unmarshaling public key: %w", err)
	}

	values := make([]uint64, params.N())
	values[0] = value
	pt := heint.NewPlaintext(params, params.MaxLevel())
	if err := heint.NewEncoder(params).Encode(values, pt); err != nil {
		return nil, xerrors.Errorf("encoding plaintext: %w", err)
	}

	ct := rlwe.NewCiphertext(params, 1, params.MaxLevel())
	if err := rlwe.NewEncryptor(params, pk).Encrypt(pt, ct); err != nil {
		return nil, xerrors.Errorf("encrypting: %w", err)
	}
	return ct.MarshalBinary()
}

func (b bgv) EncryptZero(public []byte) ([]byte, error) {
	return b.Encrypt(public, 0)
}

func (bgv) Add(a, b []byte) ([]byte, error) {
	ca, err := unmarshalCiphertext(a)
	if err != nil {
		return nil, xerrors.Errorf("first operand: %w", err)
	}
	cb, err := unmarshalCiphertext(b)
	if err != nil {
		return nil, xerrors.Errorf("second operand: %w", err)
	}

	res := rlwe.NewCiphertext(params, 1, params.MaxLevel())
	if err := heint.NewEvaluator(params, nil).Add(ca, cb, res); err != nil {
		return nil, xerrors.Errorf("adding ciphertexts: %w", err)
	}
	return res.MarshalBinary()
}

func (bgv) Decrypt(private, handle []byte) (uint64, error) {
	sk := new(rlwe.SecretKey)
	if err := sk.UnmarshalBinary(private); err != nil {
		return 0, xerrors.Errorf("unmarshaling secret key: %w", err)
	}
	ct, err := unmarshalCiphertext(handle)
	if err != nil {
		return 0, err
	}

	pt := heint.NewPlaintext(params, ct.Level())
	rlwe.NewDecryptor(params, sk).Decrypt(ct, pt)

	values := make([]uint64, params.N())
	if err := heint.NewEncoder(params).Decode(pt, values); err != nil {
		return 0, xerrors.Errorf("decoding plaintext: %w", err)
	}
	if values[0] > math.MaxUint32 {
		return 0, xerrors.Errorf("decrypted value %d out of range", values[0])
	}
	return values[0], nil
}

func unmarshalCiphertext(buf []byte) (*rlwe.Ciphertext, error) {
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(buf); err != nil {
		return nil, xerrors.Errorf("unmarshaling ciphertext: %w", err)
	}
	return ct, nil
}
