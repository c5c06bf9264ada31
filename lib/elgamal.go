// Package lib implements the integer cryptosystem used by the riskco
// services: ElGamal over the Ed25519 group with the value encoded in the
// exponent, so that ciphertexts can be added without decryption. Decryption
// recovers the value by a bounded discrete-log search, which keeps the
// scheme usable for the small counts and measurements riskco handles.
package lib

import (
	"sync"

	"github.com/riskco/riskco"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/onet/v3/network"
	"go.dedis.ch/protobuf"
	"golang.org/x/xerrors"
)

// MaxDecryptInt bounds the discrete-log search during decryption. Values
// above it cannot be recovered and make DecryptInt fail.
const MaxDecryptInt uint64 = 1 << 16

var suite = riskco.Suite

// pointToInt caches the mapping from iB to i so repeated decryptions do not
// redo the walk from zero.
var pointToInt = struct {
	sync.Mutex
	table    map[string]uint64
	greatest kyber.Point
	next     uint64
}{table: make(map[string]uint64)}

// CipherText is an ElGamal encrypted group element.
type CipherText struct {
	K, C kyber.Point
}

// NewCipherText returns a ciphertext of null elements, ready to receive the
// result of an operation.
func NewCipherText() *CipherText {
	return &CipherText{K: suite.Point().Null(), C: suite.Point().Null()}
}

// EncryptPoint ElGamal-encrypts the point M under the given public key.
func EncryptPoint(public kyber.Point, M kyber.Point) *CipherText {
	k := suite.Scalar().Pick(random.New()) // ephemeral private key
	K := suite.Point().Mul(k, nil)         // ephemeral DH public key
	S := suite.Point().Mul(k, public)      // ephemeral DH shared secret
	C := S.Add(S, M)                       // message blinded with secret
	return &CipherText{K: K, C: C}
}

// EncryptInt encodes v as vB and encrypts it under the given public key.
func EncryptInt(public kyber.Point, v uint64) *CipherText {
	i := suite.Scalar().SetInt64(int64(v))
	M := suite.Point().Mul(i, nil)
	return EncryptPoint(public, M)
}

// Add stores the homomorphic sum of c1 and c2 in the receiver and returns
// it. The sum of two encrypted values decrypts to the sum of the values.
func (c *CipherText) Add(c1, c2 CipherText) *CipherText {
	c.K.Add(c1.K, c2.K)
	c.C.Add(c1.C, c2.C)
	return c
}

// DecryptPoint recovers the encrypted group element.
func DecryptPoint(private kyber.Scalar, c CipherText) kyber.Point {
	S := suite.Point().Mul(private, c.K) // regenerate shared secret
	M := suite.Point().Sub(c.C, S)       // use to un-blind the message
	return M
}

// DecryptInt recovers the encrypted integer, searching the discrete log up
// to MaxDecryptInt.
func DecryptInt(private kyber.Scalar, c CipherText) (uint64, error) {
	return discreteLog(DecryptPoint(private, c))
}

func discreteLog(P kyber.Point) (uint64, error) {
	pointToInt.Lock()
	defer pointToInt.Unlock()

	if m, ok := pointToInt.table[P.String()]; ok {
		return m, nil
	}

	B := suite.Point().Base()
	if pointToInt.greatest == nil {
		pointToInt.greatest = suite.Point().Null()
	}
	Bi := pointToInt.greatest
	for m := pointToInt.next; m <= MaxDecryptInt; m++ {
		pointToInt.table[Bi.String()] = m
		if Bi.Equal(P) {
			pointToInt.greatest = Bi.Clone()
			pointToInt.next = m
			return m, nil
		}
		Bi = suite.Point().Add(Bi, B)
	}
	pointToInt.greatest = Bi
	pointToInt.next = MaxDecryptInt + 1
	return 0, xerrors.Errorf("decrypted value exceeds %d", MaxDecryptInt)
}

// ToBytes serializes the ciphertext for storage or transport.
func (c *CipherText) ToBytes() ([]byte, error) {
	buf, err := protobuf.Encode(c)
	if err != nil {
		return nil, xerrors.Errorf("encoding ciphertext: %w", err)
	}
	return buf, nil
}

// NewCipherTextFromBytes deserializes a ciphertext created by ToBytes.
func NewCipherTextFromBytes(buf []byte) (*CipherText, error) {
	ct := &CipherText{}
	err := protobuf.DecodeWithConstructors(buf, ct,
		network.DefaultConstructors(suite))
	if err != nil {
		return nil, xerrors.Errorf("decoding ciphertext: %w", err)
	}
	return ct, nil
}
