package lib

import (
	"crypto/sha256"

	"github.com/riskco/riskco"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"golang.org/x/xerrors"
)

// AttestationMessage binds a request id to the plaintext it carries. Both
// sides must derive the exact same digest for the attestation to verify.
func AttestationMessage(requestID string, plaintext []byte) []byte {
	h := sha256.New()
	h.Write([]byte(requestID))
	h.Write(plaintext)
	return h.Sum(nil)
}

// Attest signs the binding of requestID and plaintext with the oracle's
// signing key.
func Attest(private kyber.Scalar, requestID string, plaintext []byte) ([]byte, error) {
	sig, err := schnorr.Sign(riskco.Suite, private, AttestationMessage(requestID, plaintext))
	if err != nil {
		return nil, xerrors.Errorf("signing attestation: %w", err)
	}
	return sig, nil
}

// VerifyAttestation checks that the attestation was produced by the holder
// of the given public key over exactly this request id and plaintext.
func VerifyAttestation(public kyber.Point, requestID string, plaintext, attestation []byte) error {
	err := schnorr.Verify(riskco.Suite, public, AttestationMessage(requestID, plaintext), attestation)
	if err != nil {
		return xerrors.Errorf("verifying attestation: %w", err)
	}
	return nil
}
