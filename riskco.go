// Package riskco implements a small collective of services that let
// independent institutions submit confidential security measurements in
// encrypted form, and let a trusted evaluator turn them into categorical
// risk assessments without ever handling the plaintext directly.
//
// Plaintext only ever appears through the decryption oracle in package
// oracle, and only after its attestation has been verified. The assessment
// service in package assessment keeps the records, routes the asynchronous
// decryption callbacks, classifies the revealed values and maintains the
// encrypted per-category counters.
package riskco

import (
	"go.dedis.ch/kyber/v3/suites"
)

// Suite is the cryptographic suite used by all riskco services.
var Suite = suites.MustFind("Ed25519")
