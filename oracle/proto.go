package oracle

import (
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/onet/v3/network"
)

// PROTOSTART
// package oracle;
//
// option java_package = "com.github.riskco.lib.proto";
// option java_outer_classname = "OracleProto";

// RequestID identifies one outstanding decryption batch. The oracle mints
// it; everybody else treats it as opaque.
type RequestID string

// Callback names the service on a conode the delivery goes to.
type Callback struct {
	ServerIdentity *network.ServerIdentity
	Service        string
}

// DecryptBatch asks the oracle to decrypt the handles with the named scheme
// and deliver the values to the callback. The reply returns immediately;
// the delivery follows asynchronously.
type DecryptBatch struct {
	Scheme   string
	Handles  [][]byte
	Callback Callback
}

// DecryptBatchReply carries the freshly minted request id.
type DecryptBatchReply struct {
	RequestID RequestID
}

// Delivery carries a decrypted batch to the callback service: one value per
// handle, four bytes little-endian each, in batch order, plus the oracle's
// attestation binding the payload to the request id.
type Delivery struct {
	RequestID   RequestID
	Plaintext   []byte
	Attestation []byte
}

// DeliveryReply acknowledges a delivery.
type DeliveryReply struct {
}

// GetPublic asks for the oracle's public material for a scheme, generating
// the scheme keypair on first use.
type GetPublic struct {
	Scheme string
}

// GetPublicReply carries the signing key attestations verify against and
// the scheme's public encryption material.
type GetPublicReply struct {
	SigningPublic kyber.Point
	SchemePublic  []byte
}
