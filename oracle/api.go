package oracle

import (
	"github.com/riskco/riskco"
	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/network"
	"golang.org/x/xerrors"
)

// Client is a class to communicate with the oracle service.
type Client struct {
	*onet.Client
}

// NewClient instantiates a new oracle.Client.
func NewClient() *Client {
	return &Client{Client: onet.NewClient(riskco.Suite, ServiceName)}
}

// DecryptBatch submits the handles for decryption under the named scheme
// and returns the request id. The plaintext arrives later at the callback.
func (c *Client) DecryptBatch(dst *network.ServerIdentity, scheme string,
	handles [][]byte, cb Callback) (RequestID, error) {
	reply := &DecryptBatchReply{}
	err := c.SendProtobuf(dst, &DecryptBatch{
		Scheme:   scheme,
		Handles:  handles,
		Callback: cb,
	}, reply)
	if err != nil {
		return "", xerrors.Errorf("requesting decryption: %w", err)
	}
	return reply.RequestID, nil
}

// GetPublic fetches the oracle's signing key and the scheme's public
// encryption material.
func (c *Client) GetPublic(dst *network.ServerIdentity, scheme string) (*GetPublicReply, error) {
	reply := &GetPublicReply{}
	err := c.SendProtobuf(dst, &GetPublic{Scheme: scheme}, reply)
	if err != nil {
		return nil, xerrors.Errorf("fetching oracle public material: %w", err)
	}
	return reply, nil
}
