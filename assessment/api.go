package assessment

import (
	"time"

	"go.dedis.ch/onet/v3"
	"golang.org/x/xerrors"

	"github.com/riskco/riskco"
	"github.com/riskco/riskco/oracle"
)

// Client is a class to communicate with the assessment service.
type Client struct {
	*onet.Client
	roster *onet.Roster
}

// NewClient instantiates a new assessment.Client. All requests go to the
// first node of the roster.
func NewClient(r *onet.Roster) *Client {
	return &Client{
		Client: onet.NewClient(riskco.Suite, ServiceName),
		roster: r,
	}
}

// BindOracle points the service at the oracle roster that holds the keys
// and returns the pinned public material.
func (c *Client) BindOracle(oracleRoster *onet.Roster, scheme string) (*BindOracleReply, error) {
	reply := &BindOracleReply{}
	err := c.SendProtobuf(c.roster.List[0], &BindOracle{
		Roster: oracleRoster,
		Scheme: scheme,
	}, reply)
	if err != nil {
		return nil, xerrors.Errorf("binding oracle: %v", err)
	}
	return reply, nil
}

// GetBinding returns the service's current oracle binding.
func (c *Client) GetBinding() (*GetBindingReply, error) {
	reply := &GetBindingReply{}
	err := c.SendProtobuf(c.roster.List[0], &GetBinding{}, reply)
	if err != nil {
		return nil, xerrors.Errorf("fetching binding: %v", err)
	}
	return reply, nil
}

// Submit stores three ciphertext handles as a new measurement and returns
// its ID.
func (c *Client) Submit(breaches, responseTime, vulns []byte) (uint64, error) {
	reply := &SubmitReply{}
	err := c.SendProtobuf(c.roster.List[0], &Submit{
		BreachAttempts:      breaches,
		ResponseTimeMinutes: responseTime,
		VulnerabilityCount:  vulns,
	}, reply)
	if err != nil {
		return 0, xerrors.Errorf("submitting measurement: %v", err)
	}
	return reply.ID, nil
}

// SubmitValues encrypts the three plaintext values under the bound
// oracle's scheme key and submits them. The plaintext never leaves the
// caller.
func (c *Client) SubmitValues(breaches, responseTime, vulns uint32) (uint64, error) {
	bind, err := c.GetBinding()
	if err != nil {
		return 0, err
	}
	scheme, err := oracle.SchemeByName(bind.Scheme)
	if err != nil {
		return 0, riskco.WrapError(err)
	}

	handles := make([][]byte, 3)
	for i, v := range []uint32{breaches, responseTime, vulns} {
		handles[i], err = scheme.Encrypt(bind.SchemePublic, uint64(v))
		if err != nil {
			return 0, riskco.ErrorOrNil(err, "encrypting measurement")
		}
	}
	return c.Submit(handles[0], handles[1], handles[2])
}

// GetMeasurement fetches one stored measurement.
func (c *Client) GetMeasurement(id uint64) (*Measurement, error) {
	reply := &GetMeasurementReply{}
	err := c.SendProtobuf(c.roster.List[0], &GetMeasurement{ID: id}, reply)
	if err != nil {
		return nil, xerrors.Errorf("fetching measurement: %v", err)
	}
	return &reply.Measurement, nil
}

// GetAssessment fetches the assessment of one measurement.
func (c *Client) GetAssessment(id uint64) (*Assessment, error) {
	reply := &GetAssessmentReply{}
	err := c.SendProtobuf(c.roster.List[0], &GetAssessment{ID: id}, reply)
	if err != nil {
		return nil, xerrors.Errorf("fetching assessment: %v", err)
	}
	return &reply.Assessment, nil
}

// RevealAssessment asks the service to have one institution's
// measurements decrypted and assessed. The returned request ID can be
// matched against the event feed.
func (c *Client) RevealAssessment(id uint64) (oracle.RequestID, error) {
	reply := &RequestRevealReply{}
	err := c.SendProtobuf(c.roster.List[0], &RequestReveal{
		Target: NewInstitutionTarget(id),
	}, reply)
	if err != nil {
		return "", xerrors.Errorf("requesting reveal: %v", err)
	}
	return reply.RequestID, nil
}

// RevealCategory asks the service to have one category counter decrypted
// and snapshotted.
func (c *Client) RevealCategory(category RiskLevel) (oracle.RequestID, error) {
	reply := &RequestRevealReply{}
	err := c.SendProtobuf(c.roster.List[0], &RequestReveal{
		Target: NewCategoryTarget(category),
	}, reply)
	if err != nil {
		return "", xerrors.Errorf("requesting reveal: %v", err)
	}
	return reply.RequestID, nil
}

// PeekCount returns the encrypted state of one category counter.
func (c *Client) PeekCount(category RiskLevel) (*PeekCountReply, error) {
	reply := &PeekCountReply{}
	err := c.SendProtobuf(c.roster.List[0], &PeekCount{Category: category}, reply)
	if err != nil {
		return nil, xerrors.Errorf("peeking count: %v", err)
	}
	return reply, nil
}

// GetRevealedCount returns the freshest audited snapshot of one category.
func (c *Client) GetRevealedCount(category RiskLevel) (*RevealedCount, error) {
	reply := &GetRevealedCountReply{}
	err := c.SendProtobuf(c.roster.List[0], &GetRevealedCount{Category: category}, reply)
	if err != nil {
		return nil, xerrors.Errorf("fetching revealed count: %v", err)
	}
	return &reply.Revealed, nil
}

// WaitAssessment polls every interval until the assessment of id is
// finalized. It gives up after ten intervals.
func (c *Client) WaitAssessment(id uint64, interval time.Duration) (*Assessment, error) {
	for i := 0; i < 10; i++ {
		a, err := c.GetAssessment(id)
		if err != nil {
			return nil, err
		}
		if a.IsRevealed {
			return a, nil
		}
		time.Sleep(interval)
	}
	return nil, xerrors.New("timeout waiting for the assessment")
}

// WaitRevealedCount polls every interval until category has an audited
// snapshot at generation or later. It gives up after ten intervals.
func (c *Client) WaitRevealedCount(category RiskLevel, generation uint64,
	interval time.Duration) (*RevealedCount, error) {
	var lastErr error
	for i := 0; i < 10; i++ {
		revealed, err := c.GetRevealedCount(category)
		if err == nil && revealed.Generation >= generation {
			return revealed, nil
		}
		lastErr = err
		time.Sleep(interval)
	}
	if lastErr != nil {
		return nil, riskco.ErrorOrNil(lastErr, "waiting for revealed count")
	}
	return nil, xerrors.New("timeout waiting for the revealed count")
}

// StreamEvents sends a streaming request to the service. If successful,
// the handler is called whenever the service state changes. This function
// blocks, the streaming stops if the client or the service stops.
func (c *Client) StreamEvents(handler func(StreamEventsResponse, error)) error {
	conn, err := c.Stream(c.roster.List[0], &StreamEvents{})
	if err != nil {
		handler(StreamEventsResponse{}, err)
		return xerrors.Errorf("opening stream: %v", err)
	}
	for {
		resp := StreamEventsResponse{}
		if err := conn.ReadMessage(&resp); err != nil {
			handler(StreamEventsResponse{}, err)
			return nil
		}
		handler(resp, nil)
	}
}
