package assessment

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/util/key"
	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"

	"github.com/riskco/riskco"
	"github.com/riskco/riskco/lib"
	"github.com/riskco/riskco/oracle"
)

var tSuite = riskco.Suite

func TestMain(m *testing.M) {
	log.MainTest(m)
}

// testEnv runs one conode that hosts both the assessment service and the
// oracle, bound to each other.
type testEnv struct {
	local   *onet.LocalTest
	roster  *onet.Roster
	service *Service
	client  *Client
}

func newTestEnv(t *testing.T) *testEnv {
	local := onet.NewTCPTest(tSuite)
	servers, roster, _ := local.GenTree(1, true)
	service := local.GetServices(servers, serviceID)[0].(*Service)
	client := NewClient(roster)
	_, err := client.BindOracle(roster, oracle.SchemeElGamal)
	require.NoError(t, err)
	return &testEnv{
		local:   local,
		roster:  roster,
		service: service,
		client:  client,
	}
}

func (env *testEnv) Close() {
	env.local.CloseAll()
}

// hijackSigningKey swaps the pinned oracle signing key for one the test
// controls, so it can craft deliveries without the real oracle racing the
// test.
func (env *testEnv) hijackSigningKey() *key.Pair {
	pair := key.NewKeyPair(tSuite)
	env.service.storage.Lock()
	env.service.storage.Binding.SigningPublic = pair.Public
	env.service.storage.Unlock()
	return pair
}

// addPending injects a pending entry as RequestReveal would.
func (env *testEnv) addPending(id oracle.RequestID, target RevealTarget, generation uint64) {
	env.service.storage.Lock()
	env.service.storage.Pending[string(id)] = &pendingRequest{
		Target:     target,
		Generation: generation,
		CreatedAt:  time.Now().UnixNano(),
	}
	env.service.storage.Unlock()
}

func (env *testEnv) hasPending(id oracle.RequestID) bool {
	env.service.storage.Lock()
	defer env.service.storage.Unlock()
	_, ok := env.service.storage.Pending[string(id)]
	return ok
}

func (env *testEnv) pendingCount() int {
	env.service.storage.Lock()
	defer env.service.storage.Unlock()
	return len(env.service.storage.Pending)
}

// deliver signs plaintext with priv and hands it to the callback handler.
func (env *testEnv) deliver(t *testing.T, id oracle.RequestID, plaintext []byte,
	priv kyber.Scalar) error {
	attestation, err := lib.Attest(priv, string(id), plaintext)
	require.NoError(t, err)
	_, err = env.service.DeliverDecryption(&oracle.Delivery{
		RequestID:   id,
		Plaintext:   plaintext,
		Attestation: attestation,
	})
	return err
}

func TestService_Submit(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	var last uint64
	for i := 0; i < 3; i++ {
		id, err := env.client.SubmitValues(2, 30, 1)
		require.NoError(t, err)
		require.Equal(t, last+1, id)
		last = id
	}

	m, err := env.client.GetMeasurement(1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), m.ID)
	require.NotEmpty(t, m.BreachAttempts)
	require.NotEmpty(t, m.ResponseTimeMinutes)
	require.NotEmpty(t, m.VulnerabilityCount)
	require.NotZero(t, m.SubmittedAt)

	a, err := env.client.GetAssessment(1)
	require.NoError(t, err)
	require.False(t, a.IsRevealed)
	require.Empty(t, a.RiskLevel)
	require.Empty(t, a.Recommendations)
	require.Empty(t, a.SystemicRiskFlag)
	require.Zero(t, a.RevealedAt)

	_, err = env.client.GetMeasurement(99)
	require.Error(t, err)
	_, err = env.service.GetAssessment(&GetAssessment{ID: 99})
	require.True(t, xerrors.Is(err, ErrNotFound))

	_, err = env.service.Submit(&Submit{BreachAttempts: []byte{1}})
	require.Error(t, err)
}

func TestService_BindOracle(t *testing.T) {
	local := onet.NewTCPTest(tSuite)
	defer local.CloseAll()
	servers, roster, _ := local.GenTree(1, true)
	service := local.GetServices(servers, serviceID)[0].(*Service)
	client := NewClient(roster)

	// Submissions work unbound, reveals do not.
	_, err := client.GetBinding()
	require.Error(t, err)
	_, err = service.RequestReveal(&RequestReveal{Target: NewInstitutionTarget(1)})
	require.Error(t, err)

	_, err = client.BindOracle(roster, "no-such-scheme")
	require.Error(t, err)
	_, err = client.BindOracle(nil, oracle.SchemeElGamal)
	require.Error(t, err)

	reply, err := client.BindOracle(roster, oracle.SchemeElGamal)
	require.NoError(t, err)
	require.NotNil(t, reply.SigningPublic)
	require.NotEmpty(t, reply.SchemePublic)

	bind, err := client.GetBinding()
	require.NoError(t, err)
	require.Equal(t, oracle.SchemeElGamal, bind.Scheme)
	require.Equal(t, reply.SchemePublic, bind.SchemePublic)
	require.True(t, reply.SigningPublic.Equal(bind.SigningPublic))
}

func TestService_RevealAssessment(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	id, err := env.client.SubmitValues(2, 30, 1)
	require.NoError(t, err)
	requestID, err := env.client.RevealAssessment(id)
	require.NoError(t, err)
	require.NotEmpty(t, requestID)

	a, err := env.client.WaitAssessment(id, 500*time.Millisecond)
	require.NoError(t, err)
	require.True(t, a.IsRevealed)
	require.Equal(t, RiskHigh, a.RiskLevel)
	require.Equal(t, RecommendRoutine, a.Recommendations)
	require.Equal(t, SystemicNone, a.SystemicRiskFlag)
	require.NotZero(t, a.RevealedAt)

	count, err := env.client.PeekCount(RiskHigh)
	require.NoError(t, err)
	require.NotEmpty(t, count.Count)
	require.Equal(t, uint64(1), count.Generation)

	// The latch rejects a second reveal of the same assessment.
	_, err = env.service.RequestReveal(&RequestReveal{Target: NewInstitutionTarget(id)})
	require.True(t, xerrors.Is(err, ErrAlreadyFinalized))

	// The request is consumed, so replaying its ID is unknown.
	require.False(t, env.hasPending(requestID))

	// Failing reveal requests never leave a pending entry behind.
	_, err = env.service.RequestReveal(&RequestReveal{Target: NewInstitutionTarget(99)})
	require.True(t, xerrors.Is(err, ErrNotFound))
	require.Zero(t, env.pendingCount())
}

func TestService_RevealCategory(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	// An untouched counter can neither be peeked nor revealed.
	_, err := env.service.PeekCount(&PeekCount{Category: RiskHigh})
	require.True(t, xerrors.Is(err, ErrNotFound))
	_, err = env.service.RequestReveal(&RequestReveal{Target: NewCategoryTarget(RiskHigh)})
	require.True(t, xerrors.Is(err, ErrCategoryNotFound))

	for _, id := range []uint64{1, 2} {
		got, err := env.client.SubmitValues(2, 30, 1)
		require.NoError(t, err)
		require.Equal(t, id, got)
		_, err = env.client.RevealAssessment(id)
		require.NoError(t, err)
		_, err = env.client.WaitAssessment(id, 500*time.Millisecond)
		require.NoError(t, err)
	}

	count, err := env.client.PeekCount(RiskHigh)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count.Generation)

	_, err = env.client.GetRevealedCount(RiskHigh)
	require.Error(t, err)

	_, err = env.client.RevealCategory(RiskHigh)
	require.NoError(t, err)
	revealed, err := env.client.WaitRevealedCount(RiskHigh, 2, 500*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, RiskHigh, revealed.Category)
	require.Equal(t, uint32(2), revealed.Count)
	require.Equal(t, uint64(2), revealed.Generation)
	require.NotZero(t, revealed.RevealedAt)

	// Only the High counter exists so far.
	_, err = env.service.PeekCount(&PeekCount{Category: RiskLow})
	require.True(t, xerrors.Is(err, ErrNotFound))
	_, err = env.service.GetRevealedCount(&GetRevealedCount{Category: RiskLow})
	require.True(t, xerrors.Is(err, ErrNotFound))
}

func TestService_DeliverDecryption(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()
	signer := env.hijackSigningKey()
	forger := key.NewKeyPair(tSuite)

	id, err := env.client.SubmitValues(1, 1, 1)
	require.NoError(t, err)

	payload := lib.EncodeMeasurements(6, 130, 11)

	// Unknown request IDs are rejected outright and mutate nothing.
	err = env.deliver(t, "never-issued", payload, signer.Private)
	require.True(t, xerrors.Is(err, ErrUnknownRequest))
	require.Zero(t, env.pendingCount())
	a, err := env.client.GetAssessment(id)
	require.NoError(t, err)
	require.False(t, a.IsRevealed)

	// A delivery signed by the wrong key changes nothing and keeps the
	// entry for a correct retry.
	env.addPending("req-1", NewInstitutionTarget(id), 0)
	err = env.deliver(t, "req-1", payload, forger.Private)
	require.True(t, xerrors.Is(err, ErrAuthenticationFailed))
	require.True(t, env.hasPending("req-1"))
	a, err = env.client.GetAssessment(id)
	require.NoError(t, err)
	require.False(t, a.IsRevealed)

	// So does a correctly signed but malformed payload.
	err = env.deliver(t, "req-1", []byte("short"), signer.Private)
	require.True(t, xerrors.Is(err, ErrAuthenticationFailed))
	require.True(t, env.hasPending("req-1"))

	// The correct delivery finalizes, counts and consumes.
	err = env.deliver(t, "req-1", payload, signer.Private)
	require.NoError(t, err)
	require.False(t, env.hasPending("req-1"))
	a, err = env.client.GetAssessment(id)
	require.NoError(t, err)
	require.True(t, a.IsRevealed)
	require.Equal(t, RiskCritical, a.RiskLevel)
	require.Equal(t, RecommendImmediate, a.Recommendations)
	require.Equal(t, SystemicPotential, a.SystemicRiskFlag)
	count, err := env.client.PeekCount(RiskCritical)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count.Generation)

	// Replaying the consumed request is unknown.
	err = env.deliver(t, "req-1", payload, signer.Private)
	require.True(t, xerrors.Is(err, ErrUnknownRequest))

	// A second outstanding request for the same target hits the latch:
	// the entry is consumed, the assessment and the counter stay as they
	// are.
	env.addPending("req-2", NewInstitutionTarget(id), 0)
	err = env.deliver(t, "req-2", lib.EncodeMeasurements(2, 30, 1), signer.Private)
	require.True(t, xerrors.Is(err, ErrAlreadyFinalized))
	require.False(t, env.hasPending("req-2"))
	after, err := env.client.GetAssessment(id)
	require.NoError(t, err)
	require.Equal(t, a, after)
	count, err = env.client.PeekCount(RiskCritical)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count.Generation)
}

func TestService_SnapshotStaleness(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()
	signer := env.hijackSigningKey()

	// Two High assessments bring the counter to generation 2.
	for i := 0; i < 2; i++ {
		id, err := env.client.SubmitValues(1, 1, 1)
		require.NoError(t, err)
		requestID := oracle.RequestID(fmt.Sprintf("finalize-%d", i))
		env.addPending(requestID, NewInstitutionTarget(id), 0)
		err = env.deliver(t, requestID, lib.EncodeMeasurements(2, 30, 1), signer.Private)
		require.NoError(t, err)
	}
	count, err := env.client.PeekCount(RiskHigh)
	require.NoError(t, err)
	require.Equal(t, uint64(2), count.Generation)

	// The fresh snapshot lands.
	env.addPending("count-fresh", NewCategoryTarget(RiskHigh), 2)
	err = env.deliver(t, "count-fresh", lib.EncodeCount(2), signer.Private)
	require.NoError(t, err)
	revealed, err := env.client.GetRevealedCount(RiskHigh)
	require.NoError(t, err)
	require.Equal(t, uint32(2), revealed.Count)
	require.Equal(t, uint64(2), revealed.Generation)

	// A slow answer from an older generation is consumed but does not
	// overwrite the fresher snapshot.
	env.addPending("count-stale", NewCategoryTarget(RiskHigh), 1)
	err = env.deliver(t, "count-stale", lib.EncodeCount(1), signer.Private)
	require.NoError(t, err)
	require.False(t, env.hasPending("count-stale"))
	revealed, err = env.client.GetRevealedCount(RiskHigh)
	require.NoError(t, err)
	require.Equal(t, uint32(2), revealed.Count)
	require.Equal(t, uint64(2), revealed.Generation)
}

func TestService_StreamEvents(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()

	outChan, stopChan, err := env.service.StreamEvents(&StreamEvents{})
	require.NoError(t, err)
	defer close(stopChan)

	go func() {
		id, err := env.client.SubmitValues(2, 30, 1)
		if err != nil {
			return
		}
		if _, err := env.client.RevealAssessment(id); err != nil {
			return
		}
	}()

	next := func() Event {
		select {
		case resp := <-outChan:
			return resp.Event
		case <-time.After(10 * time.Second):
			t.Fatal("no event arrived")
		}
		return Event{}
	}

	ev := next()
	require.NotNil(t, ev.Submitted)
	require.Equal(t, uint64(1), ev.Submitted.ID)
	require.NotZero(t, ev.When)

	ev = next()
	require.NotNil(t, ev.RevealRequested)
	require.NotNil(t, ev.RevealRequested.Target.Institution)
	require.Equal(t, uint64(1), ev.RevealRequested.Target.Institution.ID)
	require.NotEmpty(t, ev.RevealRequested.RequestID)

	ev = next()
	require.NotNil(t, ev.Finalized)
	require.Equal(t, uint64(1), ev.Finalized.ID)
	require.Equal(t, RiskHigh, ev.Finalized.RiskLevel)
}

func TestRecordStorage(t *testing.T) {
	env := newTestEnv(t)
	defer env.Close()
	records := env.service.records

	m, err := records.getMeasurement(7)
	require.NoError(t, err)
	require.Nil(t, m)

	stored := &Measurement{
		ID:                  7,
		BreachAttempts:      []byte{1, 2},
		ResponseTimeMinutes: []byte{3, 4},
		VulnerabilityCount:  []byte{5, 6},
		SubmittedAt:         time.Now().UnixNano(),
	}
	require.NoError(t, records.storeMeasurement(stored))
	m, err = records.getMeasurement(7)
	require.NoError(t, err)
	require.Equal(t, stored, m)

	a, err := records.getAssessment(7)
	require.NoError(t, err)
	require.Nil(t, a)
	require.NoError(t, records.storeAssessment(7, &Assessment{}))
	a, err = records.getAssessment(7)
	require.NoError(t, err)
	require.False(t, a.IsRevealed)

	final := &Assessment{
		RiskLevel:        RiskMedium,
		Recommendations:  RecommendEnhanced,
		SystemicRiskFlag: SystemicNone,
		IsRevealed:       true,
		RevealedAt:       time.Now().UnixNano(),
	}
	require.NoError(t, records.storeAssessment(7, final))
	a, err = records.getAssessment(7)
	require.NoError(t, err)
	require.Equal(t, final, a)
}
