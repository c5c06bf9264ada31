// Package assessment implements the confidential risk-assessment service.
// Institutions submit their security measurements encrypted under the
// bound oracle's scheme key, so the service never sees plaintext values.
// It stores the handles, keeps one homomorphic counter per risk level and
// learns plaintext only through attested decryption callbacks: one
// callback finalizes an institution's assessment, another snapshots a
// counter for auditing.
package assessment

import (
	"bytes"
	"sync"
	"time"

	"go.dedis.ch/onet/v3"
	"go.dedis.ch/onet/v3/log"
	"go.dedis.ch/onet/v3/network"
	"golang.org/x/xerrors"

	"github.com/riskco/riskco"
	"github.com/riskco/riskco/lib"
	"github.com/riskco/riskco/oracle"
)

// ServiceName is used for registration on the onet.
const ServiceName = "RiskAssessment"

// serviceID is used for tests
var serviceID onet.ServiceID

// The service's sentinel errors. Remote clients get them as message
// strings; in-process callers match them with xerrors.Is.
var (
	// ErrNotFound says the queried record, counter or snapshot does not
	// exist.
	ErrNotFound = xerrors.New("no such record")
	// ErrAlreadyFinalized rejects a second reveal of the same assessment.
	ErrAlreadyFinalized = xerrors.New("assessment is already finalized")
	// ErrUnknownRequest rejects a callback whose request ID was never
	// issued or is already consumed.
	ErrUnknownRequest = xerrors.New("unknown decryption request")
	// ErrAuthenticationFailed rejects a callback whose attestation or
	// payload does not verify.
	ErrAuthenticationFailed = xerrors.New("attestation verification failed")
	// ErrCategoryNotFound rejects revealing a counter that was never
	// incremented.
	ErrCategoryNotFound = xerrors.New("category not in the registry")
)

func init() {
	var err error
	serviceID, err = onet.RegisterNewService(ServiceName, newService)
	log.ErrFatal(err)
	network.RegisterMessages(&storage1{},
		&Submit{}, &SubmitReply{},
		&GetMeasurement{}, &GetMeasurementReply{},
		&GetAssessment{}, &GetAssessmentReply{},
		&RequestReveal{}, &RequestRevealReply{},
		&PeekCount{}, &PeekCountReply{},
		&GetRevealedCount{}, &GetRevealedCountReply{},
		&BindOracle{}, &BindOracleReply{},
		&GetBinding{}, &GetBindingReply{},
		&StreamEvents{}, &StreamEventsResponse{})
}

// Service is our assessment-service. The embedded mutex serializes all
// mutations, so a decryption callback never interleaves with a submission
// or another callback.
type Service struct {
	*onet.ServiceProcessor
	sync.Mutex
	storage *storage1
	records *recordStorage
	oracle  *oracle.Client
	events  *eventStreamer
}

// Submit stores a new encrypted measurement and opens its assessment. The
// handles are stored as they arrive; only the bound oracle can open them.
func (s *Service) Submit(req *Submit) (*SubmitReply, error) {
	if len(req.BreachAttempts) == 0 || len(req.ResponseTimeMinutes) == 0 ||
		len(req.VulnerabilityCount) == 0 {
		return nil, xerrors.New("submission needs all three measurements")
	}

	s.Lock()
	defer s.Unlock()

	s.storage.Lock()
	id := s.storage.NextID
	s.storage.NextID++
	s.storage.Unlock()

	now := time.Now().UnixNano()
	m := &Measurement{
		ID:                  id,
		BreachAttempts:      req.BreachAttempts,
		ResponseTimeMinutes: req.ResponseTimeMinutes,
		VulnerabilityCount:  req.VulnerabilityCount,
		SubmittedAt:         now,
	}
	if err := s.records.storeMeasurement(m); err != nil {
		return nil, riskco.WrapError(err)
	}
	if err := s.records.storeAssessment(id, &Assessment{}); err != nil {
		return nil, riskco.WrapError(err)
	}
	if err := s.save(); err != nil {
		return nil, err
	}

	s.events.notify(Event{When: now, Submitted: &EventSubmitted{ID: id}})
	log.Lvlf2("stored measurement %d", id)
	return &SubmitReply{ID: id}, nil
}

// GetMeasurement returns one stored measurement.
func (s *Service) GetMeasurement(req *GetMeasurement) (*GetMeasurementReply, error) {
	m, err := s.records.getMeasurement(req.ID)
	if err != nil {
		return nil, riskco.WrapError(err)
	}
	if m == nil {
		return nil, xerrors.Errorf("measurement %d: %w", req.ID, ErrNotFound)
	}
	return &GetMeasurementReply{Measurement: *m}, nil
}

// GetAssessment returns the assessment of one measurement. Before the
// reveal all derived fields are at their zero value.
func (s *Service) GetAssessment(req *GetAssessment) (*GetAssessmentReply, error) {
	a, err := s.records.getAssessment(req.ID)
	if err != nil {
		return nil, riskco.WrapError(err)
	}
	if a == nil {
		return nil, xerrors.Errorf("assessment %d: %w", req.ID, ErrNotFound)
	}
	return &GetAssessmentReply{Assessment: *a}, nil
}

// RequestReveal asks the bound oracle to open either one institution's
// measurements or one category counter. The reply only acknowledges the
// request, the result arrives later through DeliverDecryption. Asking
// again for the same target is fine: the assessment latch or the counter
// generation settles which answer counts.
func (s *Service) RequestReveal(req *RequestReveal) (*RequestRevealReply, error) {
	if err := req.Target.Validate(); err != nil {
		return nil, riskco.WrapError(err)
	}

	s.Lock()
	defer s.Unlock()

	bind, err := s.binding()
	if err != nil {
		return nil, err
	}

	var handles [][]byte
	var generation uint64
	switch {
	case req.Target.Institution != nil:
		id := req.Target.Institution.ID
		a, err := s.records.getAssessment(id)
		if err != nil {
			return nil, riskco.WrapError(err)
		}
		if a == nil {
			return nil, xerrors.Errorf("assessment %d: %w", id, ErrNotFound)
		}
		if a.IsRevealed {
			return nil, xerrors.Errorf("assessment %d: %w", id, ErrAlreadyFinalized)
		}
		m, err := s.records.getMeasurement(id)
		if err != nil {
			return nil, riskco.WrapError(err)
		}
		if m == nil {
			return nil, xerrors.Errorf("measurement %d: %w", id, ErrNotFound)
		}
		handles = [][]byte{m.BreachAttempts, m.ResponseTimeMinutes,
			m.VulnerabilityCount}
	case req.Target.Category != nil:
		_, counter, err := s.categoryByKey(req.Target.Category.Key)
		if err != nil {
			return nil, err
		}
		handles = [][]byte{counter.Count}
		generation = counter.Generation
	}

	callback := oracle.Callback{
		ServerIdentity: s.ServerIdentity(),
		Service:        ServiceName,
	}
	requestID, err := s.oracle.DecryptBatch(bind.Roster.List[0], bind.Scheme,
		handles, callback)
	if err != nil {
		return nil, riskco.ErrorOrNil(err, "asking the oracle")
	}

	now := time.Now().UnixNano()
	s.storage.Lock()
	s.storage.Pending[string(requestID)] = &pendingRequest{
		Target:     req.Target,
		Generation: generation,
		CreatedAt:  now,
	}
	s.storage.Unlock()
	if err := s.save(); err != nil {
		return nil, err
	}

	s.events.notify(Event{When: now, RevealRequested: &EventRevealRequested{
		RequestID: requestID,
		Target:    req.Target,
	}})
	log.Lvlf2("request %s reveals %s", requestID, req.Target)
	return &RequestRevealReply{RequestID: requestID}, nil
}

// DeliverDecryption is the oracle's callback. It verifies the attestation
// against the pinned signing key, routes the plaintext to its pending
// target and consumes the entry. A failed verification or a malformed
// payload keeps the entry, so a correct delivery can still settle it.
func (s *Service) DeliverDecryption(req *oracle.Delivery) (*oracle.DeliveryReply, error) {
	s.Lock()
	defer s.Unlock()

	s.storage.Lock()
	pending, ok := s.storage.Pending[string(req.RequestID)]
	s.storage.Unlock()
	if !ok {
		return nil, xerrors.Errorf("request %s: %w", req.RequestID,
			ErrUnknownRequest)
	}

	bind, err := s.binding()
	if err != nil {
		return nil, err
	}
	if err := lib.VerifyAttestation(bind.SigningPublic, string(req.RequestID),
		req.Plaintext, req.Attestation); err != nil {
		return nil, xerrors.Errorf("request %s: %w", req.RequestID,
			ErrAuthenticationFailed)
	}

	var settleErr error
	switch {
	case pending.Target.Institution != nil:
		settleErr = s.finalizeAssessment(req, pending.Target.Institution.ID, bind)
	case pending.Target.Category != nil:
		settleErr = s.snapshotCount(req, pending)
	}
	if settleErr != nil && !xerrors.Is(settleErr, ErrAlreadyFinalized) {
		return nil, settleErr
	}

	// The entry is spent: either the answer settled its target, or the
	// target was finalized by an earlier answer.
	s.storage.Lock()
	delete(s.storage.Pending, string(req.RequestID))
	s.storage.Unlock()
	if err := s.save(); err != nil {
		log.Error("couldn't persist consumed request:", err)
	}

	if settleErr != nil {
		return nil, settleErr
	}
	return &oracle.DeliveryReply{}, nil
}

// finalizeAssessment turns decrypted measurements into the verdict,
// latches it and counts it under its risk level. Caller holds the
// mutation lock.
func (s *Service) finalizeAssessment(req *oracle.Delivery, id uint64,
	bind *oracleBinding) error {
	a, err := s.records.getAssessment(id)
	if err != nil {
		return riskco.WrapError(err)
	}
	if a == nil {
		return xerrors.Errorf("assessment %d: %w", id, ErrNotFound)
	}
	if a.IsRevealed {
		return xerrors.Errorf("assessment %d: %w", id, ErrAlreadyFinalized)
	}

	breaches, responseTime, vulns, err := lib.DecodeMeasurements(req.Plaintext)
	if err != nil {
		return xerrors.Errorf("request %s: %v: %w", req.RequestID, err,
			ErrAuthenticationFailed)
	}

	level, recommendations, flag := classify(breaches, responseTime, vulns)
	now := time.Now().UnixNano()

	// Work out the new counter handle before writing anything, so a
	// scheme failure leaves no partial state behind.
	count, err := s.incrementCounter(level, bind)
	if err != nil {
		return err
	}

	a.RiskLevel = level
	a.Recommendations = recommendations
	a.SystemicRiskFlag = flag
	a.IsRevealed = true
	a.RevealedAt = now
	if err := s.records.storeAssessment(id, a); err != nil {
		return riskco.WrapError(err)
	}

	s.storage.Lock()
	counter := s.storage.Counters[string(level)]
	if counter == nil {
		counter = &Counter{}
		s.storage.Counters[string(level)] = counter
		s.storage.Registry = append(s.storage.Registry, level)
	}
	counter.Count = count
	counter.Initialized = true
	counter.Generation++
	s.storage.Unlock()
	if err := s.save(); err != nil {
		log.Error("couldn't persist finalized assessment:", err)
	}

	s.events.notify(Event{When: now, Finalized: &EventFinalized{
		ID:        id,
		RiskLevel: level,
	}})
	log.Lvlf2("finalized assessment %d as %s", id, level)
	return nil
}

// incrementCounter returns the handle of level's counter with one more
// assessment counted. A missing counter starts from a fresh encryption of
// zero. Nothing is mutated here.
func (s *Service) incrementCounter(level RiskLevel, bind *oracleBinding) ([]byte, error) {
	scheme, err := oracle.SchemeByName(bind.Scheme)
	if err != nil {
		return nil, riskco.WrapError(err)
	}

	s.storage.Lock()
	counter := s.storage.Counters[string(level)]
	var base []byte
	if counter != nil && counter.Initialized {
		base = counter.Count
	}
	s.storage.Unlock()

	if base == nil {
		base, err = scheme.EncryptZero(bind.SchemePublic)
		if err != nil {
			return nil, riskco.ErrorOrNil(err, "encrypting zero")
		}
	}
	one, err := scheme.Encrypt(bind.SchemePublic, 1)
	if err != nil {
		return nil, riskco.ErrorOrNil(err, "encrypting one")
	}
	count, err := scheme.Add(base, one)
	if err != nil {
		return nil, riskco.ErrorOrNil(err, "incrementing count")
	}
	return count, nil
}

// snapshotCount stores a decrypted counter value for auditing, unless a
// fresher snapshot of the same category already landed. Caller holds the
// mutation lock.
func (s *Service) snapshotCount(req *oracle.Delivery, pending *pendingRequest) error {
	count, err := lib.DecodeCount(req.Plaintext)
	if err != nil {
		return xerrors.Errorf("request %s: %v: %w", req.RequestID, err,
			ErrAuthenticationFailed)
	}
	name, _, err := s.categoryByKey(pending.Target.Category.Key)
	if err != nil {
		return err
	}

	now := time.Now().UnixNano()
	s.storage.Lock()
	existing := s.storage.Revealed[string(name)]
	if existing == nil || pending.Generation >= existing.Generation {
		s.storage.Revealed[string(name)] = &RevealedCount{
			Category:   name,
			Count:      count,
			Generation: pending.Generation,
			RevealedAt: now,
		}
	} else {
		log.Lvlf2("dropping stale count of %s: generation %d < %d",
			name, pending.Generation, existing.Generation)
	}
	s.storage.Unlock()
	if err := s.save(); err != nil {
		log.Error("couldn't persist revealed count:", err)
	}

	s.events.notify(Event{When: now, CountRevealed: &EventCountRevealed{
		Category:   name,
		Count:      count,
		Generation: pending.Generation,
	}})
	log.Lvlf2("revealed count of %s: %d at generation %d", name, count,
		pending.Generation)
	return nil
}

// PeekCount returns the encrypted state of one counter. Peeking never
// initializes anything.
func (s *Service) PeekCount(req *PeekCount) (*PeekCountReply, error) {
	s.storage.Lock()
	defer s.storage.Unlock()
	counter := s.storage.Counters[string(req.Category)]
	if counter == nil || !counter.Initialized {
		return nil, xerrors.Errorf("counter %s: %w", req.Category, ErrNotFound)
	}
	return &PeekCountReply{
		Count:      append([]byte{}, counter.Count...),
		Generation: counter.Generation,
	}, nil
}

// GetRevealedCount returns the freshest audited snapshot of one category.
func (s *Service) GetRevealedCount(req *GetRevealedCount) (*GetRevealedCountReply, error) {
	s.storage.Lock()
	defer s.storage.Unlock()
	revealed := s.storage.Revealed[string(req.Category)]
	if revealed == nil {
		return nil, xerrors.Errorf("revealed count %s: %w", req.Category,
			ErrNotFound)
	}
	return &GetRevealedCountReply{Revealed: *revealed}, nil
}

// BindOracle pins the oracle roster this service trusts. It fetches the
// oracle's public material once; every later callback must carry an
// attestation under that signing key. Rebinding invalidates outstanding
// requests, their attestations will no longer verify.
func (s *Service) BindOracle(req *BindOracle) (*BindOracleReply, error) {
	if req.Roster == nil || len(req.Roster.List) == 0 {
		return nil, xerrors.New("binding needs a roster")
	}
	if _, err := oracle.SchemeByName(req.Scheme); err != nil {
		return nil, riskco.WrapError(err)
	}

	s.Lock()
	defer s.Unlock()

	pub, err := s.oracle.GetPublic(req.Roster.List[0], req.Scheme)
	if err != nil {
		return nil, riskco.ErrorOrNil(err, "fetching oracle public material")
	}

	s.storage.Lock()
	s.storage.Binding = &oracleBinding{
		Roster:        req.Roster,
		Scheme:        req.Scheme,
		SchemePublic:  pub.SchemePublic,
		SigningPublic: pub.SigningPublic,
	}
	s.storage.Unlock()
	if err := s.save(); err != nil {
		return nil, err
	}

	log.Lvlf2("bound oracle %s with scheme %s", req.Roster.List[0], req.Scheme)
	return &BindOracleReply{
		SchemePublic:  pub.SchemePublic,
		SigningPublic: pub.SigningPublic,
	}, nil
}

// GetBinding returns the pinned oracle material.
func (s *Service) GetBinding(req *GetBinding) (*GetBindingReply, error) {
	bind, err := s.binding()
	if err != nil {
		return nil, err
	}
	return &GetBindingReply{
		Roster:        bind.Roster,
		Scheme:        bind.Scheme,
		SchemePublic:  bind.SchemePublic,
		SigningPublic: bind.SigningPublic,
	}, nil
}

// binding returns a copy of the pinned oracle material.
func (s *Service) binding() (*oracleBinding, error) {
	s.storage.Lock()
	defer s.storage.Unlock()
	if s.storage.Binding == nil {
		return nil, xerrors.New("no oracle bound to this service")
	}
	bind := *s.storage.Binding
	return &bind, nil
}

// categoryByKey resolves a registry digest to its category and counter.
// The registry never grows past the four risk levels, so it is a plain
// scan.
func (s *Service) categoryByKey(key []byte) (RiskLevel, Counter, error) {
	s.storage.Lock()
	defer s.storage.Unlock()
	for _, name := range s.storage.Registry {
		if bytes.Equal(CategoryKey(name), key) {
			counter := s.storage.Counters[string(name)]
			if counter == nil || !counter.Initialized {
				break
			}
			return name, *counter, nil
		}
	}
	return "", Counter{}, xerrors.Errorf("category %x: %w", key,
		ErrCategoryNotFound)
}

// TestClose closes all open event streams.
func (s *Service) TestClose() {
	s.events.stopAll()
}

func newService(c *onet.Context) (onet.Service, error) {
	s := &Service{
		ServiceProcessor: onet.NewServiceProcessor(c),
		records:          newRecordStorage(c),
		oracle:           oracle.NewClient(),
		events:           &eventStreamer{},
	}
	if err := s.RegisterHandlers(s.Submit, s.GetMeasurement, s.GetAssessment,
		s.RequestReveal, s.DeliverDecryption, s.PeekCount, s.GetRevealedCount,
		s.BindOracle, s.GetBinding); err != nil {
		return nil, xerrors.New("couldn't register messages")
	}
	if err := s.RegisterStreamingHandlers(s.StreamEvents); err != nil {
		return nil, xerrors.New("couldn't register streaming messages")
	}
	if err := s.tryLoad(); err != nil {
		log.Error(err)
		return nil, xerrors.Errorf("loading configuration: %v", err)
	}
	return s, nil
}
