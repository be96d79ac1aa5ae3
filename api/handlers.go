package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/verity"
	"github.com/xraph/verity/billing"
	"github.com/xraph/verity/dispute"
	"github.com/xraph/verity/id"
	"github.com/xraph/verity/params"
	"github.com/xraph/verity/producer"
	"github.com/xraph/verity/result"
	"github.com/xraph/verity/types"
)

// ──────────────────────────────────────────────────
// Request bodies
// ──────────────────────────────────────────────────

// amountRequest carries minor units; Currency defaults to the params currency.
type amountRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type slashRequest struct {
	amountRequest
	Reason string `json:"reason"`
}

type reputationRequest struct {
	Value int `json:"value"`
}

type descriptionRequest struct {
	Description string `json:"description"`
}

type scheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	Metadata    string    `json:"metadata,omitempty"`
}

type submitRequest struct {
	Payload     string            `json:"payload"`
	DecodeHint  string            `json:"decode_hint,omitempty"`
	QuickFields map[string]string `json:"quick_fields,omitempty"`
	Schema      string            `json:"schema,omitempty"`
}

type batchRequest struct {
	EventIDs []string `json:"event_ids"`
}

type chargeRequest struct {
	ProducerID string `json:"producer_id"`
}

type disputeRequest struct {
	amountRequest
	Reason      string `json:"reason"`
	EvidenceRef string `json:"evidence_ref,omitempty"`
}

type resolveRequest struct {
	Accepted      bool `json:"accepted"`
	RewardPercent int  `json:"reward_percent"`
}

type depositRequest struct {
	amountRequest
	Referrer string `json:"referrer,omitempty"`
}

type payoutRequest struct {
	amountRequest
	To   string `json:"to"`
	Memo string `json:"memo,omitempty"`
}

// resultView renders a result; Payload is set only for paid reads.
type resultView struct {
	EventID          string            `json:"event_id"`
	ProducerID       string            `json:"producer_id"`
	Submitter        types.Principal   `json:"submitter"`
	Status           result.Status     `json:"status"`
	Fingerprint      string            `json:"fingerprint"`
	DisputeID        string            `json:"dispute_id,omitempty"`
	SubmittedAt      time.Time         `json:"submitted_at"`
	FinalizeDeadline time.Time         `json:"finalize_deadline"`
	FinalizedAt      *time.Time        `json:"finalized_at,omitempty"`
	DecodeHint       string            `json:"decode_hint,omitempty"`
	QuickFields      map[string]string `json:"quick_fields,omitempty"`
	Payload          *string           `json:"payload,omitempty"`
}

func viewOf(r *result.Result, withContent bool) resultView {
	v := resultView{
		EventID:          r.EventID.String(),
		ProducerID:       r.ProducerID.String(),
		Submitter:        r.Submitter,
		Status:           r.Status,
		Fingerprint:      r.Fingerprint,
		DisputeID:        r.DisputeID.String(),
		SubmittedAt:      r.SubmittedAt,
		FinalizeDeadline: r.FinalizeDeadline,
		FinalizedAt:      r.FinalizedAt,
		DecodeHint:       r.DecodeHint,
	}
	if withContent {
		payload := string(r.Payload)
		v.Payload = &payload
		v.QuickFields = r.QuickFields
	}
	return v
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func caller(r *http.Request) types.Principal { return PrincipalFrom(r.Context()) }

func (s *Server) money(ctx context.Context, a amountRequest) (types.Money, error) {
	cur := a.Currency
	if cur == "" {
		p, err := s.engine.Params(ctx)
		if err != nil {
			return types.Money{}, err
		}
		cur = p.Currency
	}
	return types.New(a.Amount, cur), nil
}

func pathID(r *http.Request, param string, parse func(string) (id.ID, error)) (id.ID, error) {
	v, err := parse(chi.URLParam(r, param))
	if err != nil {
		return id.Nil, verity.ValidationError{Field: param, Message: err.Error()}
	}
	return v, nil
}

func page(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return max(limit, 0), max(offset, 0)
}

// bind decodes the body into v, answering 400 on failure.
func bind(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(w, r, v); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// reply writes v, or the mapped error.
func reply(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, status, v)
}

// ──────────────────────────────────────────────────
// Registry
// ──────────────────────────────────────────────────

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !bind(w, r, &req) {
		return
	}
	stake, err := s.money(r.Context(), req)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	pr, err := s.engine.Register(r.Context(), caller(r), stake)
	reply(w, r, http.StatusCreated, pr, err)
}

func (s *Server) handleListProducers(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	list, err := s.engine.ListProducers(r.Context(), producer.ListOpts{
		Owner:      types.Principal(r.URL.Query().Get("owner")),
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	reply(w, r, http.StatusOK, list, err)
}

func (s *Server) handleGetProducer(w http.ResponseWriter, r *http.Request) {
	pid, err := pathID(r, "producerID", id.ParseProducerID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	pr, err := s.engine.GetProducer(r.Context(), pid)
	reply(w, r, http.StatusOK, pr, err)
}

func (s *Server) handleAddStake(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !bind(w, r, &req) {
		return
	}
	pid, err := pathID(r, "producerID", id.ParseProducerID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	amount, err := s.money(r.Context(), req)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	pr, err := s.engine.AddStake(r.Context(), caller(r), pid, amount)
	reply(w, r, http.StatusOK, pr, err)
}

func (s *Server) handleWithdrawStake(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !bind(w, r, &req) {
		return
	}
	pid, err := pathID(r, "producerID", id.ParseProducerID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	amount, err := s.money(r.Context(), req)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	wd, err := s.engine.WithdrawStake(r.Context(), caller(r), pid, amount)
	reply(w, r, http.StatusOK, wd, err)
}

func (s *Server) handleSlash(w http.ResponseWriter, r *http.Request) {
	var req slashRequest
	if !bind(w, r, &req) {
		return
	}
	pid, err := pathID(r, "producerID", id.ParseProducerID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	amount, err := s.money(r.Context(), req.amountRequest)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	slashed, err := s.engine.SlashStake(r.Context(), caller(r), pid, amount, req.Reason)
	reply(w, r, http.StatusOK, map[string]types.Money{"slashed": slashed}, err)
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	var req reputationRequest
	if !bind(w, r, &req) {
		return
	}
	pid, err := pathID(r, "producerID", id.ParseProducerID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	reply(w, r, 0, nil, s.engine.UpdateReputation(r.Context(), caller(r), pid, req.Value))
}

type statusOp func(ctx context.Context, caller types.Principal, pid id.ProducerID, reason string) error

func (s *Server) producerStatus(op statusOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reasonRequest
		if !bind(w, r, &req) {
			return
		}
		pid, err := pathID(r, "producerID", id.ParseProducerID)
		if err != nil {
			respondEngineError(w, r, err)
			return
		}
		reply(w, r, 0, nil, op(r.Context(), caller(r), pid, req.Reason))
	}
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	s.producerStatus(s.engine.BanProducer)(w, r)
}

func (s *Server) handleUnban(w http.ResponseWriter, r *http.Request) {
	s.producerStatus(s.engine.UnbanProducer)(w, r)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	s.producerStatus(s.engine.DeactivateProducer)(w, r)
}

func (s *Server) handleDescribeProducer(w http.ResponseWriter, r *http.Request) {
	var req descriptionRequest
	if !bind(w, r, &req) {
		return
	}
	pid, err := pathID(r, "producerID", id.ParseProducerID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	reply(w, r, 0, nil, s.engine.DescribeProducer(r.Context(), caller(r), pid, req.Description))
}

func (s *Server) handleProducerDescription(w http.ResponseWriter, r *http.Request) {
	pid, err := pathID(r, "producerID", id.ParseProducerID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	desc, err := s.engine.ProducerDescription(r.Context(), pid)
	reply(w, r, http.StatusOK, descriptionRequest{Description: desc}, err)
}

func (s *Server) handleScheduleEvent(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !bind(w, r, &req) {
		return
	}
	pid, err := pathID(r, "producerID", id.ParseProducerID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	var meta []byte
	if req.Metadata != "" {
		meta = []byte(req.Metadata)
	}
	ev, err := s.engine.ScheduleEvent(r.Context(), caller(r), pid, req.ScheduledAt, meta)
	reply(w, r, http.StatusCreated, ev, err)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	pid, err := pathID(r, "producerID", id.ParseProducerID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	limit, offset := page(r)
	list, err := s.engine.ListEvents(r.Context(), pid, producer.ListOpts{Limit: limit, Offset: offset})
	reply(w, r, http.StatusOK, list, err)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eid, err := pathID(r, "eventID", id.ParseEventID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	ev, err := s.engine.GetEvent(r.Context(), eid)
	reply(w, r, http.StatusOK, ev, err)
}

func (s *Server) handleDescribeEvent(w http.ResponseWriter, r *http.Request) {
	var req descriptionRequest
	if !bind(w, r, &req) {
		return
	}
	eid, err := pathID(r, "eventID", id.ParseEventID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	reply(w, r, 0, nil, s.engine.DescribeEvent(r.Context(), caller(r), eid, req.Description))
}

func (s *Server) handleEventDescription(w http.ResponseWriter, r *http.Request) {
	eid, err := pathID(r, "eventID", id.ParseEventID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	desc, err := s.engine.EventDescription(r.Context(), eid)
	reply(w, r, http.StatusOK, descriptionRequest{Description: desc}, err)
}

// ──────────────────────────────────────────────────
// Submission
// ──────────────────────────────────────────────────

func (s *Server) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !bind(w, r, &req) {
		return
	}
	eid, err := pathID(r, "eventID", id.ParseEventID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	res, err := s.engine.SubmitResult(r.Context(), caller(r), eid, verity.Submission{
		Payload:     []byte(req.Payload),
		DecodeHint:  req.DecodeHint,
		QuickFields: req.QuickFields,
		Schema:      req.Schema,
	})
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, viewOf(res, false))
}

func (s *Server) handleGetFullResult(w http.ResponseWriter, r *http.Request) {
	eid, err := pathID(r, "eventID", id.ParseEventID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	res, err := s.engine.GetFullResult(r.Context(), caller(r), eid)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(res, true))
}

func (s *Server) handleResultStatus(w http.ResponseWriter, r *http.Request) {
	eid, err := pathID(r, "eventID", id.ParseEventID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	res, err := s.engine.ResultStatus(r.Context(), eid)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(res, false))
}

func (s *Server) handleGetResultField(w http.ResponseWriter, r *http.Request) {
	eid, err := pathID(r, "eventID", id.ParseEventID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	key := chi.URLParam(r, "key")
	val, err := s.engine.GetResultField(r.Context(), caller(r), eid, key)
	reply(w, r, http.StatusOK, map[string]string{"key": key, "value": val}, err)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	eid, err := pathID(r, "eventID", id.ParseEventID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	ok, err := s.engine.FinalizeResult(r.Context(), eid)
	reply(w, r, http.StatusOK, map[string]bool{"finalized": ok}, err)
}

func (s *Server) handleBatchFinalize(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !bind(w, r, &req) {
		return
	}
	ids := make([]id.EventID, 0, len(req.EventIDs))
	for _, raw := range req.EventIDs {
		eid, err := id.ParseEventID(raw)
		if err != nil {
			respondEngineError(w, r, verity.ValidationError{Field: "event_ids", Message: err.Error()})
			return
		}
		ids = append(ids, eid)
	}
	n, err := s.engine.BatchFinalizeResults(r.Context(), ids)
	reply(w, r, http.StatusOK, map[string]int{"finalized": n}, err)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	before := time.Now()
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondEngineError(w, r, verity.ValidationError{Field: "before", Message: err.Error()})
			return
		}
		before = t
	}
	limit, _ := page(r)
	list, err := s.engine.ListPendingResults(r.Context(), before, limit)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	views := make([]resultView, 0, len(list))
	for _, res := range list {
		views = append(views, viewOf(res, false))
	}
	respondJSON(w, http.StatusOK, views)
}

// ──────────────────────────────────────────────────
// Disputes
// ──────────────────────────────────────────────────

func (s *Server) handleCreateDispute(w http.ResponseWriter, r *http.Request) {
	var req disputeRequest
	if !bind(w, r, &req) {
		return
	}
	eid, err := pathID(r, "eventID", id.ParseEventID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	stake, err := s.money(r.Context(), req.amountRequest)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	d, err := s.engine.CreateDispute(r.Context(), caller(r), eid, stake, req.Reason, req.EvidenceRef)
	reply(w, r, http.StatusCreated, d, err)
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !bind(w, r, &req) {
		return
	}
	did, err := pathID(r, "disputeID", id.ParseDisputeID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	d, err := s.engine.ResolveDispute(r.Context(), caller(r), did, req.Accepted, req.RewardPercent)
	reply(w, r, http.StatusOK, d, err)
}

func (s *Server) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	did, err := pathID(r, "disputeID", id.ParseDisputeID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	d, err := s.engine.GetDispute(r.Context(), did)
	reply(w, r, http.StatusOK, d, err)
}

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := page(r)
	opts := dispute.ListOpts{
		Challenger:     types.Principal(q.Get("challenger")),
		UnresolvedOnly: q.Get("unresolved") == "true",
		Limit:          limit,
		Offset:         offset,
	}
	if raw := q.Get("event_id"); raw != "" {
		eid, err := id.ParseEventID(raw)
		if err != nil {
			respondEngineError(w, r, verity.ValidationError{Field: "event_id", Message: err.Error()})
			return
		}
		opts.EventID = eid
	}
	list, err := s.engine.ListDisputes(r.Context(), opts)
	reply(w, r, http.StatusOK, list, err)
}

// ──────────────────────────────────────────────────
// Billing
// ──────────────────────────────────────────────────

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !bind(w, r, &req) {
		return
	}
	amount, err := s.money(r.Context(), req.amountRequest)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	dep, err := s.engine.DepositBalance(r.Context(), caller(r), amount, types.Principal(req.Referrer))
	reply(w, r, http.StatusCreated, dep, err)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.engine.GetAccount(r.Context(), caller(r))
	reply(w, r, http.StatusOK, acct, err)
}

func (s *Server) handleListCharges(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	list, err := s.engine.ListCharges(r.Context(), caller(r), billing.ListOpts{Limit: limit, Offset: offset})
	reply(w, r, http.StatusOK, list, err)
}

func (s *Server) handleChargeQuery(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if !bind(w, r, &req) {
		return
	}
	eid, err := pathID(r, "eventID", id.ParseEventID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	pid, err := id.ParseProducerID(req.ProducerID)
	if err != nil {
		respondEngineError(w, r, verity.ValidationError{Field: "producer_id", Message: err.Error()})
		return
	}
	g, err := s.engine.ChargeQuery(r.Context(), caller(r), pid, eid)
	reply(w, r, http.StatusOK, g, err)
}

func (s *Server) handleHasAccess(w http.ResponseWriter, r *http.Request) {
	eid, err := pathID(r, "eventID", id.ParseEventID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	ok, err := s.engine.HasAccess(r.Context(), caller(r), eid)
	reply(w, r, http.StatusOK, map[string]bool{"access": ok}, err)
}

func (s *Server) handleGetEarnings(w http.ResponseWriter, r *http.Request) {
	pid, err := pathID(r, "producerID", id.ParseProducerID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	earn, err := s.engine.GetEarnings(r.Context(), pid)
	reply(w, r, http.StatusOK, earn, err)
}

func (s *Server) handleWithdrawEarnings(w http.ResponseWriter, r *http.Request) {
	pid, err := pathID(r, "producerID", id.ParseProducerID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	wd, err := s.engine.WithdrawEarnings(r.Context(), caller(r), pid)
	reply(w, r, http.StatusOK, wd, err)
}

func (s *Server) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.engine.GetPools(r.Context())
	reply(w, r, http.StatusOK, pools, err)
}

type payoutOp func(ctx context.Context, admin, to types.Principal, amount types.Money, memo string) (*billing.Payout, error)

func (s *Server) payout(op payoutOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req payoutRequest
		if !bind(w, r, &req) {
			return
		}
		amount, err := s.money(r.Context(), req.amountRequest)
		if err != nil {
			respondEngineError(w, r, err)
			return
		}
		p, err := op(r.Context(), caller(r), types.Principal(req.To), amount, req.Memo)
		reply(w, r, http.StatusOK, p, err)
	}
}

func (s *Server) handlePayoutTreasury(w http.ResponseWriter, r *http.Request) {
	s.payout(s.engine.PayoutTreasury)(w, r)
}

func (s *Server) handlePayoutChallenger(w http.ResponseWriter, r *http.Request) {
	s.payout(s.engine.PayoutChallengerPool)(w, r)
}

// ──────────────────────────────────────────────────
// Admin
// ──────────────────────────────────────────────────

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Params(r.Context())
	reply(w, r, http.StatusOK, p, err)
}

func (s *Server) handleParamsHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.ParamsHistory(r.Context())
	reply(w, r, http.StatusOK, list, err)
}

func (s *Server) handleUpdateParams(w http.ResponseWriter, r *http.Request) {
	var next params.Params
	if !bind(w, r, &next) {
		return
	}
	p, err := s.engine.UpdateParams(r.Context(), caller(r), &next)
	reply(w, r, http.StatusOK, p, err)
}

type listOp func(ctx context.Context, admin, target types.Principal) error

func (s *Server) editList(op listOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := types.Principal(chi.URLParam(r, "principal"))
		reply(w, r, 0, nil, op(r.Context(), caller(r), target))
	}
}

func (s *Server) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	s.editList(s.engine.AddAdmin)(w, r)
}

func (s *Server) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	s.editList(s.engine.RemoveAdmin)(w, r)
}

func (s *Server) handleAddResolver(w http.ResponseWriter, r *http.Request) {
	s.editList(s.engine.AddResolver)(w, r)
}

func (s *Server) handleRemoveResolver(w http.ResponseWriter, r *http.Request) {
	s.editList(s.engine.RemoveResolver)(w, r)
}
