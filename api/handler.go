package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bidvault/build"
	"bidvault/debug"
	"bidvault/escrow"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/meka-dev/mekatek-go/mekabuild"
)

// SenderHeaderKey carries the authenticated caller identity. The host
// gateway in front of the service is responsible for setting it.
const SenderHeaderKey = "X-Bidvault-Sender"

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoSender       = errors.New("no sender")
)

type Handler struct {
	router  *mux.Router
	logger  log.Logger
	service escrow.Service
}

func NewHandler(service escrow.Service, logger log.Logger) *Handler {
	s := &Handler{
		router:  mux.NewRouter(),
		logger:  logger,
		service: service,
	}

	s.router.Methods("GET").Path("/-/ping").HandlerFunc(s.handleGetPing)
	s.router.Methods("GET").Path("/-/panic").HandlerFunc(s.handleGetPanic)

	s.router.Methods("GET").Path("/v1/info").HandlerFunc(s.handleGetInfo)
	s.router.Methods("POST").Path("/v1/initialize").HandlerFunc(s.handlePostInitialize)

	s.router.Methods("POST").Path("/v1/bidding/start").HandlerFunc(s.handlePostStartBidding)
	s.router.Methods("POST").Path("/v1/bidding/end").HandlerFunc(s.handlePostEndBidding)
	s.router.Methods("GET").Path("/v1/bidding").HandlerFunc(s.handleGetBiddingPeriod)

	s.router.Methods("POST").Path("/v1/bids").HandlerFunc(s.handlePostBid)
	s.router.Methods("GET").Path("/v1/bids").HandlerFunc(s.handleGetBids)
	s.router.Methods("GET").Path("/v1/bids/{address}").HandlerFunc(s.handleGetBid)

	s.router.Methods("GET").Path("/v1/settlements").HandlerFunc(s.handleGetSettlements)

	s.router.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s.router.Use(
		corsHeadersMiddleware,
		mekabuild.GunzipRequestMiddleware,
		debug.LoggingMiddleware(s.logger),
		debug.MetricsMiddleware,
		panicRecoveryMiddleware(s.logger), // should be after observability middlewares
		// the handler executes here
	)

	return s
}

func (s *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

//
//
//

func (s *Handler) handleGetPing(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		respondError(w, r, fmt.Errorf("ping: %w", err), http.StatusInternalServerError, s.logger)
		return
	}
	respondOK(w, r, struct{}{}, s.logger)
}

func (s *Handler) handleGetPanic(w http.ResponseWriter, r *http.Request) {
	level.Debug(s.logger).Log("msg", "panicking as requested")
	panic("requested panic")
}

type infoResponse struct {
	Contract         string   `json:"contract"`
	Version          string   `json:"version"`
	Admins           []string `json:"admins"`
	Network          string   `json:"network"`
	MinimumBidPolicy string   `json:"minimum_bid_policy"`
	BuildVersion     string   `json:"build_version"`
}

func (s *Handler) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Info(r.Context())
	if err != nil {
		respondError(w, r, fmt.Errorf("get info: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, infoResponse{
		Contract:         info.ContractName,
		Version:          info.ContractVersion,
		Admins:           info.Admins,
		Network:          info.Network,
		MinimumBidPolicy: info.MinimumBidPolicy.String(),
		BuildVersion:     build.Version,
	}, s.logger)
}

//
//
//

type initializeRequest struct {
	Admins []string `json:"admins"`
}

func (req *initializeRequest) validate() error {
	var merr multiError
	merr.addIf(len(req.Admins) == 0, fmt.Errorf("admins missing"))
	return merr.yield()
}

func (s *Handler) handlePostInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if !s.decode(w, r, &req, req.validate) {
		return
	}

	resp, err := s.service.Initialize(r.Context(), req.Admins)
	if err != nil {
		respondError(w, r, fmt.Errorf("initialize: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, makeCommandResponse(resp), s.logger)
}

//
//
//

type startBiddingRequest struct {
	Name            string      `json:"name"`
	Description     *string     `json:"description"`
	ExpiresAt       time.Time   `json:"expires_at"`
	MinimumBid      sdkmath.Int `json:"minimum_bid"`
	AcceptedBidders uint64      `json:"accepted_bidders"`
	Denom           string      `json:"denom"`
}

func (req *startBiddingRequest) validate() error {
	var merr multiError
	merr.addIf(req.Name == "", fmt.Errorf("name missing"))
	merr.addIf(req.ExpiresAt.IsZero(), fmt.Errorf("expires_at missing"))
	merr.addIf(req.MinimumBid.IsNil(), fmt.Errorf("minimum_bid missing"))
	merr.addIf(req.Denom == "", fmt.Errorf("denom missing"))
	return merr.yield()
}

func (s *Handler) handlePostStartBidding(w http.ResponseWriter, r *http.Request) {
	sender, ok := s.sender(w, r)
	if !ok {
		return
	}

	var req startBiddingRequest
	if !s.decode(w, r, &req, req.validate) {
		return
	}

	resp, err := s.service.StartBidding(r.Context(), sender, escrow.Terms{
		Name:            req.Name,
		Description:     req.Description,
		ExpiresAt:       req.ExpiresAt,
		MinimumBid:      req.MinimumBid,
		AcceptedBidders: req.AcceptedBidders,
		Denom:           req.Denom,
	})
	if err != nil {
		respondError(w, r, fmt.Errorf("start bidding: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, makeCommandResponse(resp), s.logger)
}

//
//
//

type endBiddingRequest struct {
	AcceptedBids      []string `json:"accepted_bids"`
	WithdrawalAddress *string  `json:"withdrawal_address"`
}

func (req *endBiddingRequest) validate() error {
	var merr multiError
	for _, addr := range req.AcceptedBids {
		merr.addIf(addr == "", fmt.Errorf("empty accepted bid address"))
	}
	merr.addIf(req.WithdrawalAddress != nil && *req.WithdrawalAddress == "", fmt.Errorf("empty withdrawal_address"))
	return merr.yield()
}

type endBiddingResponse struct {
	commandResponse

	SettlementID string      `json:"settlement_id"`
	Withdrawn    sdkmath.Int `json:"withdrawn"`
}

func (s *Handler) handlePostEndBidding(w http.ResponseWriter, r *http.Request) {
	sender, ok := s.sender(w, r)
	if !ok {
		return
	}

	var req endBiddingRequest
	if !s.decode(w, r, &req, req.validate) {
		return
	}

	receipt, err := s.service.EndBidding(r.Context(), sender, req.AcceptedBids, req.WithdrawalAddress)
	if err != nil {
		respondError(w, r, fmt.Errorf("end bidding: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, endBiddingResponse{
		commandResponse: makeCommandResponse(&receipt.Response),
		SettlementID:    receipt.SettlementID.String(),
		Withdrawn:       receipt.Withdrawn,
	}, s.logger)
}

//
//
//

type bidRequest struct {
	Funds   sdk.Coins `json:"funds"`
	Address *string   `json:"address"`
}

func (req *bidRequest) validate() error {
	var merr multiError
	merr.addIf(len(req.Funds) == 0, fmt.Errorf("funds missing"))
	for _, c := range req.Funds {
		merr.addIf(c.Amount.IsNil(), fmt.Errorf("funds: amount missing for %q", c.Denom))
	}
	merr.addIf(req.Address != nil && *req.Address == "", fmt.Errorf("empty address"))
	return merr.yield()
}

type bidResponse struct {
	commandResponse

	Address    string      `json:"address"`
	AmountPaid sdkmath.Int `json:"amount_paid"`
	NewTotal   sdkmath.Int `json:"new_total"`
}

func (s *Handler) handlePostBid(w http.ResponseWriter, r *http.Request) {
	sender, ok := s.sender(w, r)
	if !ok {
		return
	}

	var req bidRequest
	if !s.decode(w, r, &req, req.validate) {
		return
	}

	receipt, err := s.service.PlaceBid(r.Context(), sender, req.Funds, req.Address)
	if err != nil {
		respondError(w, r, fmt.Errorf("bid: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, bidResponse{
		commandResponse: makeCommandResponse(&receipt.Response),
		Address:         receipt.Address,
		AmountPaid:      receipt.AmountPaid,
		NewTotal:        receipt.NewTotal,
	}, s.logger)
}

//
//
//

type biddingPeriodJSON struct {
	Name            string      `json:"name"`
	Description     *string     `json:"description"`
	ExpiresAt       time.Time   `json:"expires_at"`
	MinimumBid      sdkmath.Int `json:"minimum_bid"`
	AcceptedBidders uint64      `json:"accepted_bidders"`
	Denom           string      `json:"denom"`
}

type biddingPeriodResponse struct {
	BiddingPeriod *biddingPeriodJSON `json:"bidding_period"`
}

func (s *Handler) handleGetBiddingPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.BiddingPeriod(r.Context())
	if err != nil {
		respondError(w, r, fmt.Errorf("get bidding period: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	var resp biddingPeriodResponse
	if p != nil {
		resp.BiddingPeriod = &biddingPeriodJSON{
			Name:            p.Name,
			Description:     p.Description,
			ExpiresAt:       p.ExpiresAt,
			MinimumBid:      p.MinimumBid,
			AcceptedBidders: p.AcceptedBidders,
			Denom:           p.Denom,
		}
	}

	respondOK(w, r, resp, s.logger)
}

type bidJSON struct {
	Bidder string      `json:"bidder"`
	Amount sdkmath.Int `json:"amount"`
}

func makeBidJSON(b *escrow.Bid) *bidJSON {
	if b == nil {
		return nil
	}
	return &bidJSON{Bidder: b.Bidder, Amount: b.Amount}
}

type bidsResponse struct {
	Bids []*bidJSON `json:"bids"`
}

func (s *Handler) handleGetBids(w http.ResponseWriter, r *http.Request) {
	bids, err := s.service.Bids(r.Context())
	if err != nil {
		respondError(w, r, fmt.Errorf("list bids: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	resp := bidsResponse{Bids: make([]*bidJSON, 0, len(bids))}
	for _, b := range bids {
		resp.Bids = append(resp.Bids, makeBidJSON(b))
	}

	respondOK(w, r, resp, s.logger)
}

type bidQueryResponse struct {
	Bid *bidJSON `json:"bid"`
}

func (s *Handler) handleGetBid(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["address"]

	b, err := s.service.Bid(r.Context(), addr)
	if err != nil {
		respondError(w, r, fmt.Errorf("get bid for %s: %w", addr, err), http.StatusInternalServerError, s.logger)
		return
	}

	respondOK(w, r, bidQueryResponse{Bid: makeBidJSON(b)}, s.logger)
}

type settlementJSON struct {
	ID         string            `json:"id"`
	PeriodName string            `json:"period_name"`
	Denom      string            `json:"denom"`
	Caller     string            `json:"caller"`
	Accepted   []string          `json:"accepted"`
	Transfers  []escrow.Transfer `json:"transfers"`
	Withdrawn  sdkmath.Int       `json:"withdrawn"`
	CreatedAt  time.Time         `json:"created_at"`
}

type settlementsResponse struct {
	Settlements []settlementJSON `json:"settlements"`
}

func (s *Handler) handleGetSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := s.service.Settlements(r.Context())
	if err != nil {
		respondError(w, r, fmt.Errorf("list settlements: %w", err), http.StatusInternalServerError, s.logger)
		return
	}

	resp := settlementsResponse{Settlements: make([]settlementJSON, 0, len(settlements))}
	for _, st := range settlements {
		resp.Settlements = append(resp.Settlements, settlementJSON{
			ID:         st.ID.String(),
			PeriodName: st.PeriodName,
			Denom:      st.Denom,
			Caller:     st.Caller,
			Accepted:   nonNil(st.Accepted),
			Transfers:  nonNil(st.Transfers),
			Withdrawn:  st.Withdrawn,
			CreatedAt:  st.CreatedAt,
		})
	}

	respondOK(w, r, resp, s.logger)
}

//
//
//

type commandResponse struct {
	Attributes []escrow.Attribute `json:"attributes"`
	Transfers  []escrow.Transfer  `json:"transfers"`
}

func makeCommandResponse(r *escrow.Response) commandResponse {
	return commandResponse{
		Attributes: nonNil(r.Attributes),
		Transfers:  nonNil(r.Transfers),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (s *Handler) sender(w http.ResponseWriter, r *http.Request) (string, bool) {
	sender := strings.TrimSpace(r.Header.Get(SenderHeaderKey))
	if sender == "" {
		respondError(w, r, fmt.Errorf("%w: %w (%s)", ErrInvalidRequest, ErrNoSender, SenderHeaderKey), http.StatusBadRequest, s.logger)
		return "", false
	}
	return sender, true
}

func (s *Handler) decode(w http.ResponseWriter, r *http.Request, req any, validate func() error) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		respondError(w, r, fmt.Errorf("%w: decode request: %v", ErrInvalidRequest, err), http.StatusBadRequest, s.logger)
		return false
	}

	if err := validate(); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", ErrInvalidRequest, err), http.StatusBadRequest, s.logger)
		return false
	}

	return true
}

type multiError struct {
	merr *multierror.Error
}

func (m *multiError) addIf(b bool, err error) {
	if !b {
		return
	}

	if m.merr == nil {
		m.merr = &multierror.Error{ErrorFormat: joinErrorStrings}
	}

	m.merr = multierror.Append(m.merr, err)
}

func (m *multiError) yield() error {
	if m.merr == nil {
		return nil
	}

	return m.merr.ErrorOrNil()
}

func joinErrorStrings(errs []error) string {
	strs := make([]string, len(errs))
	for i := range errs {
		strs[i] = errs[i].Error()
	}
	return strings.Join(strs, "; ")
}
