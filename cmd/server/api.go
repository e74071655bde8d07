package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nomisma-settlement/internal/authority"
	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

// reader is the read side of the orchestrator served over HTTP.
type reader interface {
	Authority() authority.Config
	Claim(ctx context.Context, addr common.Address) (*domain.Claim, error)
	ClaimsByState(ctx context.Context, state domain.ClaimState) ([]*domain.Claim, error)
	Escrow(ctx context.Context, addr common.Address) (*domain.Escrow, error)
	Token(ctx context.Context, addr common.Address) (*domain.ClaimToken, error)
	TokenBalance(ctx context.Context, token, holder common.Address) (decimal.Decimal, error)
	Pairing(ctx context.Context, netting common.Address) (*domain.Pairing, error)
	Pairings(ctx context.Context, state domain.PairingState) ([]*domain.Pairing, error)
	Events(ctx context.Context, emitter common.Address) ([]*domain.Event, error)
}

// api serves read-only lookups for indexers and dashboards.
type api struct {
	orch    reader
	audit   *auditJob
	backend string
	started time.Time
	log     *zap.Logger
}

func (a *api) routes(metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("GET /claims", a.handleClaims)
	mux.HandleFunc("GET /claims/{address}", a.handleClaim)
	mux.HandleFunc("GET /escrows/{address}", a.handleEscrow)
	mux.HandleFunc("GET /tokens/{address}", a.handleToken)
	mux.HandleFunc("GET /tokens/{address}/balances/{holder}", a.handleTokenBalance)
	mux.HandleFunc("GET /pairings", a.handlePairings)
	mux.HandleFunc("GET /pairings/{netting}", a.handlePairing)
	mux.HandleFunc("GET /events", a.handleEvents)
	mux.HandleFunc("GET /audit", a.handleAudit)
	return a.withRequestID(mux)
}

// withRequestID tags every request with an X-Request-ID, keeping one the
// caller supplied, and logs it with the response status.
func (a *api) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		a.log.Debug("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status          string         `json:"status"`
	Uptime          string         `json:"uptime"`
	Backend         string         `json:"backend"`
	Authority       common.Address `json:"authority"`
	Operator        common.Address `json:"operator"`
	SettlementAsset common.Address `json:"settlement_asset"`
	Exchange        common.Address `json:"exchange"`
	AuditOK         *bool          `json:"audit_ok,omitempty"`
	LastAudit       *time.Time     `json:"last_audit,omitempty"`
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := a.orch.Authority()
	resp := StatusResponse{
		Status:          "running",
		Uptime:          time.Since(a.started).Round(time.Second).String(),
		Backend:         a.backend,
		Authority:       cfg.Address,
		Operator:        cfg.Operator,
		SettlementAsset: cfg.SettlementAsset,
		Exchange:        cfg.Exchange,
	}
	if a.audit != nil {
		if last := a.audit.Last(); last != nil {
			ok := last.OK
			resp.AuditOK = &ok
			resp.LastAudit = &last.At
		}
	}
	a.writeJSON(w, http.StatusOK, resp)
}

type claimResponse struct {
	Address            common.Address      `json:"address"`
	Owner              common.Address      `json:"owner"`
	State              domain.ClaimState   `json:"state"`
	OptionType         string              `json:"option_type"`
	Counterparty       common.Address      `json:"counterparty"`
	Base               domain.AssetCode    `json:"base"`
	Underlying         domain.AssetCode    `json:"underlying"`
	Expiration         int64               `json:"expiration"`
	Strike             decimal.Decimal     `json:"strike"`
	Notional           decimal.Decimal     `json:"notional"`
	Premium            decimal.Decimal     `json:"premium"`
	Authority          common.Address      `json:"authority"`
	IssuedRate         decimal.NullDecimal `json:"issued_rate"`
	Escrow             common.Address      `json:"escrow"`
	Token              common.Address      `json:"token"`
	NettingEscrow      *common.Address     `json:"netting_escrow,omitempty"`
	SupplyAtSettlement decimal.NullDecimal `json:"supply_at_settlement"`
	PayoutDecimals     int32               `json:"payout_decimals"`
	CreatedAt          int64               `json:"created_at"`
	UpdatedAt          int64               `json:"updated_at"`
}

func newClaimResponse(c *domain.Claim) claimResponse {
	resp := claimResponse{
		Address:            c.Address,
		Owner:              c.Owner,
		State:              c.State,
		OptionType:         c.Terms.OptionType.String(),
		Counterparty:       c.Terms.Counterparty,
		Base:               c.Terms.Base,
		Underlying:         c.Terms.Underlying,
		Expiration:         c.Terms.Expiration,
		Strike:             c.Terms.Strike,
		Notional:           c.Terms.Notional,
		Premium:            c.Terms.Premium,
		Authority:          c.Terms.Authority,
		IssuedRate:         c.IssuedRate,
		Escrow:             c.Escrow,
		Token:              c.Token,
		SupplyAtSettlement: c.SupplyAtSettlement,
		PayoutDecimals:     c.PayoutDecimals,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
	if c.NettingEscrow != (common.Address{}) {
		netting := c.NettingEscrow
		resp.NettingEscrow = &netting
	}
	return resp
}

type escrowResponse struct {
	Address         common.Address  `json:"address"`
	Administrator   common.Address  `json:"administrator"`
	CustodyAsset    *common.Address `json:"custody_asset,omitempty"`
	Sealed          bool            `json:"sealed"`
	NativeBalance   decimal.Decimal `json:"native_balance"`
	AssetBalance    decimal.Decimal `json:"asset_balance"`
	NativeDeposited decimal.Decimal `json:"native_deposited"`
	NativeWithdrawn decimal.Decimal `json:"native_withdrawn"`
	AssetDeposited  decimal.Decimal `json:"asset_deposited"`
	AssetWithdrawn  decimal.Decimal `json:"asset_withdrawn"`
	CreatedAt       int64           `json:"created_at"`
}

func newEscrowResponse(e *domain.Escrow) escrowResponse {
	resp := escrowResponse{
		Address:         e.Address,
		Administrator:   e.Administrator,
		Sealed:          e.Sealed,
		NativeBalance:   e.NativeBalance,
		AssetBalance:    e.AssetBalance,
		NativeDeposited: e.NativeDeposited,
		NativeWithdrawn: e.NativeWithdrawn,
		AssetDeposited:  e.AssetDeposited,
		AssetWithdrawn:  e.AssetWithdrawn,
		CreatedAt:       e.CreatedAt,
	}
	if e.HasCustodyAsset() {
		asset := e.CustodyAsset
		resp.CustodyAsset = &asset
	}
	return resp
}

type tokenResponse struct {
	Address      common.Address  `json:"address"`
	IssuingClaim common.Address  `json:"issuing_claim"`
	TotalSupply  decimal.Decimal `json:"total_supply"`
	MintingOpen  bool            `json:"minting_open"`
	ExpiresAt    int64           `json:"expires_at"`
	CreatedAt    int64           `json:"created_at"`
}

type balanceResponse struct {
	Token   common.Address  `json:"token"`
	Holder  common.Address  `json:"holder"`
	Balance decimal.Decimal `json:"balance"`
}

type pairingResponse struct {
	NettingEscrow     common.Address      `json:"netting_escrow"`
	Authority         common.Address      `json:"authority"`
	LongClaim         common.Address      `json:"long_claim"`
	ShortClaim        common.Address      `json:"short_claim"`
	State             domain.PairingState `json:"state"`
	LongContribution  decimal.Decimal     `json:"long_contribution"`
	ShortContribution decimal.Decimal     `json:"short_contribution"`
	PairedAt          int64               `json:"paired_at"`
	SettledAt         int64               `json:"settled_at,omitempty"`
	SettlementRate    decimal.Decimal     `json:"settlement_rate"`
	ConvertedTotal    decimal.Decimal     `json:"converted_total"`
	LongPayout        decimal.Decimal     `json:"long_payout"`
	ShortPayout       decimal.Decimal     `json:"short_payout"`
}

func newPairingResponse(p *domain.Pairing) pairingResponse {
	return pairingResponse{
		NettingEscrow:     p.NettingEscrow,
		Authority:         p.Authority,
		LongClaim:         p.LongClaim,
		ShortClaim:        p.ShortClaim,
		State:             p.State,
		LongContribution:  p.LongContribution,
		ShortContribution: p.ShortContribution,
		PairedAt:          p.PairedAt,
		SettledAt:         p.SettledAt,
		SettlementRate:    p.SettlementRate,
		ConvertedTotal:    p.ConvertedTotal,
		LongPayout:        p.LongPayout,
		ShortPayout:       p.ShortPayout,
	}
}

type eventResponse struct {
	Seq           int64            `json:"seq"`
	Type          domain.EventType `json:"type"`
	Emitter       common.Address   `json:"emitter"`
	Subject       common.Address   `json:"subject"`
	Amount        decimal.Decimal  `json:"amount"`
	CounterAmount decimal.Decimal  `json:"counter_amount"`
	Rate          decimal.Decimal  `json:"rate"`
	Timestamp     int64            `json:"timestamp"`
}

func (a *api) handleClaim(w http.ResponseWriter, r *http.Request) {
	addr, ok := a.pathAddress(w, r, "address")
	if !ok {
		return
	}
	c, err := a.orch.Claim(r.Context(), addr)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, newClaimResponse(c))
}

func (a *api) handleClaims(w http.ResponseWriter, r *http.Request) {
	state := domain.ClaimState(r.URL.Query().Get("state"))
	if !state.IsValid() {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "state must be a claim state"})
		return
	}
	claims, err := a.orch.ClaimsByState(r.Context(), state)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]claimResponse, len(claims))
	for i, c := range claims {
		out[i] = newClaimResponse(c)
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *api) handleEscrow(w http.ResponseWriter, r *http.Request) {
	addr, ok := a.pathAddress(w, r, "address")
	if !ok {
		return
	}
	e, err := a.orch.Escrow(r.Context(), addr)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, newEscrowResponse(e))
}

func (a *api) handleToken(w http.ResponseWriter, r *http.Request) {
	addr, ok := a.pathAddress(w, r, "address")
	if !ok {
		return
	}
	t, err := a.orch.Token(r.Context(), addr)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, tokenResponse{
		Address:      t.Address,
		IssuingClaim: t.IssuingClaim,
		TotalSupply:  t.TotalSupply,
		MintingOpen:  t.MintingOpen,
		ExpiresAt:    t.ExpiresAt,
		CreatedAt:    t.CreatedAt,
	})
}

func (a *api) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	token, ok := a.pathAddress(w, r, "address")
	if !ok {
		return
	}
	holder, ok := a.pathAddress(w, r, "holder")
	if !ok {
		return
	}
	if _, err := a.orch.Token(r.Context(), token); err != nil {
		a.writeError(w, err)
		return
	}
	bal, err := a.orch.TokenBalance(r.Context(), token, holder)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, balanceResponse{Token: token, Holder: holder, Balance: bal})
}

func (a *api) handlePairing(w http.ResponseWriter, r *http.Request) {
	addr, ok := a.pathAddress(w, r, "netting")
	if !ok {
		return
	}
	p, err := a.orch.Pairing(r.Context(), addr)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, newPairingResponse(p))
}

func (a *api) handlePairings(w http.ResponseWriter, r *http.Request) {
	state := domain.PairingState(r.URL.Query().Get("state"))
	if state == "" {
		state = domain.PairingPaired
	}
	if !state.IsValid() {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "state must be PAIRED or SETTLED"})
		return
	}
	pairings, err := a.orch.Pairings(r.Context(), state)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]pairingResponse, len(pairings))
	for i, p := range pairings {
		out[i] = newPairingResponse(p)
	}
	a.writeJSON(w, http.StatusOK, out)
}

func (a *api) handleEvents(w http.ResponseWriter, r *http.Request) {
	var emitter common.Address
	if raw := r.URL.Query().Get("emitter"); raw != "" {
		if !common.IsHexAddress(raw) {
			a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "emitter must be a hex address"})
			return
		}
		emitter = common.HexToAddress(raw)
	}
	events, err := a.orch.Events(r.Context(), emitter)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]eventResponse, len(events))
	for i, e := range events {
		out[i] = eventResponse{
			Seq:           e.Seq,
			Type:          e.Type,
			Emitter:       e.Emitter,
			Subject:       e.Subject,
			Amount:        e.Amount,
			CounterAmount: e.CounterAmount,
			Rate:          e.Rate,
			Timestamp:     e.Timestamp,
		}
	}
	a.writeJSON(w, http.StatusOK, out)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := r.PathValue(name)
	if !common.IsHexAddress(raw) {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: name + " must be a hex address"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		a.writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	a.log.Error("lookup failed", zap.Error(err))
	a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Warn("encode response", zap.Error(err))
	}
}
