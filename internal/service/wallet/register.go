package wallet

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"

	"github.com/oggyb/wetogether/internal/app"
	"github.com/oggyb/wetogether/internal/auth"
	"github.com/oggyb/wetogether/internal/db"
	"github.com/oggyb/wetogether/internal/server"
)

const ServiceName = "wetogether.v1.WalletService"

type UserRequest struct {
	UserID uint64 `json:"user_id"`
}

type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type TopUpRequest struct {
	UserID uint64          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}

type TourRequest struct {
	UserID  uint64 `json:"user_id"`
	MatchID uint64 `json:"match_id"`
}

type PaymentResponse struct {
	IntentID string          `json:"intent_id"`
	PayURL   string          `json:"pay_url"`
	Amount   decimal.Decimal `json:"amount"`
	Purpose  string          `json:"purpose"`
	Status   string          `json:"status"`
}

type CheckPaymentRequest struct {
	UserID   uint64 `json:"user_id"`
	IntentID string `json:"intent_id"`
}

type TourResponse struct {
	MatchID  uint64 `json:"match_id"`
	Stage    string `json:"stage"`
	TourPaid bool   `json:"tour_paid"`
}

type CouponRequest struct {
	UserID uint64 `json:"user_id"`
	Code   string `json:"code"`
}

type CouponResponse struct {
	Code    string          `json:"code"`
	Amount  decimal.Decimal `json:"amount"`
	MaxUses int             `json:"max_uses,omitempty"`
	Uses    int             `json:"uses,omitempty"`
}

type AdminRequest struct {
	AdminID uint64 `json:"admin_id"`
}

type DeleteCouponRequest struct {
	AdminID uint64 `json:"admin_id"`
	Code    string `json:"code"`
}

type DeleteCouponResponse struct {
	Code string `json:"code"`
}

type ListCouponsResponse struct {
	Coupons []CouponResponse `json:"coupons"`
}

type CreateCouponRequest struct {
	AdminID uint64          `json:"admin_id"`
	Code    string          `json:"code,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	MaxUses int             `json:"max_uses"`
}

type BoostResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
}

type LedgerResponse struct {
	Entries []LedgerEntry `json:"entries"`
}

type LedgerEntry struct {
	Amount        decimal.Decimal `json:"amount"`
	Kind          string          `json:"kind"`
	Reference     string          `json:"reference,omitempty"`
	UnixTimestamp int64           `json:"unix_timestamp"`
}

// Registrar ties the Wallet service into the gRPC server
type Registrar struct {
	svc *Service
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{svc: NewService(appCtx)}
}

// Service exposes the wallet service, e.g. to share it with the payment poller.
func (r *Registrar) Service() *Service { return r.svc }

func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(server.Service(ServiceName,
		server.Unary(ServiceName, "Balance", r.balance),
		server.Unary(ServiceName, "Ledger", r.ledger),
		server.Unary(ServiceName, "TopUp", r.topUp),
		server.Unary(ServiceName, "BuyTourWithCrypto", r.buyTourWithCrypto),
		server.Unary(ServiceName, "BuyTourWithBalance", r.buyTourWithBalance),
		server.Unary(ServiceName, "CheckPayment", r.checkPayment),
		server.Unary(ServiceName, "RedeemCoupon", r.redeemCoupon),
		server.Unary(ServiceName, "CreateCoupon", r.createCoupon),
		server.Unary(ServiceName, "ListCoupons", r.listCoupons),
		server.Unary(ServiceName, "DeleteCoupon", r.deleteCoupon),
		server.Unary(ServiceName, "BuyBoost", r.buyBoost),
	), r.svc)
}

func (r *Registrar) balance(ctx context.Context, req *UserRequest) (*BalanceResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	bal, err := r.svc.Balance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{Balance: bal}, nil
}

func (r *Registrar) ledger(ctx context.Context, req *UserRequest) (*LedgerResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	entries, err := r.svc.Ledger(ctx, req.UserID, 20)
	if err != nil {
		return nil, err
	}
	resp := &LedgerResponse{Entries: make([]LedgerEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, LedgerEntry{
			Amount:        e.Amount,
			Kind:          e.Kind,
			Reference:     e.Reference,
			UnixTimestamp: e.CreatedAt.UnixMilli(),
		})
	}
	return resp, nil
}

func (r *Registrar) topUp(ctx context.Context, req *TopUpRequest) (*PaymentResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	p, err := r.svc.TopUp(ctx, req.UserID, req.Amount)
	if err != nil {
		return nil, err
	}
	return toPaymentResponse(p), nil
}

func (r *Registrar) buyTourWithCrypto(ctx context.Context, req *TourRequest) (*PaymentResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	p, err := r.svc.BuyTourWithCrypto(ctx, req.UserID, req.MatchID)
	if err != nil {
		return nil, err
	}
	return toPaymentResponse(p), nil
}

func (r *Registrar) buyTourWithBalance(ctx context.Context, req *TourRequest) (*TourResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	m, err := r.svc.BuyTourWithBalance(ctx, req.UserID, req.MatchID)
	if err != nil {
		return nil, err
	}
	return &TourResponse{MatchID: m.ID, Stage: m.Stage, TourPaid: m.TourPaid}, nil
}

func (r *Registrar) checkPayment(ctx context.Context, req *CheckPaymentRequest) (*PaymentResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	st, err := r.svc.CheckPayment(ctx, req.UserID, req.IntentID)
	if err != nil {
		return nil, err
	}
	return &PaymentResponse{IntentID: req.IntentID, Status: st}, nil
}

func (r *Registrar) redeemCoupon(ctx context.Context, req *CouponRequest) (*CouponResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	amount, err := r.svc.RedeemCoupon(ctx, req.UserID, req.Code)
	if err != nil {
		return nil, err
	}
	return &CouponResponse{Code: normalizeCode(req.Code), Amount: amount}, nil
}

func (r *Registrar) createCoupon(ctx context.Context, req *CreateCouponRequest) (*CouponResponse, error) {
	if err := auth.Authorize(ctx, req.AdminID); err != nil {
		return nil, err
	}
	c, err := r.svc.CreateCoupon(ctx, req.AdminID, req.Code, req.Amount, req.MaxUses)
	if err != nil {
		return nil, err
	}
	return &CouponResponse{Code: c.Code, Amount: c.Amount, MaxUses: c.MaxUses}, nil
}

func (r *Registrar) listCoupons(ctx context.Context, req *AdminRequest) (*ListCouponsResponse, error) {
	if err := auth.Authorize(ctx, req.AdminID); err != nil {
		return nil, err
	}
	list, err := r.svc.Coupons(ctx, req.AdminID)
	if err != nil {
		return nil, err
	}
	resp := &ListCouponsResponse{Coupons: make([]CouponResponse, 0, len(list))}
	for _, c := range list {
		resp.Coupons = append(resp.Coupons, CouponResponse{Code: c.Code, Amount: c.Amount, MaxUses: c.MaxUses, Uses: c.CurrentUses})
	}
	return resp, nil
}

func (r *Registrar) deleteCoupon(ctx context.Context, req *DeleteCouponRequest) (*DeleteCouponResponse, error) {
	if err := auth.Authorize(ctx, req.AdminID); err != nil {
		return nil, err
	}
	if err := r.svc.DeleteCoupon(ctx, req.AdminID, req.Code); err != nil {
		return nil, err
	}
	return &DeleteCouponResponse{Code: normalizeCode(req.Code)}, nil
}

func (r *Registrar) buyBoost(ctx context.Context, req *UserRequest) (*BoostResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	until, err := r.svc.BuyBoost(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &BoostResponse{ExpiresAt: until}, nil
}

func toPaymentResponse(p *db.Payment) *PaymentResponse {
	return &PaymentResponse{
		IntentID: p.IntentID,
		PayURL:   p.PayURL,
		Amount:   p.Amount,
		Purpose:  p.Purpose,
		Status:   p.Status,
	}
}
