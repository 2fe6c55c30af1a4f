package profile

import (
	"context"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"

	"github.com/oggyb/wetogether/internal/app"
	"github.com/oggyb/wetogether/internal/auth"
	"github.com/oggyb/wetogether/internal/db"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/server"
	"github.com/oggyb/wetogether/internal/service/match"
)

const ServiceName = "wetogether.v1.ProfileService"

type RegisterRequest struct {
	UserID   uint64 `json:"user_id"`
	Name     string `json:"name"`
	Gender   string `json:"gender"`
	Age      int    `json:"age"`
	City     string `json:"city"`
	Bio      string `json:"bio,omitempty"`
	PhotoRef string `json:"photo_ref,omitempty"`
}

type RegisterResponse struct {
	Profile  *notify.Profile `json:"profile"`
	Balance  decimal.Decimal `json:"balance"`
	Restored decimal.Decimal `json:"restored"`
}

type UserRequest struct {
	UserID uint64 `json:"user_id"`
}

type DeleteResponse struct {
	Saved decimal.Decimal `json:"saved"`
}

type ProfileResponse struct {
	Profile *notify.Profile `json:"profile"`
	Balance decimal.Decimal `json:"balance"`
}

type DiscoverRequest struct {
	UserID uint64 `json:"user_id"`
	City   string `json:"city,omitempty"`
	MinAge int    `json:"min_age,omitempty"`
	MaxAge int    `json:"max_age,omitempty"`
}

type DiscoverResponse struct {
	Profile *notify.Profile `json:"profile"`
}

// Registrar ties the Profile service into the gRPC server
type Registrar struct {
	svc *Service
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{svc: NewService(appCtx)}
}

func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(server.Service(ServiceName,
		server.Unary(ServiceName, "Register", r.register),
		server.Unary(ServiceName, "Delete", r.delete),
		server.Unary(ServiceName, "Get", r.get),
		server.Unary(ServiceName, "Discover", r.discover),
	), r.svc)
}

func (r *Registrar) register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	u, restored, err := r.svc.Register(ctx, RegisterInput{
		UserID:   req.UserID,
		Name:     req.Name,
		Gender:   req.Gender,
		Age:      req.Age,
		City:     req.City,
		Bio:      req.Bio,
		PhotoRef: req.PhotoRef,
	})
	if err != nil {
		return nil, err
	}
	return &RegisterResponse{Profile: match.PublicProfile(u), Balance: u.Balance, Restored: restored}, nil
}

func (r *Registrar) delete(ctx context.Context, req *UserRequest) (*DeleteResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	saved, err := r.svc.Delete(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &DeleteResponse{Saved: saved}, nil
}

func (r *Registrar) get(ctx context.Context, req *UserRequest) (*ProfileResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	u, err := r.svc.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return toProfileResponse(u), nil
}

func (r *Registrar) discover(ctx context.Context, req *DiscoverRequest) (*DiscoverResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	u, err := r.svc.Discover(ctx, req.UserID, Filter{City: req.City, MinAge: req.MinAge, MaxAge: req.MaxAge})
	if err != nil {
		return nil, err
	}
	return &DiscoverResponse{Profile: match.PublicProfile(u)}, nil
}

func toProfileResponse(u *db.User) *ProfileResponse {
	return &ProfileResponse{Profile: match.PublicProfile(u), Balance: u.Balance}
}
