package interest

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/wetogether/internal/app"
	"github.com/oggyb/wetogether/internal/auth"
	svcErr "github.com/oggyb/wetogether/internal/errors"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/server"
)

const ServiceName = "wetogether.v1.InterestService"

type LikeRequest struct {
	LikerID  uint64 `json:"liker_id"`
	TargetID uint64 `json:"target_id"`
	Super    bool   `json:"super"`
}

type LikeResponse struct {
	Mutual  bool   `json:"mutual"`
	MatchID uint64 `json:"match_id,omitempty"`
}

type ListLikersRequest struct {
	UserID          uint64  `json:"user_id"`
	PaginationToken *string `json:"pagination_token,omitempty"`
	Limit           int     `json:"limit,omitempty"`
}

type LikerEntry struct {
	Profile       *notify.Profile `json:"profile"`
	Super         bool            `json:"super"`
	UnixTimestamp int64           `json:"unix_timestamp"`
}

type ListLikersResponse struct {
	Likers              []LikerEntry `json:"likers"`
	NextPaginationToken *string      `json:"next_pagination_token,omitempty"`
}

type UserRequest struct {
	UserID uint64 `json:"user_id"`
}

type CountLikersResponse struct {
	Count int64 `json:"count"`
}

type NextPromptResponse struct {
	Found bool        `json:"found"`
	Liker *LikerEntry `json:"liker,omitempty"`
}

// Registrar ties the Interest service into the gRPC server
type Registrar struct {
	svc *Service
}

// NewRegistrar creates a new Registrar for the Interest service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{svc: NewService(appCtx)}
}

// Register attaches the Interest service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(server.Service(ServiceName,
		server.Unary(ServiceName, "Like", r.like),
		server.Unary(ServiceName, "ListPendingLikers", r.listPendingLikers),
		server.Unary(ServiceName, "CountLikers", r.countLikers),
		server.Unary(ServiceName, "NextPrompt", r.nextPrompt),
	), r.svc)
}

func (r *Registrar) like(ctx context.Context, req *LikeRequest) (*LikeResponse, error) {
	if err := auth.Authorize(ctx, req.LikerID); err != nil {
		return nil, err
	}
	if req.LikerID == 0 || req.TargetID == 0 {
		return nil, svcErr.InvalidArgument("liker_id and target_id are required")
	}
	out, err := r.svc.RegisterLike(ctx, req.LikerID, req.TargetID, req.Super)
	if err != nil {
		return nil, err
	}
	return &LikeResponse{Mutual: out.Mutual, MatchID: out.MatchID}, nil
}

func (r *Registrar) listPendingLikers(ctx context.Context, req *ListLikersRequest) (*ListLikersResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	likers, next, err := r.svc.ListPendingLikers(ctx, req.UserID, req.PaginationToken, req.Limit)
	if err != nil {
		return nil, err
	}
	resp := &ListLikersResponse{Likers: make([]LikerEntry, 0, len(likers)), NextPaginationToken: next}
	for _, l := range likers {
		resp.Likers = append(resp.Likers, LikerEntry{Profile: l.Profile, Super: l.IsSuper, UnixTimestamp: l.CreatedAt})
	}
	return resp, nil
}

func (r *Registrar) countLikers(ctx context.Context, req *UserRequest) (*CountLikersResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	n, err := r.svc.CountLikers(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &CountLikersResponse{Count: n}, nil
}

func (r *Registrar) nextPrompt(ctx context.Context, req *UserRequest) (*NextPromptResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	l, ok, err := r.svc.NextPrompt(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &NextPromptResponse{}, nil
	}
	return &NextPromptResponse{Found: true, Liker: &LikerEntry{Profile: l.Profile}}, nil
}
