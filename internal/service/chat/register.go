package chat

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/wetogether/internal/app"
	"github.com/oggyb/wetogether/internal/auth"
	"github.com/oggyb/wetogether/internal/server"
)

const ServiceName = "wetogether.v1.ChatService"

type MaySendRequest struct {
	MatchID uint64 `json:"match_id"`
	UserID  uint64 `json:"user_id"`
}

type MaySendResponse struct {
	Allowed bool `json:"allowed"`
}

type RelayRequest struct {
	MatchID uint64 `json:"match_id"`
	UserID  uint64 `json:"user_id"`
	Content string `json:"content"`
}

type MessageEntry struct {
	ID            uint64 `json:"id"`
	SenderID      uint64 `json:"sender_id"`
	Content       string `json:"content"`
	UnixTimestamp int64  `json:"unix_timestamp"`
}

type HistoryRequest struct {
	MatchID uint64 `json:"match_id"`
	UserID  uint64 `json:"user_id"`
	Limit   int    `json:"limit,omitempty"`
}

type HistoryResponse struct {
	Messages []MessageEntry `json:"messages"`
}

// Registrar ties the Chat service into the gRPC server
type Registrar struct {
	svc *Service
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{svc: NewService(appCtx)}
}

func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(server.Service(ServiceName,
		server.Unary(ServiceName, "MaySend", r.maySend),
		server.Unary(ServiceName, "Relay", r.relay),
		server.Unary(ServiceName, "History", r.history),
	), r.svc)
}

func (r *Registrar) maySend(ctx context.Context, req *MaySendRequest) (*MaySendResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	ok, err := r.svc.MaySend(ctx, req.MatchID, req.UserID)
	if err != nil {
		return nil, err
	}
	return &MaySendResponse{Allowed: ok}, nil
}

func (r *Registrar) relay(ctx context.Context, req *RelayRequest) (*MessageEntry, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	msg, err := r.svc.Relay(ctx, req.MatchID, req.UserID, req.Content)
	if err != nil {
		return nil, err
	}
	return &MessageEntry{ID: msg.ID, SenderID: msg.SenderID, Content: msg.Content, UnixTimestamp: msg.CreatedAt.UnixMilli()}, nil
}

func (r *Registrar) history(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	msgs, err := r.svc.History(ctx, req.MatchID, req.UserID, req.Limit)
	if err != nil {
		return nil, err
	}
	resp := &HistoryResponse{Messages: make([]MessageEntry, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, MessageEntry{ID: m.ID, SenderID: m.SenderID, Content: m.Content, UnixTimestamp: m.CreatedAt.UnixMilli()})
	}
	return resp, nil
}
