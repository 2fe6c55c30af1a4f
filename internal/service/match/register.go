package match

import (
	"context"

	"google.golang.org/grpc"

	"github.com/oggyb/wetogether/internal/app"
	"github.com/oggyb/wetogether/internal/auth"
	"github.com/oggyb/wetogether/internal/db"
	svcErr "github.com/oggyb/wetogether/internal/errors"
	"github.com/oggyb/wetogether/internal/notify"
	"github.com/oggyb/wetogether/internal/server"
)

const ServiceName = "wetogether.v1.MatchService"

type MatchRequest struct {
	MatchID uint64 `json:"match_id"`
	UserID  uint64 `json:"user_id"`
}

type MatchResponse struct {
	MatchID                uint64 `json:"match_id"`
	User1ID                uint64 `json:"user1_id"`
	User2ID                uint64 `json:"user2_id"`
	Stage                  string `json:"stage"`
	TasksCompleted         int    `json:"tasks_completed"`
	RomanticTasksCompleted int    `json:"romantic_tasks_completed"`
	TourPaid               bool   `json:"tour_paid"`
	Active                 bool   `json:"active"`
}

type Empty struct{}

type CurrentTaskRequest struct {
	UserID uint64 `json:"user_id"`
}

type TaskResponse struct {
	MatchID   uint64 `json:"match_id"`
	PartnerID uint64 `json:"partner_id"`
	Stage     string `json:"stage"`
	Category  string `json:"category"`
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	Prompt    string `json:"prompt"`
	Answered  bool   `json:"answered"`
}

type SubmitAnswerRequest struct {
	MatchID   uint64 `json:"match_id"`
	UserID    uint64 `json:"user_id"`
	TaskIndex int    `json:"task_index"`
	Kind      string `json:"kind"`
	Content   string `json:"content"`
}

type SubmitAnswerResponse struct {
	Outcome   string `json:"outcome"`
	Stage     string `json:"stage"`
	TaskIndex int    `json:"task_index"`
}

// Registrar ties the Match service into the gRPC server
type Registrar struct {
	svc *Service
}

// NewRegistrar creates a new Registrar for the Match service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{svc: NewService(appCtx)}
}

// Register attaches the Match service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(server.Service(ServiceName,
		server.Unary(ServiceName, "StartTasks", r.startTasks),
		server.Unary(ServiceName, "Ignore", r.ignore),
		server.Unary(ServiceName, "Get", r.get),
		server.Unary(ServiceName, "CurrentTask", r.currentTask),
		server.Unary(ServiceName, "SubmitAnswer", r.submitAnswer),
		server.Unary(ServiceName, "RevealProfile", r.revealProfile),
	), r.svc)
}

func (r *Registrar) startTasks(ctx context.Context, req *MatchRequest) (*MatchResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	m, err := r.svc.StartTasks(ctx, req.MatchID, req.UserID)
	if err != nil {
		return nil, err
	}
	return toMatchResponse(m), nil
}

func (r *Registrar) ignore(ctx context.Context, req *MatchRequest) (*Empty, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	if err := r.svc.Ignore(ctx, req.MatchID, req.UserID); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (r *Registrar) get(ctx context.Context, req *MatchRequest) (*MatchResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	m, err := r.svc.Get(ctx, req.MatchID, req.UserID)
	if err != nil {
		return nil, err
	}
	return toMatchResponse(m), nil
}

func (r *Registrar) currentTask(ctx context.Context, req *CurrentTaskRequest) (*TaskResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	v, err := r.svc.CurrentTask(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return &TaskResponse{
		MatchID:   v.MatchID,
		PartnerID: v.PartnerID,
		Stage:     string(v.Stage),
		Category:  string(v.Category),
		Index:     v.Index,
		Total:     v.Total,
		Prompt:    v.Prompt,
		Answered:  v.Answered,
	}, nil
}

func (r *Registrar) submitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	if req.MatchID == 0 {
		return nil, svcErr.InvalidArgument("match_id is required")
	}
	out, err := r.svc.SubmitAnswer(ctx, SubmitInput{
		MatchID:   req.MatchID,
		UserID:    req.UserID,
		TaskIndex: req.TaskIndex,
		Kind:      ContentKind(req.Kind),
		Content:   req.Content,
	})
	if err != nil {
		return nil, err
	}
	return &SubmitAnswerResponse{Outcome: string(out.Kind), Stage: string(out.Stage), TaskIndex: out.TaskIndex}, nil
}

func (r *Registrar) revealProfile(ctx context.Context, req *MatchRequest) (*notify.Profile, error) {
	if err := auth.Authorize(ctx, req.UserID); err != nil {
		return nil, err
	}
	return r.svc.RevealProfile(ctx, req.MatchID, req.UserID)
}

func toMatchResponse(m *db.Match) *MatchResponse {
	return &MatchResponse{
		MatchID:                m.ID,
		User1ID:                m.User1ID,
		User2ID:                m.User2ID,
		Stage:                  m.Stage,
		TasksCompleted:         m.TasksCompleted,
		RomanticTasksCompleted: m.RomanticTasksCompleted,
		TourPaid:               m.TourPaid,
		Active:                 m.Active,
	}
}
