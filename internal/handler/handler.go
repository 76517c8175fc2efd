package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
	"fueldelivery/internal/service"
)

type Users interface {
	Register(ctx context.Context, email, password string, role model.Role) (*model.User, error)
	Authenticate(ctx context.Context, email, password string) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
}

type Orders interface {
	Create(ctx context.Context, o *model.Order) (*model.Order, error)
	Get(ctx context.Context, id int64) (*model.Order, error)
	List(ctx context.Context, f service.OrderFilter) ([]model.Order, error)
	LatestActive(ctx context.Context, userID string) (*model.Order, error)
	Approve(ctx context.Context, id int64, startedAt time.Time) (*model.Order, error)
	Complete(ctx context.Context, id int64) (*model.Order, bool, error)
	Delete(ctx context.Context, id int64, userID string) error
}

type Profiles interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	Create(ctx context.Context, p model.Profile) error
	Update(ctx context.Context, p model.Profile) error
	SetAvatar(ctx context.Context, userID, name string) error
	Delete(ctx context.Context, userID string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func orderIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func internalError(log logger.ILogger, w http.ResponseWriter, msg string, err error) {
	log.Error(msg, logger.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}
