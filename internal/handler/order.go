package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"fueldelivery/internal/logger"
	"fueldelivery/internal/model"
	"fueldelivery/internal/mw"
	"fueldelivery/internal/service"
)

type createOrderRequest struct {
	Location                string          `json:"location"`
	FuelType                model.FuelType  `json:"fuel_type"`
	Amount                  int             `json:"amount"`
	Company                 model.Company   `json:"company"`
	PricePerLiter           decimal.Decimal `json:"price_per_liter"`
	EstimatedCompletionTime time.Time       `json:"estimated_completion_time"`
}

type completeOrderResponse struct {
	Order   *model.Order `json:"order"`
	Changed bool         `json:"changed"`
}

// CreateOrderHandler prices the order with the configured price per liter.
// A different price sent by the client is ignored.
func CreateOrderHandler(orders Orders, pricePerLiter decimal.Decimal, log logger.ILogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		if !req.PricePerLiter.Equal(pricePerLiter) {
			log.Warning("client price per liter ignored",
				logger.String("user_id", userID),
				logger.String("sent", req.PricePerLiter.String()),
				logger.String("configured", pricePerLiter.String()))
		}

		created, err := orders.Create(r.Context(), &model.Order{
			UserID:                  userID,
			Location:                req.Location,
			FuelType:                req.FuelType,
			Amount:                  req.Amount,
			Company:                 req.Company,
			PricePerLiter:           pricePerLiter,
			EstimatedCompletionTime: req.EstimatedCompletionTime,
		})
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidOrder):
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			default:
				internalError(log, w, "order create failed", err)
			}
			return
		}

		log.Info("order created", logger.Int64("order_id", created.OrderID), logger.String("user_id", userID))
		writeJSON(w, http.StatusCreated, created)
	}
}

// ListOrdersHandler returns the caller's orders newest first.
// Admins may pass scope=all to see every order.
func ListOrdersHandler(orders Orders, log logger.ILogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		q := r.URL.Query()
		filter := service.OrderFilter{UserID: userID}

		if q.Get("scope") == "all" {
			if mw.Role(r.Context()) != model.RoleAdmin {
				http.Error(w, "admin role required", http.StatusForbidden)
				return
			}
			filter.UserID = ""
		}

		if s := q.Get("status"); s != "" {
			filter.Status = model.OrderStatus(s)
			if !filter.Status.Valid() {
				http.Error(w, "unknown status", http.StatusBadRequest)
				return
			}
		}

		list, err := orders.List(r.Context(), filter)
		if err != nil {
			internalError(log, w, "order list failed", err)
			return
		}

		writeJSON(w, http.StatusOK, list)
	}
}

func ActiveOrderHandler(orders Orders, log logger.ILogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		o, err := orders.LatestActive(r.Context(), userID)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrOrderNotFound):
				w.WriteHeader(http.StatusNoContent)
			default:
				internalError(log, w, "active order lookup failed", err)
			}
			return
		}

		writeJSON(w, http.StatusOK, o)
	}
}

func DeleteOrderHandler(orders Orders, log logger.ILogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, ok := orderIDParam(r)
		if !ok {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		if err := orders.Delete(r.Context(), id, userID); err != nil {
			switch {
			case errors.Is(err, service.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			default:
				internalError(log, w, "order delete failed", err)
			}
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// CompleteOrderHandler is idempotent: completing an already Completed order
// returns it with changed=false. Customers may only complete a delivery once
// its estimated completion time has passed; admins may complete it at any time.
func CompleteOrderHandler(orders Orders, log logger.ILogger, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id, ok := orderIDParam(r)
		if !ok {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		current, err := orders.Get(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			default:
				internalError(log, w, "order lookup failed", err)
			}
			return
		}
		admin := mw.Role(r.Context()) == model.RoleAdmin
		if current.UserID != userID && !admin {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		if current.Status == model.StatusApproved && !admin && !current.Overdue(now()) {
			http.Error(w, "delivery is still in progress", http.StatusConflict)
			return
		}

		o, changed, err := orders.Complete(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, service.ErrTransitionRejected):
				http.Error(w, "order is not approved", http.StatusConflict)
			default:
				internalError(log, w, "order complete failed", err)
			}
			return
		}

		if changed {
			log.Info("order completed", logger.Int64("order_id", id))
		}
		writeJSON(w, http.StatusOK, completeOrderResponse{Order: o, Changed: changed})
	}
}

func ApproveOrderHandler(orders Orders, log logger.ILogger, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := orderIDParam(r)
		if !ok {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		o, err := orders.Approve(r.Context(), id, now())
		if err != nil {
			switch {
			case errors.Is(err, service.ErrOrderNotFound):
				http.Error(w, "order not found", http.StatusNotFound)
			case errors.Is(err, service.ErrTransitionRejected):
				http.Error(w, "order is not pending", http.StatusConflict)
			default:
				internalError(log, w, "order approve failed", err)
			}
			return
		}

		log.Info("order approved", logger.Int64("order_id", id))
		writeJSON(w, http.StatusOK, o)
	}
}
