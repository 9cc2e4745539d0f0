package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/badoux/checkmail"
	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter-service/internal/domain"
	"github.com/ignite/newsletter-service/internal/pkg/httputil"
	"github.com/ignite/newsletter-service/internal/pkg/logger"
	"github.com/ignite/newsletter-service/internal/service/subscription"
)

// SubscriptionService is the subset of subscription.Service the handlers use.
type SubscriptionService interface {
	Get(ctx context.Context, id string) (*domain.Subscriber, error)
	Subscribe(ctx context.Context, email string, id domain.Identity) (domain.SubscriberStatus, error)
	SubscribeCustomer(ctx context.Context, c domain.Customer, intent domain.CustomerIntent) (*domain.Subscriber, error)
	Confirm(ctx context.Context, subscriberID, code string) (bool, error)
	Unsubscribe(ctx context.Context, subscriberID, code string) (bool, error)
}

// CustomerWriter mirrors customer accounts reported by the customer-save hook.
type CustomerWriter interface {
	Upsert(ctx context.Context, c domain.Customer) error
}

// Handlers serves the newsletter endpoints.
type Handlers struct {
	svc       SubscriptionService
	customers CustomerWriter
}

// NewHandlers creates the newsletter handlers. customers may be nil.
func NewHandlers(svc SubscriptionService, customers CustomerWriter) *Handlers {
	return &Handlers{svc: svc, customers: customers}
}

type subscribeRequest struct {
	Email string `json:"email"`
}

type subscribeResponse struct {
	Status  domain.SubscriberStatus `json:"status"`
	Message string                  `json:"message"`
}

// HandleSubscribe subscribes an address from a form post or JSON body.
//
//	POST /newsletter/subscribe
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if !httputil.Decode(w, r, &req) {
			return
		}
	} else {
		req.Email = r.FormValue("email")
	}

	email, ok := validEmail(req.Email)
	if !ok {
		httputil.BadRequest(w, "please enter a valid email address")
		return
	}

	id, _ := IdentityFrom(r.Context())
	status, err := h.svc.Subscribe(r.Context(), email, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	msg := "Thank you for your subscription."
	if status == domain.StatusUnconfirmed {
		msg = "The confirmation request has been sent."
	}
	httputil.OK(w, subscribeResponse{Status: status, Message: msg})
}

// HandleConfirm confirms a subscription from the e-mailed link.
//
//	GET /newsletter/confirm?id=&code=
func (h *Handlers) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	h.handleCodeLink(w, r, h.svc.Confirm,
		"Your subscription has been confirmed.",
		"This is an invalid subscription confirmation code.")
}

// HandleUnsubscribe cancels a subscription from the e-mailed link.
//
//	GET /newsletter/unsubscribe?id=&code=
func (h *Handlers) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	h.handleCodeLink(w, r, h.svc.Unsubscribe,
		"You unsubscribed.",
		"This is an invalid subscription ID or code.")
}

func (h *Handlers) handleCodeLink(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id, code string) (bool, error), okMsg, invalidMsg string) {
	q := r.URL.Query()
	id, code := q.Get("id"), q.Get("code")
	if id == "" || code == "" {
		httputil.BadRequest(w, invalidMsg)
		return
	}

	ok, err := op(r.Context(), id, code)
	if errors.Is(err, subscription.ErrNotFound) {
		httputil.BadRequest(w, invalidMsg)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		httputil.BadRequest(w, invalidMsg)
		return
	}
	httputil.OK(w, map[string]string{"message": okMsg})
}

type customerSaveRequest struct {
	Email               string `json:"email"`
	StoreID             int64  `json:"store_id"`
	WebsiteID           int64  `json:"website_id"`
	ImportMode          bool   `json:"import_mode"`
	IsSubscribed        *bool  `json:"is_subscribed"`
	AccountConfirmation string `json:"account_confirmation"`
	SendNotification    *bool  `json:"send_notification"`
}

// HandleCustomerSave reconciles the subscription after a customer profile
// save on the storefront. It answers null when no subscriber exists.
//
//	POST /customers/{id}/newsletter
func (h *Handlers) HandleCustomerSave(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || customerID <= 0 {
		httputil.BadRequest(w, "invalid customer id")
		return
	}

	var req customerSaveRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	email, ok := validEmail(req.Email)
	if !ok {
		httputil.BadRequest(w, "invalid customer email")
		return
	}

	c := domain.Customer{
		ID:         customerID,
		Email:      email,
		StoreID:    req.StoreID,
		WebsiteID:  req.WebsiteID,
		ImportMode: req.ImportMode,
	}
	if h.customers != nil {
		if err := h.customers.Upsert(r.Context(), c); err != nil {
			httputil.InternalError(w, err)
			return
		}
	}

	s, err := h.svc.SubscribeCustomer(r.Context(), c, domain.CustomerIntent{
		IsSubscribed:        req.IsSubscribed,
		AccountConfirmation: req.AccountConfirmation,
		SendNotification:    req.SendNotification,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.OK(w, s)
}

// HandleGetSubscriber returns one subscriber. Customer tokens only see the
// record linked to their own account; anything else answers 404.
//
//	GET /subscribers/{id}
func (h *Handlers) HandleGetSubscriber(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !IsService(r.Context()) {
		id, _ := IdentityFrom(r.Context())
		if id.CustomerID == 0 || s.CustomerID != id.CustomerID {
			httputil.NotFound(w, "subscriber not found")
			return
		}
	}
	httputil.OK(w, s)
}

// writeServiceError maps subscription errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscription.ErrInvalidArgument):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, subscription.ErrNotFound):
		httputil.NotFound(w, "subscriber not found")
	case errors.Is(err, subscription.ErrLocked):
		logger.Warn("newsletter request hit a held lock", "error", err)
		httputil.Conflict(w, "subscription is being updated, please retry")
	case errors.Is(err, subscription.ErrConflict):
		httputil.Conflict(w, "email is already subscribed by another customer")
	default:
		httputil.InternalError(w, err)
	}
}

// validEmail accepts a bare address and returns it trimmed.
func validEmail(raw string) (string, bool) {
	email := strings.TrimSpace(raw)
	if err := checkmail.ValidateFormat(email); err != nil {
		return "", false
	}
	return email, true
}
