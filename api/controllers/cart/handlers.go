package cart

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/shopcart-backend/api/middleware"
	"github.com/angelmondragon/shopcart-backend/api/responses"
	"github.com/angelmondragon/shopcart-backend/api/validators"
	cartsvc "github.com/angelmondragon/shopcart-backend/internal/cart"
	"github.com/angelmondragon/shopcart-backend/internal/policy"
	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
)

// CartAdd reserves stock for the requested lines in the caller's active cart.
func CartAdd(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFromRequest(w, r, svc, logg)
		if !ok {
			return
		}

		var payload itemsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.AddToCart(r.Context(), principal, payload.toInputs())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, "Product added to cart successfully", view)
	}
}

// CartView exposes the caller's active cart priced at current product prices.
func CartView(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFromRequest(w, r, svc, logg)
		if !ok {
			return
		}

		view, err := svc.ViewCart(r.Context(), principal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		msg := "Cart retrieved successfully"
		if view.IsEmpty() {
			msg = "Cart is empty"
		}
		responses.WriteSuccess(w, msg, view)
	}
}

func CartUpdate(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFromRequest(w, r, svc, logg)
		if !ok {
			return
		}
		cartID, ok := cartIDParam(w, r, logg)
		if !ok {
			return
		}

		var payload itemsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.UpdateCartItem(r.Context(), principal, cartID, payload.toInputs())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, "Cart item updated successfully", result)
	}
}

func CartRemove(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFromRequest(w, r, svc, logg)
		if !ok {
			return
		}
		cartID, ok := cartIDParam(w, r, logg)
		if !ok {
			return
		}

		var payload removeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RemoveCartItem(r.Context(), principal, cartID, payload.productIDs()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, "Cart item removed successfully", nil)
	}
}

func CartCheckout(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFromRequest(w, r, svc, logg)
		if !ok {
			return
		}

		result, err := svc.Checkout(r.Context(), principal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, "Checkout successful", result)
	}
}

// CartCheckedOut lists the caller's completed carts.
func CartCheckedOut(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFromRequest(w, r, svc, logg)
		if !ok {
			return
		}

		carts, err := svc.ViewCheckedOut(r.Context(), principal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if len(carts) == 0 {
			responses.WriteSuccess(w, "No checked out carts found", nil)
			return
		}
		responses.WriteSuccess(w, "Checked out carts retrieved successfully", map[string]any{"carts": carts})
	}
}

func principalFromRequest(w http.ResponseWriter, r *http.Request, svc cartsvc.Service, logg *logger.Logger) (policy.Principal, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
		return policy.Principal{}, false
	}
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Unauthenticated"))
		return policy.Principal{}, false
	}
	return p, true
}

func cartIDParam(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "No active cart found"))
		return uuid.Nil, false
	}
	return id, true
}
