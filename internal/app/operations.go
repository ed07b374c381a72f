package app

import (
	"bytes"
	"context"
	"errors"
	"time"

	"storefront/client/internal/catalog"
	"storefront/client/internal/logging"
	"storefront/client/internal/session"
	"storefront/client/internal/shopclient"
	"storefront/client/internal/state"
	"storefront/client/internal/vendor"
)

const (
	requestTimeout = 15 * time.Second
	assetTimeout   = 10 * time.Second
)

func (a *Application) startLogin(email, password string) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.timeout())
	defer cancel()
	res, err := a.shop.Login(ctx, email, password)
	if err != nil {
		a.logger.Errorf("login request failed: %v", err)
		a.dispatch(state.Event{Type: state.EventSysAuthFailure, Payload: buildFailurePayload(err)})
		return
	}
	a.logger.Infof("login succeeded, token %s", logging.MaskToken(res.Token))
	a.dispatch(state.Event{Type: state.EventSysAuthSuccess, Payload: state.AuthSuccessPayload{Token: res.Token, Email: res.Email, Role: res.Role}})
}

func (a *Application) startRegister(email, password string, role session.Role) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.timeout())
	defer cancel()
	msg, err := a.shop.Register(ctx, email, password, string(role))
	if err != nil {
		a.logger.Errorf("register request failed: %v", err)
		a.dispatch(state.Event{Type: state.EventSysRegisterFailure, Payload: buildFailurePayload(err)})
		return
	}
	a.dispatch(state.Event{Type: state.EventSysRegisterSuccess, Payload: state.NoticePayload{Message: msg}})
}

func (a *Application) loadProducts(category string) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.timeout())
	defer cancel()
	products, err := a.shop.ListProducts(ctx, category)
	if err != nil {
		a.dispatch(state.Event{Type: state.EventSysProductsFailure, Payload: buildFailurePayload(err)})
		return
	}
	a.dispatch(state.Event{Type: state.EventSysProductsLoaded, Payload: state.ProductsPayload{Category: category, Products: products}})
}

func (a *Application) loadFeatured() {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.timeout())
	defer cancel()
	products, err := a.shop.FeaturedProducts(ctx)
	if err != nil {
		a.dispatch(state.Event{Type: state.EventSysFeaturedFailure, Payload: buildFailurePayload(err)})
		return
	}
	a.dispatch(state.Event{Type: state.EventSysFeaturedLoaded, Payload: state.ProductsPayload{Products: products}})
}

func (a *Application) loadCart(token string, op state.CartOp) {
	a.cartRequest(op, func(ctx context.Context) (*catalog.Cart, error) {
		return a.shop.GetCart(ctx, token)
	})
}

func (a *Application) addToCart(token, productID string) {
	a.cartRequest(state.CartOpAdd, func(ctx context.Context) (*catalog.Cart, error) {
		return a.shop.AddToCart(ctx, token, productID, 1)
	})
}

func (a *Application) updateCartItem(token, productID string, quantity int) {
	a.cartRequest(state.CartOpUpdate, func(ctx context.Context) (*catalog.Cart, error) {
		return a.shop.UpdateCartItem(ctx, token, productID, quantity)
	})
}

func (a *Application) removeCartItem(token, productID string) {
	a.cartRequest(state.CartOpRemove, func(ctx context.Context) (*catalog.Cart, error) {
		return a.shop.RemoveCartItem(ctx, token, productID)
	})
}

func (a *Application) cartRequest(op state.CartOp, call func(ctx context.Context) (*catalog.Cart, error)) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.timeout())
	defer cancel()
	cart, err := call(ctx)
	if err != nil {
		a.logger.Errorf("cart %s failed: %v", op, err)
		payload := buildFailurePayload(err)
		payload.Op = op
		a.dispatch(state.Event{Type: state.EventSysCartFailure, Payload: payload})
		return
	}
	a.dispatch(state.Event{Type: state.EventSysCartLoaded, Payload: state.CartPayload{Op: op, Cart: cart}})
}

func (a *Application) placeOrder(token, shippingAddress string) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.timeout())
	defer cancel()
	msg, err := a.shop.PlaceOrder(ctx, token, shippingAddress)
	if err != nil {
		a.logger.Errorf("place order failed: %v", err)
		a.dispatch(state.Event{Type: state.EventSysOrderFailure, Payload: buildFailurePayload(err)})
		return
	}
	a.logger.Infof("order placed: %s", msg)
	a.dispatch(state.Event{Type: state.EventSysOrderPlaced, Payload: state.NoticePayload{}})
}

func (a *Application) loadOrders(token string) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.timeout())
	defer cancel()
	orders, err := a.shop.ListOrders(ctx, token)
	if err != nil {
		a.dispatch(state.Event{Type: state.EventSysOrdersFailure, Payload: buildFailurePayload(err)})
		return
	}
	a.dispatch(state.Event{Type: state.EventSysOrdersLoaded, Payload: state.OrdersPayload{Orders: orders}})
}

func (a *Application) loadVendorProducts() {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.timeout())
	defer cancel()
	products, err := a.shop.ListProducts(ctx, "")
	if err != nil {
		a.dispatch(state.Event{Type: state.EventSysVendorProductsFailure, Payload: buildFailurePayload(err)})
		return
	}
	a.dispatch(state.Event{Type: state.EventSysVendorProductsLoaded, Payload: state.ProductsPayload{Products: products}})
}

func (a *Application) loadProduct(token, productID string) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.timeout())
	defer cancel()
	product, err := a.shop.GetProduct(ctx, token, productID)
	if err != nil {
		a.logger.Errorf("load product %s failed: %v", productID, err)
		a.dispatch(state.Event{Type: state.EventSysProductLoadFailure, Payload: buildFailurePayload(err)})
		return
	}
	a.dispatch(state.Event{Type: state.EventSysProductLoaded, Payload: state.ProductLoadedPayload{Product: product}})
}

func (a *Application) uploadImage(token string, file state.ImageFilePayload) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.timeout())
	defer cancel()
	imageURL, err := a.shop.UploadImage(ctx, token, file.Name, bytes.NewReader(file.Data))
	if err != nil {
		payload := buildFailurePayload(err)
		payload.Draft = file.Draft
		a.dispatch(state.Event{Type: state.EventSysImageUploadFailure, Payload: payload})
		return
	}
	a.logger.Infof("image %s uploaded as %s", file.Name, imageURL)
	a.dispatch(state.Event{Type: state.EventSysImageUploaded, Payload: state.ImageUploadedPayload{URL: imageURL, Draft: file.Draft}})
}

func (a *Application) saveProduct(token string, draft vendor.Draft) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.timeout())
	defer cancel()
	if err := a.shop.SaveProduct(ctx, token, draft); err != nil {
		a.dispatch(state.Event{Type: state.EventSysProductSaveFailure, Payload: buildFailurePayload(err)})
		return
	}
	a.dispatch(state.Event{Type: state.EventSysProductSaved})
}

func (a *Application) deleteProduct(token, productID string) {
	if a.isStopping() {
		return
	}
	ctx, cancel := a.requestContext(a.timeout())
	defer cancel()
	if err := a.shop.DeleteProduct(ctx, token, productID); err != nil {
		a.dispatch(state.Event{Type: state.EventSysProductDeleteFailure, Payload: buildFailurePayload(err)})
		return
	}
	a.logger.Infof("product %s deleted", productID)
	a.dispatch(state.Event{Type: state.EventSysProductDeleted})
}

// fetchAsset скачивает картинку для UI.
func (a *Application) fetchAsset(assetURL string) ([]byte, error) {
	ctx, cancel := a.requestContext(assetTimeout)
	defer cancel()
	return a.shop.FetchAsset(ctx, assetURL)
}

func (a *Application) timeout() time.Duration {
	if a.cfg != nil && a.cfg.Timeout > 0 {
		return a.cfg.Timeout
	}
	return requestTimeout
}

func (a *Application) requestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	base := a.runCtx
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, timeout)
}

func (a *Application) isStopping() bool {
	if a.runCtx == nil {
		return false
	}
	select {
	case <-a.runCtx.Done():
		return true
	default:
		return false
	}
}

// buildFailurePayload раскладывает ошибку клиента по видам. Текст сервера
// передаётся только для ответов сервера, остальное машина заменяет своим сообщением.
func buildFailurePayload(err error) state.ScenarioResultPayload {
	payload := state.ScenarioResultPayload{Kind: state.ErrorKindUnknown}
	if err == nil {
		return payload
	}
	payload.TechnicalMessage = err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		payload.Kind = state.ErrorKindNetwork
		return payload
	}
	var cErr *shopclient.Error
	if errors.As(err, &cErr) {
		if cErr.Kind != "" {
			payload.Kind = cErr.Kind
		}
		if cErr.Kind == state.ErrorKindServer && cErr.Message != "" {
			payload.Message = cErr.Message
		}
	}
	return payload
}
