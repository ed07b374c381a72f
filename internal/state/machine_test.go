package state

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/client/internal/catalog"
	"storefront/client/internal/logging"
	"storefront/client/internal/session"
	"storefront/client/internal/vendor"
)

const validID = "65f1c2a9e4b0a1b2c3d4e5f6"

type recorder struct {
	mu      sync.Mutex
	calls   []string
	errors  []string
	notices []string
	purged  int
	drafts  []vendor.Draft
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		PurgeSession:   func() { r.mu.Lock(); r.purged++; r.mu.Unlock() },
		BeginSession:   func(token string) error { r.add("begin %s", token); return nil },
		StartLogin:     func(email, _ string) { r.add("login %s", email) },
		StartRegister:  func(email, _ string, role session.Role) { r.add("register %s %s", email, role) },
		LoadProducts:   func(category string) { r.add("products %q", category) },
		LoadFeatured:   func() { r.add("featured") },
		LoadCart:       func(_ string, op CartOp) { r.add("cart %s", op) },
		AddToCart:      func(_, id string) { r.add("add %s", id) },
		UpdateCartItem: func(_, id string, q int) { r.add("update %s %d", id, q) },
		RemoveCartItem: func(_, id string) { r.add("remove %s", id) },
		PlaceOrder:     func(_, address string) { r.add("order %s", address) },
		LoadOrders:     func(string) { r.add("orders") },
		LoadVendorProducts: func() {
			r.add("vendor products")
		},
		LoadProduct: func(_, id string) { r.add("product %s", id) },
		UploadImage: func(_ string, f ImageFilePayload) { r.add("upload %s %d", f.Name, f.Draft) },
		SaveProduct: func(_ string, d vendor.Draft) {
			r.mu.Lock()
			r.drafts = append(r.drafts, d)
			r.mu.Unlock()
			r.add("save %s", d.ProductID)
		},
		DeleteProduct: func(_, id string) { r.add("delete %s", id) },
		ShowModalError: func(info *ErrorInfo) {
			r.mu.Lock()
			r.errors = append(r.errors, info.UserMessage)
			r.mu.Unlock()
		},
		ShowTransientNotice: func(message string) {
			r.mu.Lock()
			r.notices = append(r.notices, message)
			r.mu.Unlock()
		},
	}
}

func newTestMachine(t *testing.T, cb Callbacks) *Machine {
	t.Helper()
	m := NewMachine(NewAppContext(nil), logging.Discard(), cb)
	t.Cleanup(m.Stop)
	return m
}

func loggedIn(m *Machine, role session.Role) {
	m.ctx.AuthToken = "token"
	m.ctx.User = session.User{Email: "seller@example.com", Role: role}
	m.transition(StateLoggedIn)
}

func waitAsync(t *testing.T, m *Machine) {
	t.Helper()
	require.True(t, m.WaitAsync(time.Second))
}

func TestLaunch_ValidSessionLoadsCatalogAndCartCount(t *testing.T) {
	rec := &recorder{}
	cb := rec.callbacks()
	cb.CheckSession = func() session.CheckResult {
		return session.CheckResult{
			Status: session.StatusLoggedIn,
			User:   session.User{Email: "seller@example.com", Role: session.RoleVendor},
			Reason: session.ReasonValid,
			Token:  "token",
		}
	}
	m := newTestMachine(t, cb)

	m.handleEvent(Event{Type: EventUILaunch})
	waitAsync(t, m)

	assert.Equal(t, StateLoggedIn, m.ctx.State)
	assert.True(t, m.ctx.UI.IsLoggedIn)
	assert.True(t, m.ctx.UI.ShowVendorLink)
	assert.Equal(t, "seller@example.com", m.ctx.UI.UserEmail)
	assert.ElementsMatch(t, []string{`products ""`, "featured", "cart count"}, rec.snapshot())
}

func TestLaunch_NoSessionSkipsCartCount(t *testing.T) {
	rec := &recorder{}
	cb := rec.callbacks()
	cb.CheckSession = func() session.CheckResult {
		return session.CheckResult{Status: session.StatusLoggedOut, Reason: session.ReasonExpired}
	}
	m := newTestMachine(t, cb)

	m.handleEvent(Event{Type: EventUILaunch})
	waitAsync(t, m)

	assert.Equal(t, StateLoggedOut, m.ctx.State)
	assert.False(t, m.ctx.UI.IsLoggedIn)
	assert.False(t, m.ctx.UI.ShowVendorLink)
	assert.NotContains(t, rec.snapshot(), "cart count")
}

func TestAddToCart_InvalidIDRejectedLocally(t *testing.T) {
	for _, state := range []State{StateLoggedOut, StateLoggedIn} {
		t.Run(string(state), func(t *testing.T) {
			rec := &recorder{}
			m := newTestMachine(t, rec.callbacks())
			if state == StateLoggedIn {
				loggedIn(m, session.RoleCustomer)
			} else {
				m.transition(StateLoggedOut)
			}

			m.handleEvent(Event{Type: EventUIAddToCart, Payload: ProductPayload{ID: validID[:23]}})
			waitAsync(t, m)

			assert.Equal(t, []string{MsgInvalidProductID}, rec.errors)
			assert.Empty(t, rec.snapshot())
		})
	}
}

func TestAddToCart_WithoutTokenRedirectsToLogin(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	m.transition(StateLoggedOut)

	m.handleEvent(Event{Type: EventUIAddToCart, Payload: ProductPayload{ID: validID}})
	waitAsync(t, m)

	assert.Equal(t, []string{MsgLoginToAdd}, rec.errors)
	assert.Equal(t, ViewLogin, m.ctx.UI.View)
	assert.Empty(t, rec.snapshot())
}

func TestAddToCart_DuplicateWhileInFlightIgnored(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	cb := rec.callbacks()
	cb.AddToCart = func(_, id string) {
		<-release
		rec.add("add %s", id)
	}
	m := newTestMachine(t, cb)
	loggedIn(m, session.RoleCustomer)

	evt := Event{Type: EventUIAddToCart, Payload: ProductPayload{ID: validID}}
	m.handleEvent(evt)
	m.handleEvent(evt)
	assert.True(t, m.InFlight("cart:add:"+validID))
	close(release)
	waitAsync(t, m)

	assert.Equal(t, []string{"add " + validID}, rec.snapshot())

	done := <-m.events
	require.Equal(t, EventSysTaskDone, done.Type)
	m.handleEvent(done)
	assert.False(t, m.InFlight("cart:add:"+validID))
}

func TestAddToCart_SuccessNotifiesAndRefreshesCount(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleCustomer)

	cart := &catalog.Cart{Items: []catalog.CartItem{{ProductID: validID, Price: 10, Quantity: 1}}}
	m.handleEvent(Event{Type: EventSysCartLoaded, Payload: CartPayload{Op: CartOpAdd, Cart: cart}})
	waitAsync(t, m)

	assert.Equal(t, []string{MsgAddedToCart}, rec.notices)
	assert.Equal(t, []string{"cart count"}, rec.snapshot())
	assert.True(t, m.ctx.UI.Badge.Visible)
	assert.Equal(t, 1, m.ctx.UI.Badge.Count)
}

func TestAddToCart_UnauthorizedExpiresSession(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleCustomer)

	m.handleEvent(Event{Type: EventSysUnauthorized, Payload: UnauthorizedPayload{Op: "AddToCart"}})
	m.handleEvent(Event{Type: EventSysCartFailure, Payload: ScenarioResultPayload{Op: CartOpAdd, Kind: ErrorKindUnauthorized}})

	assert.Equal(t, 1, rec.purged)
	assert.Equal(t, StateLoggedOut, m.ctx.State)
	assert.Empty(t, m.ctx.AuthToken)
	assert.Equal(t, []string{MsgSessionExpired}, rec.errors)
	assert.Equal(t, ViewLogin, m.ctx.UI.View)
}

func TestVendorSave_UnauthorizedWithoutInterceptorStillPurges(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)

	m.handleEvent(Event{Type: EventSysProductSaveFailure, Payload: ScenarioResultPayload{Kind: ErrorKindUnauthorized}})

	assert.Equal(t, 1, rec.purged)
	assert.Equal(t, StateLoggedOut, m.ctx.State)
	assert.Equal(t, []string{MsgSessionExpired}, rec.errors)
}

func TestAddToCart_ServerMessageShownVerbatim(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleCustomer)

	m.handleEvent(Event{Type: EventSysCartFailure, Payload: ScenarioResultPayload{Op: CartOpAdd, Kind: ErrorKindServer, Message: "Insufficient stock"}})
	m.handleEvent(Event{Type: EventSysCartFailure, Payload: ScenarioResultPayload{Op: CartOpAdd, Kind: ErrorKindNetwork}})

	assert.Equal(t, []string{"Insufficient stock", MsgAddToCartFailed}, rec.errors)
}

func TestCartCount_UnauthorizedPurgesWithoutBadgeUpdate(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleCustomer)
	m.ctx.UI.Badge = catalog.Badge{Count: 3, Text: "3", Visible: true}

	m.handleEvent(Event{Type: EventSysUnauthorized, Payload: UnauthorizedPayload{Op: "GetCart"}})
	m.handleEvent(Event{Type: EventSysCartFailure, Payload: ScenarioResultPayload{Op: CartOpCount, Kind: ErrorKindUnauthorized, TechnicalMessage: "401"}})
	waitAsync(t, m)

	assert.Equal(t, 1, rec.purged)
	assert.Equal(t, StateLoggedOut, m.ctx.State)
	assert.Equal(t, catalog.Badge{Count: 3, Text: "3", Visible: true}, m.ctx.UI.Badge)
	assert.Empty(t, rec.errors)
	assert.Empty(t, rec.snapshot())
}

func TestCartCount_ServerFailureShowsError(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleCustomer)
	m.ctx.UI.Badge = catalog.Badge{Count: 3, Text: "3", Visible: true}

	m.handleEvent(Event{Type: EventSysCartFailure, Payload: ScenarioResultPayload{Op: CartOpCount, Kind: ErrorKindServer, Message: "Failed to fetch cart"}})
	m.handleEvent(Event{Type: EventSysCartFailure, Payload: ScenarioResultPayload{Op: CartOpCount, Kind: ErrorKindNetwork}})

	assert.Equal(t, []string{"Failed to fetch cart", MsgCartCountFailed}, rec.errors)
	assert.Equal(t, StateLoggedIn, m.ctx.State)
	assert.Equal(t, catalog.Badge{Count: 3, Text: "3", Visible: true}, m.ctx.UI.Badge)
}

func TestCart_QuantityIsClampedToStock(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleCustomer)
	m.ctx.Cart = &catalog.Cart{Items: []catalog.CartItem{{ProductID: validID, Price: 5, Quantity: 2, Stock: 4}}}

	m.handleEvent(Event{Type: EventUIChangeQuantity, Payload: QuantityPayload{ProductID: validID, Quantity: 9}})
	waitAsync(t, m)
	assert.Equal(t, []string{"update " + validID + " 4"}, rec.snapshot())
}

func TestCart_QuantityUnchangedSendsNothing(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleCustomer)
	m.ctx.Cart = &catalog.Cart{Items: []catalog.CartItem{{ProductID: validID, Price: 5, Quantity: 1, Stock: 4}}}

	m.handleEvent(Event{Type: EventUIChangeQuantity, Payload: QuantityPayload{ProductID: validID, Quantity: 0}})
	waitAsync(t, m)
	assert.Empty(t, rec.snapshot())
}

func TestLogin_EmptyFieldsRejectedLocally(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	m.transition(StateLoggedOut)

	m.handleEvent(Event{Type: EventUIClickLogin, Payload: CredentialsPayload{Email: "a@b.c"}})
	waitAsync(t, m)

	assert.Equal(t, []string{MsgFillAllFields}, rec.errors)
	assert.Empty(t, rec.snapshot())
}

func TestLogin_SuccessStoresTokenAndRefreshesCount(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	m.transition(StateLoggedOut)
	m.ctx.UI.View = ViewLogin

	m.handleEvent(Event{Type: EventSysAuthSuccess, Payload: AuthSuccessPayload{Token: "tkn", Email: "a@b.c", Role: "customer"}})
	waitAsync(t, m)

	assert.Equal(t, StateLoggedIn, m.ctx.State)
	assert.Equal(t, "tkn", m.ctx.AuthToken)
	assert.Equal(t, ViewCatalog, m.ctx.UI.View)
	assert.False(t, m.ctx.UI.ShowVendorLink)
	assert.Equal(t, []string{"begin tkn", "cart count"}, rec.snapshot())
}

func TestLogin_FailureMessages(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	m.transition(StateLoggedOut)

	m.handleEvent(Event{Type: EventSysAuthFailure, Payload: ScenarioResultPayload{Kind: ErrorKindServer, Message: "Invalid credentials"}})
	m.handleEvent(Event{Type: EventSysAuthFailure, Payload: ScenarioResultPayload{Kind: ErrorKindServer}})
	m.handleEvent(Event{Type: EventSysAuthFailure, Payload: ScenarioResultPayload{Kind: ErrorKindNetwork}})

	assert.Equal(t, []string{"Invalid credentials", MsgLoginFailed, MsgLoginError}, rec.errors)
	assert.Equal(t, StateLoggedOut, m.ctx.State)
}

func TestRegister_SuccessClearsFormWithoutLogin(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	m.transition(StateLoggedOut)

	m.handleEvent(Event{Type: EventUIClickRegister, Payload: RegisterPayload{Email: "new@b.c", Password: "pw", Role: session.RoleVendor}})
	waitAsync(t, m)
	assert.Equal(t, []string{"register new@b.c vendor"}, rec.snapshot())

	m.handleEvent(Event{Type: EventSysRegisterSuccess, Payload: NoticePayload{Message: "User registered successfully"}})
	assert.Equal(t, []string{MsgRegistered}, rec.notices)
	assert.Empty(t, m.ctx.UI.RegisterEmail)
	assert.Empty(t, m.ctx.UI.RegisterPassword)
	assert.Equal(t, StateLoggedOut, m.ctx.State)
}

func TestLogout_PurgesAndReturnsHome(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)
	m.ctx.UI.View = ViewVendor

	m.handleEvent(Event{Type: EventUIClickLogout})

	assert.Equal(t, 1, rec.purged)
	assert.Equal(t, StateLoggedOut, m.ctx.State)
	assert.Equal(t, ViewCatalog, m.ctx.UI.View)
	assert.Empty(t, m.ctx.User.Email)
}

func TestVendorView_RequiresVendorRole(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleCustomer)

	m.handleEvent(Event{Type: EventUIShowView, Payload: ViewPayload{View: ViewVendor}})
	waitAsync(t, m)

	assert.Equal(t, ViewCatalog, m.ctx.UI.View)
	assert.Empty(t, rec.snapshot())
}

func TestVendorProducts_FilteredByOwner(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)

	products := []catalog.Product{
		{ID: "1", Name: "Mine", VendorEmail: "seller@example.com"},
		{ID: "2", Name: "Other", VendorEmail: "other@example.com"},
		{ID: "3", Name: "Also mine", VendorEmail: "seller@example.com"},
	}
	m.handleEvent(Event{Type: EventSysVendorProductsLoaded, Payload: ProductsPayload{Products: products}})

	require.Len(t, m.ctx.VendorProducts, 2)
	for _, p := range m.ctx.VendorProducts {
		assert.Equal(t, "seller@example.com", p.VendorEmail)
	}
	assert.Len(t, m.ctx.UI.VendorProducts.Cards, 2)
}

func TestSaveProduct_EditUsesPut(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)

	m.handleEvent(Event{Type: EventSysProductLoaded, Payload: ProductLoadedPayload{Product: catalog.Product{
		ID: validID, Name: "Lamp", Price: 12.5, Stock: 3, Images: []string{"lamp.png"},
	}}})
	require.True(t, m.ctx.UI.ProductDialog.Visible)
	assert.Equal(t, vendor.TitleEditProduct, m.ctx.UI.ProductDialog.Title)

	form := m.ctx.Draft.Form
	form.Price = "13"
	m.handleEvent(Event{Type: EventUISaveProduct, Payload: DraftPayload{Form: form}})
	waitAsync(t, m)

	require.Len(t, rec.drafts, 1)
	method, endpoint := rec.drafts[0].SaveTarget()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "products/"+validID, endpoint)
}

func TestEditProduct_LoadFailureKeepsDialogClosed(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)

	m.handleEvent(Event{Type: EventUIEditProduct, Payload: ProductPayload{ID: validID}})
	waitAsync(t, m)
	m.handleEvent(Event{Type: EventSysProductLoadFailure, Payload: ScenarioResultPayload{Kind: ErrorKindServer, Message: "Product not found"}})

	assert.Equal(t, []string{"product " + validID}, rec.snapshot())
	assert.Equal(t, []string{"Product not found"}, rec.errors)
	assert.False(t, m.ctx.UI.ProductDialog.Visible)
	assert.Nil(t, m.ctx.Draft)
}

func TestSaveProduct_NewUsesPost(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)

	m.handleEvent(Event{Type: EventUINewProduct})
	assert.Equal(t, vendor.TitleAddProduct, m.ctx.UI.ProductDialog.Title)
	m.handleEvent(Event{Type: EventUISaveProduct, Payload: DraftPayload{Form: vendor.Form{Name: "Mug", Price: "4.5", Stock: "10"}}})
	waitAsync(t, m)

	require.Len(t, rec.drafts, 1)
	method, endpoint := rec.drafts[0].SaveTarget()
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "products", endpoint)
}

func TestSaveProduct_InvalidNumberKeepsDraft(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)

	m.handleEvent(Event{Type: EventUINewProduct})
	m.handleEvent(Event{Type: EventUISaveProduct, Payload: DraftPayload{Form: vendor.Form{Name: "Mug", Price: "abc", Stock: "1"}}})
	waitAsync(t, m)

	assert.Equal(t, []string{MsgInvalidPrice}, rec.errors)
	assert.Empty(t, rec.drafts)
	require.NotNil(t, m.ctx.Draft)
	assert.Equal(t, "abc", m.ctx.Draft.Form.Price)
}

func TestSaveProduct_SuccessClosesDialogAndReloads(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)
	m.handleEvent(Event{Type: EventUINewProduct})

	m.handleEvent(Event{Type: EventSysProductSaved})
	waitAsync(t, m)

	assert.Nil(t, m.ctx.Draft)
	assert.False(t, m.ctx.UI.ProductDialog.Visible)
	assert.Equal(t, []string{MsgSaved}, rec.notices)
	assert.Equal(t, []string{"vendor products"}, rec.snapshot())
}

func TestSaveProduct_FailureKeepsDraft(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)
	m.handleEvent(Event{Type: EventUINewProduct})
	m.handleEvent(Event{Type: EventUIDraftChanged, Payload: DraftPayload{Form: vendor.Form{Name: "Mug"}}})

	m.handleEvent(Event{Type: EventSysProductSaveFailure, Payload: ScenarioResultPayload{Kind: ErrorKindServer, Message: "boom"}})

	assert.Equal(t, []string{MsgSaveFailed}, rec.errors)
	require.NotNil(t, m.ctx.Draft)
	assert.Equal(t, "Mug", m.ctx.Draft.Form.Name)
}

func TestUploadImage_FailureKeepsPreview(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)
	m.handleEvent(Event{Type: EventUINewProduct})
	gen := m.ctx.DraftGen
	m.handleEvent(Event{Type: EventSysImageUploaded, Payload: ImageUploadedPayload{URL: "/static/images/a.png", Draft: gen}})
	preview := m.ctx.UI.ProductDialog.Preview
	require.Equal(t, "/static/images/a.png", preview)

	m.handleEvent(Event{Type: EventSysImageUploadFailure, Payload: ScenarioResultPayload{Kind: ErrorKindServer, Draft: gen}})

	assert.Equal(t, []string{MsgUploadFailed}, rec.errors)
	assert.Equal(t, preview, m.ctx.UI.ProductDialog.Preview)
	assert.Equal(t, "/static/images/a.png", m.ctx.Draft.ImageURL)
}

func TestUploadImage_StaleResultDoesNotTouchNextDraft(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)

	m.handleEvent(Event{Type: EventUINewProduct})
	first := m.ctx.DraftGen
	m.handleEvent(Event{Type: EventUIUploadImage, Payload: ImageFilePayload{Name: "a.png", Data: []byte("a")}})
	waitAsync(t, m)
	m.handleEvent(Event{Type: EventUICloseProductDialog})

	m.handleEvent(Event{Type: EventSysProductLoaded, Payload: ProductLoadedPayload{Product: catalog.Product{
		ID: validID, Name: "Lamp", Price: 12.5, Stock: 3, Images: []string{"lamp.png"},
	}}})
	require.NotEqual(t, first, m.ctx.DraftGen)
	preview := m.ctx.UI.ProductDialog.Preview
	m.handleEvent(Event{Type: EventSysImageUploaded, Payload: ImageUploadedPayload{URL: "/static/images/a.png", Draft: first}})
	m.handleEvent(Event{Type: EventSysImageUploadFailure, Payload: ScenarioResultPayload{Kind: ErrorKindServer, Draft: first}})

	require.NotNil(t, m.ctx.Draft)
	assert.Equal(t, "lamp.png", m.ctx.Draft.ImageURL)
	assert.Equal(t, preview, m.ctx.UI.ProductDialog.Preview)
	assert.Empty(t, rec.errors)

	m.handleEvent(Event{Type: EventUIUploadImage, Payload: ImageFilePayload{Name: "b.png", Data: []byte("b")}})
	waitAsync(t, m)

	assert.Equal(t, []string{
		fmt.Sprintf("upload a.png %d", first),
		fmt.Sprintf("upload b.png %d", m.ctx.DraftGen),
	}, rec.snapshot())
}

func TestUploadImage_UnsupportedExtensionRejected(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)
	m.handleEvent(Event{Type: EventUINewProduct})

	m.handleEvent(Event{Type: EventUIUploadImage, Payload: ImageFilePayload{Name: "notes.txt"}})
	waitAsync(t, m)

	assert.Equal(t, []string{MsgUnsupportedImage}, rec.errors)
	assert.Empty(t, rec.snapshot())
}

func TestDeleteProduct_RequiresConfirmation(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		rec := &recorder{}
		cb := rec.callbacks()
		cb.Confirm = func(message string, _ func()) { rec.add("confirm %s", message) }
		m := newTestMachine(t, cb)
		loggedIn(m, session.RoleVendor)

		m.handleEvent(Event{Type: EventUIDeleteProduct, Payload: ProductPayload{ID: validID}})
		waitAsync(t, m)

		assert.Equal(t, []string{"confirm " + MsgConfirmDelete}, rec.snapshot())
	})

	t.Run("accepted", func(t *testing.T) {
		rec := &recorder{}
		cb := rec.callbacks()
		cb.Confirm = func(_ string, onConfirm func()) { onConfirm() }
		m := newTestMachine(t, cb)
		loggedIn(m, session.RoleVendor)

		m.handleEvent(Event{Type: EventUIDeleteProduct, Payload: ProductPayload{ID: validID}})
		confirmed := <-m.events
		require.Equal(t, EventUIDeleteConfirmed, confirmed.Type)
		m.handleEvent(confirmed)
		waitAsync(t, m)

		assert.Equal(t, []string{"delete " + validID}, rec.snapshot())
	})
}

func TestDeleteProduct_FailureMessage(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleVendor)

	m.handleEvent(Event{Type: EventSysProductDeleteFailure, Payload: ScenarioResultPayload{Kind: ErrorKindServer}})
	assert.Equal(t, []string{MsgDeleteFailed}, rec.errors)
}

func TestPlaceOrder_EmptyAddressRejected(t *testing.T) {
	rec := &recorder{}
	m := newTestMachine(t, rec.callbacks())
	loggedIn(m, session.RoleCustomer)

	m.handleEvent(Event{Type: EventUIPlaceOrder, Payload: AddressPayload{ShippingAddress: "  "}})
	waitAsync(t, m)

	assert.Equal(t, []string{MsgAddressRequired}, rec.errors)
	assert.Empty(t, rec.snapshot())
}

func TestProductsLoaded_StaleCategoryDropped(t *testing.T) {
	m := newTestMachine(t, Callbacks{})
	m.transition(StateLoggedOut)
	m.handleEvent(Event{Type: EventUISelectCategory, Payload: CategoryPayload{Category: "Books"}})

	m.handleEvent(Event{Type: EventSysProductsLoaded, Payload: ProductsPayload{Category: "", Products: []catalog.Product{{ID: "1"}}}})
	assert.Empty(t, m.ctx.Products)

	m.handleEvent(Event{Type: EventSysProductsLoaded, Payload: ProductsPayload{Category: "Books", Products: []catalog.Product{{ID: "2", Category: "Books"}}}})
	require.Len(t, m.ctx.Products, 1)
	assert.Equal(t, "2", m.ctx.Products[0].ID)
}

func TestProductsFailure_ShowsInlineError(t *testing.T) {
	m := newTestMachine(t, Callbacks{})
	m.transition(StateLoggedOut)

	m.handleEvent(Event{Type: EventSysProductsFailure, Payload: ScenarioResultPayload{Kind: ErrorKindNetwork}})

	assert.Equal(t, catalog.MessageLoadFailed, m.ctx.UI.Catalog.ErrorMessage)
	assert.Empty(t, m.ctx.UI.Catalog.Cards)
}
