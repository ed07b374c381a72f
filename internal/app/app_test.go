package app

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/client/internal/config"
	"storefront/client/internal/devserver"
	"storefront/client/internal/logging"
	"storefront/client/internal/shopclient"
	"storefront/client/internal/state"
	"storefront/client/internal/tokenstore"
)

const (
	mugID = "65f0a1b2c3d4e5f6a7b8c9d0"
	teaID = "65f0a1b2c3d4e5f6a7b8c9d1"
)

// fakeSurface запоминает последний снимок состояния вместо отрисовки.
type fakeSurface struct {
	mu      sync.Mutex
	ui      state.UIState
	state   state.State
	errors  []string
	notices []string
	confirm bool
}

func (f *fakeSurface) Start()       {}
func (f *fakeSurface) RunMainLoop() {}
func (f *fakeSurface) Quit()        {}
func (f *fakeSurface) Shutdown()    {}

func (f *fakeSurface) SetOnStopped(func()) {}

func (f *fakeSurface) WaitAsync(time.Duration) bool { return true }

func (f *fakeSurface) UpdateUI(ctx *state.AppContext) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ui = ctx.UI
	f.ui.Catalog.Cards = append(f.ui.Catalog.Cards[:0:0], ctx.UI.Catalog.Cards...)
	f.ui.Featured = append(f.ui.Featured[:0:0], ctx.UI.Featured...)
	f.ui.Cart.Rows = append(f.ui.Cart.Rows[:0:0], ctx.UI.Cart.Rows...)
	f.state = ctx.State
}

func (f *fakeSurface) ShowModalError(info *state.ErrorInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, info.UserMessage)
}

func (f *fakeSurface) ShowTransientNotice(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, message)
}

func (f *fakeSurface) Confirm(_ string, onConfirm func()) {
	f.mu.Lock()
	ok := f.confirm
	f.mu.Unlock()
	if ok {
		onConfirm()
	}
}

func (f *fakeSurface) snapshot() (state.UIState, state.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ui, f.state
}

func (f *fakeSurface) lastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errors) == 0 {
		return ""
	}
	return f.errors[len(f.errors)-1]
}

func startShop(t *testing.T) string {
	t.Helper()
	cfg := &devserver.Config{
		JWTSecret: "test-secret",
		UploadDir: t.TempDir(),
		AuthRPS:   1000,
		AuthBurst: 1000,
		Users: []devserver.SeedUser{
			{Email: "shop@example.com", Password: "pw", Role: "vendor"},
			{Email: "buyer@example.com", Password: "pw", Role: "customer"},
		},
	}
	require.NoError(t, cfg.Normalize())
	store := devserver.NewStore(nil)
	store.Seed([]devserver.ProductSeed{
		{ID: mugID, Name: "Mug", Price: 10, Stock: 3, Category: "Kitchen", VendorEmail: "shop@example.com"},
		{ID: teaID, Name: "Tea", Price: 5, Stock: 20, Category: "Food", VendorEmail: "shop@example.com"},
	})
	server := devserver.NewServer(cfg, store, nil)
	require.NoError(t, server.SeedUsers())
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func newTestApp(t *testing.T, serverURL string, store tokenstore.Store) (*Application, *fakeSurface) {
	t.Helper()
	cfg := &config.Config{
		ServerURL:  serverURL,
		APIPrefix:  "/api",
		StaticRoot: "/static/images/",
		Timeout:    5 * time.Second,
	}
	surface := &fakeSurface{}
	a, err := newApplication(cfg, logging.Discard(), store, func(*Application) Surface { return surface })
	require.NoError(t, err)
	t.Cleanup(a.Stop)
	return a, surface
}

func forgedToken(t *testing.T, email, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   email,
		"email": email,
		"role":  role,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	raw, err := token.SignedString([]byte("not-the-server-secret"))
	require.NoError(t, err)
	return raw
}

func TestBuildFailurePayload(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		kind    state.ErrorKind
		message string
	}{
		{name: "nil", err: nil, kind: state.ErrorKindUnknown},
		{name: "plain", err: errors.New("boom"), kind: state.ErrorKindUnknown},
		{name: "deadline", err: fmt.Errorf("get: %w", context.DeadlineExceeded), kind: state.ErrorKindNetwork},
		{
			name:    "server",
			err:     &shopclient.Error{Op: "cart.add", Kind: state.ErrorKindServer, Status: 400, Message: "Not enough stock available", Err: errors.New("unexpected status 400")},
			kind:    state.ErrorKindServer,
			message: "Not enough stock available",
		},
		{
			name: "unauthorized keeps own message",
			err:  &shopclient.Error{Op: "cart.get", Kind: state.ErrorKindUnauthorized, Status: 401, Message: "Token has expired or is invalid", Err: errors.New("unauthorized")},
			kind: state.ErrorKindUnauthorized,
		},
		{
			name: "network",
			err:  &shopclient.Error{Op: "products.list", Kind: state.ErrorKindNetwork, Err: errors.New("connection refused")},
			kind: state.ErrorKindNetwork,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := buildFailurePayload(tc.err)
			assert.Equal(t, tc.kind, payload.Kind)
			assert.Equal(t, tc.message, payload.Message)
			if tc.err != nil {
				assert.NotEmpty(t, payload.TechnicalMessage)
			}
		})
	}
}

func TestLaunchLoadsCatalogLoggedOut(t *testing.T) {
	a, surface := newTestApp(t, startShop(t), tokenstore.NewMemory(""))
	require.NoError(t, a.Run())

	require.Eventually(t, func() bool {
		ui, st := surface.snapshot()
		return st == state.StateLoggedOut && len(ui.Catalog.Cards) == 2 && len(ui.Featured) == 2
	}, 3*time.Second, 10*time.Millisecond)

	ui, _ := surface.snapshot()
	assert.False(t, ui.IsLoggedIn)
	assert.Equal(t, []string{"Food", "Kitchen"}, ui.Categories)
}

func TestLoginThenAddToCart(t *testing.T) {
	store := tokenstore.NewMemory("")
	a, surface := newTestApp(t, startShop(t), store)
	require.NoError(t, a.Run())
	require.Eventually(t, func() bool {
		_, st := surface.snapshot()
		return st == state.StateLoggedOut
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, a.dispatch(state.Event{
		Type:    state.EventUIClickLogin,
		Payload: state.CredentialsPayload{Email: "buyer@example.com", Password: "pw"},
	}))
	require.Eventually(t, func() bool {
		ui, st := surface.snapshot()
		return st == state.StateLoggedIn && ui.UserEmail == "buyer@example.com"
	}, 3*time.Second, 10*time.Millisecond)

	token, err := store.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	require.NoError(t, a.dispatch(state.Event{Type: state.EventUIAddToCart, Payload: state.ProductPayload{ID: mugID}}))
	require.Eventually(t, func() bool {
		ui, _ := surface.snapshot()
		return ui.Badge.Count == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestLoginRejectedShowsServerMessage(t *testing.T) {
	a, surface := newTestApp(t, startShop(t), tokenstore.NewMemory(""))
	require.NoError(t, a.Run())
	require.Eventually(t, func() bool {
		_, st := surface.snapshot()
		return st == state.StateLoggedOut
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, a.dispatch(state.Event{
		Type:    state.EventUIClickLogin,
		Payload: state.CredentialsPayload{Email: "buyer@example.com", Password: "wrong"},
	}))
	require.Eventually(t, func() bool {
		return surface.lastError() == "Invalid email or password"
	}, 3*time.Second, 10*time.Millisecond)
	_, st := surface.snapshot()
	assert.Equal(t, state.StateLoggedOut, st)
}

func TestRejectedTokenPurgesSession(t *testing.T) {
	store := tokenstore.NewMemory(forgedToken(t, "buyer@example.com", "customer"))
	a, surface := newTestApp(t, startShop(t), store)
	require.NoError(t, a.Run())

	require.Eventually(t, func() bool {
		token, _ := store.Load()
		_, st := surface.snapshot()
		return token == "" && st == state.StateLoggedOut
	}, 3*time.Second, 10*time.Millisecond)

	ui, _ := surface.snapshot()
	assert.False(t, ui.IsLoggedIn)
	assert.Empty(t, ui.UserEmail)
}

func TestFetchAssetResolvesStaticPath(t *testing.T) {
	a, _ := newTestApp(t, startShop(t), tokenstore.NewMemory(""))
	_, err := a.fetchAsset("/static/images/missing.png")
	assert.Error(t, err)
}
