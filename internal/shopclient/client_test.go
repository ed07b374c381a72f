package shopclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/client/internal/devserver"
	"storefront/client/internal/state"
	"storefront/client/internal/vendor"
)

const (
	mugID = "64b7f0c2a1b2c3d4e5f60001"
	teaID = "64b7f0c2a1b2c3d4e5f60002"
)

type recordedRequest struct {
	Method        string
	Path          string
	RawQuery      string
	Authorization string
	ContentType   string
	Body          string
}

// stubServer отвечает заранее заданным статусом и телом и запоминает запросы.
type stubServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

func (s *stubServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.requests = append(s.requests, recordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		RawQuery:      r.URL.RawQuery,
		Authorization: r.Header.Get("Authorization"),
		ContentType:   r.Header.Get("Content-Type"),
		Body:          string(data),
	})
	status, body := s.status, s.body
	s.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (s *stubServer) last(t *testing.T) recordedRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests)
	return s.requests[len(s.requests)-1]
}

func newStub(t *testing.T, status int, body string) (*Client, *stubServer, *int) {
	t.Helper()
	stub := &stubServer{status: status, body: body}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	calls := 0
	client, err := New(srv.URL+"/api", Options{OnUnauthorized: func(string) { calls++ }})
	require.NoError(t, err)
	return client, stub, &calls
}

func startDevServer(t *testing.T) *Client {
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

	client, err := New(srv.URL+"/api/", Options{})
	require.NoError(t, err)
	return client
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("localhost:5000/api", Options{})
	assert.Error(t, err)
	_, err = New("", Options{})
	assert.Error(t, err)
}

func TestBearerHeaderAndEndpoints(t *testing.T) {
	client, stub, _ := newStub(t, http.StatusOK, `{"_id":"c1","items":[]}`)

	_, err := client.GetCart(context.Background(), "tkn")
	require.NoError(t, err)
	req := stub.last(t)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/cart/", req.Path)
	assert.Equal(t, "Bearer tkn", req.Authorization)

	_, err = client.RemoveCartItem(context.Background(), "tkn", mugID)
	require.NoError(t, err)
	req = stub.last(t)
	assert.Equal(t, http.MethodDelete, req.Method)
	assert.JSONEq(t, `{"product_id":"`+mugID+`"}`, req.Body)
}

func TestListProductsCategoryQuery(t *testing.T) {
	client, stub, _ := newStub(t, http.StatusOK, `[]`)

	_, err := client.ListProducts(context.Background(), "Home & Garden")
	require.NoError(t, err)
	req := stub.last(t)
	assert.Equal(t, "/api/products", req.Path)
	assert.Equal(t, "category=Home+%26+Garden", req.RawQuery)
	assert.Empty(t, req.Authorization)

	_, err = client.ListProducts(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, stub.last(t).RawQuery)
}

func TestSaveProductChoosesMethod(t *testing.T) {
	client, stub, _ := newStub(t, http.StatusOK, `{}`)
	draft := vendor.Draft{Form: vendor.Form{Name: "Mug", Price: "10", Stock: "2"}}

	require.NoError(t, client.SaveProduct(context.Background(), "tkn", draft))
	req := stub.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/products", req.Path)
	assert.JSONEq(t, `{"name":"Mug","description":"","price":10,"category":"","stock":2,"images":[]}`, req.Body)

	draft.ProductID = mugID
	draft.ImageURL = "/static/images/mug.png"
	require.NoError(t, client.SaveProduct(context.Background(), "tkn", draft))
	req = stub.last(t)
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/api/products/"+mugID, req.Path)
	assert.Contains(t, req.Body, `"images":["/static/images/mug.png"]`)
}

func TestSaveProductInvalidDraftSkipsRequest(t *testing.T) {
	client, stub, _ := newStub(t, http.StatusOK, `{}`)

	err := client.SaveProduct(context.Background(), "tkn", vendor.Draft{Form: vendor.Form{Name: "Mug", Price: "abc", Stock: "1"}})
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, state.ErrorKindValidation, cErr.Kind)
	assert.ErrorIs(t, err, vendor.ErrInvalidPrice)
	assert.Empty(t, stub.requests)
}

func TestUnauthorizedInterceptor(t *testing.T) {
	client, _, calls := newStub(t, http.StatusUnauthorized, `{"error":"Token has expired or is invalid"}`)

	_, err := client.ListOrders(context.Background(), "tkn")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, 1, *calls)

	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "ListOrders", cErr.Op)
	assert.Equal(t, http.StatusUnauthorized, cErr.Status)
}

func TestLoginUnauthorizedIsNotIntercepted(t *testing.T) {
	client, _, calls := newStub(t, http.StatusUnauthorized, `{"error":"Invalid email or password"}`)

	_, err := client.Login(context.Background(), "a@b.c", "bad")
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, state.ErrorKindServer, cErr.Kind)
	assert.Equal(t, "Invalid email or password", cErr.UserMessage("Login failed"))
	assert.Equal(t, 0, *calls)
}

func TestServerMessageIsKept(t *testing.T) {
	client, _, _ := newStub(t, http.StatusBadRequest, `{"error":"Not enough stock available"}`)

	_, err := client.AddToCart(context.Background(), "tkn", mugID, 5)
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, state.ErrorKindServer, cErr.Kind)
	assert.Equal(t, "Not enough stock available", cErr.Message)
}

func TestMessageFieldFallback(t *testing.T) {
	client, _, _ := newStub(t, http.StatusInternalServerError, `{"message":"boom"}`)

	_, err := client.FeaturedProducts(context.Background())
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "boom", cErr.Message)
}

func TestNetworkErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := New(url+"/api/", Options{Timeout: time.Second})
	require.NoError(t, err)
	_, err = client.ListProducts(context.Background(), "")
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, state.ErrorKindNetwork, cErr.Kind)
}

func TestTimeoutIsNetworkError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	client, err := New(srv.URL+"/api/", Options{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	_, err = client.FeaturedProducts(context.Background())
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, state.ErrorKindNetwork, cErr.Kind)
}

func TestUploadImageMultipart(t *testing.T) {
	client, stub, _ := newStub(t, http.StatusOK, `{"image_url":"/static/images/1_mug.png"}`)

	url, err := client.UploadImage(context.Background(), "tkn", "/home/me/Pictures/mug.png", strings.NewReader("data"))
	require.NoError(t, err)
	assert.Equal(t, "/static/images/1_mug.png", url)

	req := stub.last(t)
	assert.Equal(t, "/api/products/upload-image", req.Path)
	assert.True(t, strings.HasPrefix(req.ContentType, "multipart/form-data; boundary="))
	assert.Contains(t, req.Body, `name="image"; filename="mug.png"`)
}

func TestUploadImageEmptyURL(t *testing.T) {
	client, _, _ := newStub(t, http.StatusOK, `{}`)

	_, err := client.UploadImage(context.Background(), "tkn", "mug.png", strings.NewReader("data"))
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, state.ErrorKindServer, cErr.Kind)
}

func TestGetCartNormalizesNestedProduct(t *testing.T) {
	client, _, _ := newStub(t, http.StatusOK, `{"_id":"c1","items":[{"quantity":2,"product":{"_id":"p1","name":"Mug","price":10,"stock":4}}]}`)

	cart, err := client.GetCart(context.Background(), "tkn")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "p1", cart.Items[0].ProductID)
	assert.Equal(t, "Mug", cart.Items[0].Name)
	assert.Equal(t, 4, cart.Items[0].Stock)
}

func TestShoppingFlowAgainstDevServer(t *testing.T) {
	client := startDevServer(t)
	ctx := context.Background()

	msg, err := client.Register(ctx, "new@example.com", "pw", "customer")
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully", msg)

	login, err := client.Login(ctx, "new@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "customer", login.Role)

	products, err := client.ListProducts(ctx, "Kitchen")
	require.NoError(t, err)
	require.Len(t, products, 1)

	cart, err := client.AddToCart(ctx, login.Token, mugID, 1)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "Mug", cart.Items[0].Name)

	cart, err = client.UpdateCartItem(ctx, login.Token, mugID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	msg, err = client.PlaceOrder(ctx, login.Token, "1 Main St")
	require.NoError(t, err)
	assert.Equal(t, "Order created successfully", msg)

	orders, err := client.ListOrders(ctx, login.Token)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.InDelta(t, 20.0, orders[0].TotalAmount, 1e-9)

	cart, err = client.GetCart(ctx, login.Token)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestVendorFlowAgainstDevServer(t *testing.T) {
	client := startDevServer(t)
	ctx := context.Background()

	login, err := client.Login(ctx, "shop@example.com", "pw")
	require.NoError(t, err)

	imageURL, err := client.UploadImage(ctx, login.Token, "bowl.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	data, err := client.FetchAsset(ctx, imageURL)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	draft := vendor.Draft{Form: vendor.Form{Name: "Bowl", Price: "7.5", Stock: "4", Category: "Kitchen"}}
	draft = draft.WithImage(imageURL, "/static/images/")
	require.NoError(t, client.SaveProduct(ctx, login.Token, draft))

	products, err := client.ListProducts(ctx, "Kitchen")
	require.NoError(t, err)
	require.Len(t, products, 2)
	bowl := products[1]
	assert.Equal(t, []string{imageURL}, bowl.Images)

	edit := vendor.DraftFromProduct(bowl, "/static/images/")
	edit.Form.Price = "8"
	require.NoError(t, client.SaveProduct(ctx, login.Token, edit))
	updated, err := client.GetProduct(ctx, login.Token, bowl.ID)
	require.NoError(t, err)
	assert.Equal(t, 8.0, updated.Price)

	require.NoError(t, client.DeleteProduct(ctx, login.Token, bowl.ID))
	_, err = client.GetProduct(ctx, login.Token, bowl.ID)
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, http.StatusNotFound, cErr.Status)
}

func TestCustomerCannotAddProduct(t *testing.T) {
	client := startDevServer(t)
	ctx := context.Background()

	login, err := client.Login(ctx, "buyer@example.com", "pw")
	require.NoError(t, err)

	err = client.SaveProduct(ctx, login.Token, vendor.Draft{Form: vendor.Form{Name: "Bowl", Price: "1", Stock: "1"}})
	var cErr *Error
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, http.StatusForbidden, cErr.Status)
	assert.Equal(t, "Only vendors can add products", cErr.UserMessage("Failed to save product"))
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
}
