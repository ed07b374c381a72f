package shopclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"storefront/client/internal/catalog"
	"storefront/client/internal/logging"
	"storefront/client/internal/state"
	"storefront/client/internal/vendor"
)

// Client инкапсулирует HTTP-взаимодействия с REST API магазина.
type Client struct {
	apiURL         *url.URL
	siteURL        *url.URL
	httpClient     *http.Client
	logger         *logging.Logger
	onUnauthorized func(op string)
}

// Options позволяет переопределить зависимости клиента.
type Options struct {
	HTTPClient *http.Client
	Logger     *logging.Logger
	Timeout    time.Duration
	// OnUnauthorized вызывается один раз на каждый ответ 401 авторизованного запроса.
	OnUnauthorized func(op string)
}

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 64 << 10
	maxAssetSize   = 10 << 20
)

// New создаёт клиент. apiBaseURL, корень API, например http://localhost:5000/api/.
func New(apiBaseURL string, opts Options) (*Client, error) {
	if apiBaseURL == "" {
		return nil, fmt.Errorf("apiBaseURL is empty")
	}
	parsed, err := url.Parse(apiBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse apiBaseURL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("apiBaseURL %q is not absolute", apiBaseURL)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	site := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/"}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		apiURL:         parsed,
		siteURL:        site,
		httpClient:     client,
		logger:         opts.Logger,
		onUnauthorized: opts.OnUnauthorized,
	}, nil
}

// LoginResult содержит ответ /auth/login.
type LoginResult struct {
	Token string
	Email string
	Role  string
}

// Login вызывает POST /auth/login.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	const op = "Login"
	var body LoginResponse
	if err := c.callJSON(ctx, op, http.MethodPost, "auth/login", "", LoginRequest{Email: email, Password: password}, &body); err != nil {
		return LoginResult{}, err
	}
	if strings.TrimSpace(body.AccessToken) == "" {
		return LoginResult{}, &Error{Op: op, Kind: state.ErrorKindServer, Status: http.StatusOK, Err: errors.New("empty access token")}
	}
	return LoginResult{Token: body.AccessToken, Email: body.Email, Role: body.Role}, nil
}

// Register вызывает POST /auth/register и возвращает сообщение сервера.
func (c *Client) Register(ctx context.Context, email, password, role string) (string, error) {
	const op = "Register"
	var body MessageResponse
	payload := RegisterRequest{Email: email, Password: password, Role: role}
	if err := c.callJSON(ctx, op, http.MethodPost, "auth/register", "", payload, &body); err != nil {
		return "", err
	}
	return body.Message, nil
}

// ListProducts вызывает GET /products, опционально с фильтром категории.
func (c *Client) ListProducts(ctx context.Context, category string) ([]catalog.Product, error) {
	const op = "ListProducts"
	endpoint := "products"
	if category = strings.TrimSpace(category); category != "" {
		endpoint += "?" + url.Values{"category": {category}}.Encode()
	}
	var products []catalog.Product
	if err := c.callJSON(ctx, op, http.MethodGet, endpoint, "", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// FeaturedProducts вызывает GET /products/featured.
func (c *Client) FeaturedProducts(ctx context.Context) ([]catalog.Product, error) {
	const op = "FeaturedProducts"
	var products []catalog.Product
	if err := c.callJSON(ctx, op, http.MethodGet, "products/featured", "", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct вызывает GET /products/{id}.
func (c *Client) GetProduct(ctx context.Context, authToken, id string) (catalog.Product, error) {
	const op = "GetProduct"
	id = strings.TrimSpace(id)
	if id == "" {
		return catalog.Product{}, &Error{Op: op, Kind: state.ErrorKindValidation, Err: errors.New("product id is empty")}
	}
	var product catalog.Product
	if err := c.callJSON(ctx, op, http.MethodGet, "products/"+url.PathEscape(id), authToken, nil, &product); err != nil {
		return catalog.Product{}, err
	}
	return product, nil
}

// SaveProduct создаёт (POST /products) или обновляет (PUT /products/{id}) товар черновика.
func (c *Client) SaveProduct(ctx context.Context, authToken string, draft vendor.Draft) error {
	const op = "SaveProduct"
	payload, err := draft.BuildPayload()
	if err != nil {
		return &Error{Op: op, Kind: state.ErrorKindValidation, Err: err}
	}
	method, endpoint := draft.SaveTarget()
	return c.callJSON(ctx, op, method, endpoint, authToken, payload, nil)
}

// DeleteProduct вызывает DELETE /products/{id}.
func (c *Client) DeleteProduct(ctx context.Context, authToken, id string) error {
	const op = "DeleteProduct"
	id = strings.TrimSpace(id)
	if id == "" {
		return &Error{Op: op, Kind: state.ErrorKindValidation, Err: errors.New("product id is empty")}
	}
	return c.callJSON(ctx, op, http.MethodDelete, "products/"+url.PathEscape(id), authToken, nil, nil)
}

// UploadImage отправляет файл multipart-полем image на /products/upload-image и возвращает image_url.
func (c *Client) UploadImage(ctx context.Context, authToken, filename string, content io.Reader) (string, error) {
	const op = "UploadImage"
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	part, err := writer.CreateFormFile("image", path.Base(filename))
	if err != nil {
		return "", wrapError(op, state.ErrorKindValidation, err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", wrapError(op, state.ErrorKindValidation, err)
	}
	if err := writer.Close(); err != nil {
		return "", wrapError(op, state.ErrorKindValidation, err)
	}
	var body UploadResponse
	if err := c.call(ctx, op, http.MethodPost, "products/upload-image", authToken, buf, writer.FormDataContentType(), &body); err != nil {
		return "", err
	}
	if strings.TrimSpace(body.ImageURL) == "" {
		return "", &Error{Op: op, Kind: state.ErrorKindServer, Status: http.StatusOK, Err: errors.New("empty image_url")}
	}
	return body.ImageURL, nil
}

// GetCart вызывает GET /cart/.
func (c *Client) GetCart(ctx context.Context, authToken string) (*catalog.Cart, error) {
	return c.cartCall(ctx, "GetCart", http.MethodGet, authToken, nil)
}

// AddToCart вызывает POST /cart/.
func (c *Client) AddToCart(ctx context.Context, authToken, productID string, quantity int) (*catalog.Cart, error) {
	return c.cartCall(ctx, "AddToCart", http.MethodPost, authToken, CartItemRequest{ProductID: productID, Quantity: quantity})
}

// UpdateCartItem вызывает PUT /cart/ с новым количеством.
func (c *Client) UpdateCartItem(ctx context.Context, authToken, productID string, quantity int) (*catalog.Cart, error) {
	return c.cartCall(ctx, "UpdateCartItem", http.MethodPut, authToken, CartItemRequest{ProductID: productID, Quantity: quantity})
}

// RemoveCartItem вызывает DELETE /cart/ с телом {product_id}.
func (c *Client) RemoveCartItem(ctx context.Context, authToken, productID string) (*catalog.Cart, error) {
	return c.cartCall(ctx, "RemoveCartItem", http.MethodDelete, authToken, CartItemRequest{ProductID: productID})
}

func (c *Client) cartCall(ctx context.Context, op, method, authToken string, payload any) (*catalog.Cart, error) {
	var cart catalog.Cart
	if err := c.callJSON(ctx, op, method, "cart/", authToken, payload, &cart); err != nil {
		return nil, err
	}
	cart.Normalize()
	return &cart, nil
}

// PlaceOrder вызывает POST /orders/.
func (c *Client) PlaceOrder(ctx context.Context, authToken, shippingAddress string) (string, error) {
	const op = "PlaceOrder"
	var body MessageResponse
	if err := c.callJSON(ctx, op, http.MethodPost, "orders/", authToken, OrderRequest{ShippingAddress: shippingAddress}, &body); err != nil {
		return "", err
	}
	return body.Message, nil
}

// ListOrders вызывает GET /orders/.
func (c *Client) ListOrders(ctx context.Context, authToken string) ([]catalog.Order, error) {
	const op = "ListOrders"
	var orders []catalog.Order
	if err := c.callJSON(ctx, op, http.MethodGet, "orders/", authToken, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// FetchAsset скачивает статический файл (картинку) по пути сайта или абсолютному URL.
func (c *Client) FetchAsset(ctx context.Context, assetURL string) ([]byte, error) {
	const op = "FetchAsset"
	rel, err := url.Parse(assetURL)
	if err != nil {
		return nil, wrapError(op, state.ErrorKindValidation, err)
	}
	full := c.siteURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full.String(), nil)
	if err != nil {
		return nil, wrapError(op, state.ErrorKindValidation, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapError(op, state.ErrorKindNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Op: op, Kind: state.ErrorKindServer, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize))
	if err != nil {
		return nil, wrapError(op, state.ErrorKindNetwork, err)
	}
	return data, nil
}

func (c *Client) callJSON(ctx context.Context, op, method, endpoint, authToken string, payload any, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return wrapError(op, state.ErrorKindValidation, err)
		}
		body = buf
		contentType = "application/json"
	}
	return c.call(ctx, op, method, endpoint, authToken, body, contentType, out)
}

// call выполняет запрос и раскладывает ответ по категориям ошибок. Здесь же
// единственный перехватчик 401 для авторизованных запросов.
func (c *Client) call(ctx context.Context, op, method, endpoint, authToken string, body io.Reader, contentType string, out any) error {
	resp, err := c.do(ctx, method, endpoint, authToken, body, contentType)
	if err != nil {
		c.logger.Errorf("%s: %s %s failed: %v", op, method, endpoint, err)
		return wrapError(op, state.ErrorKindNetwork, err)
	}
	defer resp.Body.Close()
	c.logger.Debugf("%s: %s %s -> %d", op, method, endpoint, resp.StatusCode)

	if resp.StatusCode == http.StatusUnauthorized && authToken != "" {
		if c.onUnauthorized != nil {
			c.onUnauthorized(op)
		}
		return &Error{Op: op, Kind: state.ErrorKindUnauthorized, Status: resp.StatusCode, Message: readErrorMessage(resp.Body), Err: errors.New("unauthorized")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := readErrorMessage(resp.Body)
		return &Error{Op: op, Kind: state.ErrorKindServer, Status: resp.StatusCode, Message: message, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Kind: state.ErrorKindServer, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint, authToken string, body io.Reader, contentType string) (*http.Response, error) {
	rel, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	full := c.apiURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, full.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	return c.httpClient.Do(req)
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload ErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Error); msg != "" {
			return msg
		}
		return strings.TrimSpace(payload.Message)
	}
	return ""
}
