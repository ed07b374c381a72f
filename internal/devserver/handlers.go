package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storefront/client/internal/catalog"
)

const maxUploadSize = 16 << 20

var allowedUploadExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

type cartRequest struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

type orderRequest struct {
	ShippingAddress string `json:"shipping_address"`
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// handleRegister handles POST /auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || req.Role == "" {
		writeJSONError(w, http.StatusBadRequest, "Email, password and role are required")
		return
	}
	if !validRole(req.Role) {
		writeJSONError(w, http.StatusBadRequest, "Invalid role")
		return
	}

	if err := s.store.AddUser(req.Email, req.Password, req.Role); err != nil {
		if errors.Is(err, ErrUserExists) {
			writeJSONError(w, http.StatusBadRequest, "User already exists")
			return
		}
		s.logger.Errorf("register %s: %v", req.Email, err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.logger.Infof("registered %s as %s", req.Email, req.Role)
	writeMessage(w, http.StatusCreated, "User registered successfully")
}

// handleLogin handles POST /auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	acc, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		s.logger.Warnf("auth failed for %s", req.Email)
		writeJSONError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := issueToken(acc, s.cfg.JWTSecret, s.cfg.TokenLifetime(), s.now())
	if err != nil {
		s.logger.Errorf("failed to sign token: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, Email: acc.Email, Role: acc.Role})
}

// handleListProducts handles GET /products
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	writeJSON(w, http.StatusOK, s.store.ListProducts(category))
}

// handleFeatured handles GET /products/featured
func (s *Server) handleFeatured(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Featured(defaultFeaturedMax))
}

// handleGetProduct handles GET /products/{id}
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !validObjectID(id) {
		writeJSONError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}
	product, err := s.store.Product(id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "Product not found")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// handleCreateProduct handles POST /products
func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	if caller.Role != roleVendor {
		writeJSONError(w, http.StatusForbidden, "Only vendors can add products")
		return
	}

	var in ProductInput
	if err := decodeBody(r, &in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(in.Name) == "" || in.Price == nil || in.Stock == nil {
		writeJSONError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	if msg := validateProductInput(in); msg != "" {
		writeJSONError(w, http.StatusBadRequest, msg)
		return
	}

	product := s.store.CreateProduct(caller.Email, in)
	s.logger.Infof("product %s created by %s", product.ID, caller.Email)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Product added successfully",
		"product": product,
	})
}

// handleUpdateProduct handles PUT /products/{id}
func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if !validObjectID(id) {
		writeJSONError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var in ProductInput
	if err := decodeBody(r, &in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validateProductInput(in); msg != "" {
		writeJSONError(w, http.StatusBadRequest, msg)
		return
	}

	product, err := s.store.UpdateProduct(id, caller.Email, in)
	switch {
	case errors.Is(err, ErrProductNotFound):
		writeJSONError(w, http.StatusNotFound, "Product not found")
		return
	case errors.Is(err, ErrNotOwner):
		writeJSONError(w, http.StatusForbidden, "You can only update your own products")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Product updated successfully",
		"product": product,
	})
}

// handleDeleteProduct handles DELETE /products/{id}
func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if !validObjectID(id) {
		writeJSONError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	err := s.store.DeleteProduct(id, caller.Email)
	switch {
	case errors.Is(err, ErrProductNotFound):
		writeJSONError(w, http.StatusNotFound, "Product not found")
		return
	case errors.Is(err, ErrNotOwner):
		writeJSONError(w, http.StatusForbidden, "You can only delete your own products")
		return
	}
	writeMessage(w, http.StatusOK, "Product deleted successfully")
}

func validateProductInput(in ProductInput) string {
	if in.Price != nil && *in.Price <= 0 {
		return "Price must be a positive number"
	}
	if in.Stock != nil && *in.Stock < 0 {
		return "Stock cannot be negative"
	}
	return ""
}

// handleUploadImage handles POST /products/upload-image
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "No image file provided")
		return
	}
	defer file.Close()

	name := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		writeJSONError(w, http.StatusBadRequest, "No selected file")
		return
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedUploadExtensions[ext]; !ok {
		writeJSONError(w, http.StatusBadRequest, "Invalid file type")
		return
	}

	stored := fmt.Sprintf("%d_%s%s", s.now().Unix(), uuid.NewString()[:8], ext)
	if err := saveUpload(filepath.Join(s.cfg.UploadDir, stored), file); err != nil {
		s.logger.Errorf("failed to store upload %s: %v", name, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to store image")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"image_url": staticImagesPath + stored})
}

func saveUpload(dst string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// handleGetCart handles GET /cart
func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, s.store.Cart(caller.Email))
}

// handleAddToCart handles POST /cart
func (s *Server) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	s.changeCart(w, r, false)
}

// handleUpdateCart handles PUT /cart
func (s *Server) handleUpdateCart(w http.ResponseWriter, r *http.Request) {
	s.changeCart(w, r, true)
}

func (s *Server) changeCart(w http.ResponseWriter, r *http.Request, mustExist bool) {
	caller, _ := IdentityFromContext(r.Context())
	var req cartRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validObjectID(req.ProductID) {
		writeJSONError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 {
		writeJSONError(w, http.StatusBadRequest, "Quantity must be at least 1")
		return
	}

	var (
		cart catalog.Cart
		err  error
	)
	if mustExist {
		cart, err = s.store.UpdateCartItem(caller.Email, req.ProductID, quantity)
	} else {
		cart, err = s.store.AddToCart(caller.Email, req.ProductID, quantity)
	}
	switch {
	case errors.Is(err, ErrProductNotFound):
		writeJSONError(w, http.StatusNotFound, "Product not found")
	case errors.Is(err, ErrInsufficientStock):
		writeJSONError(w, http.StatusBadRequest, "Not enough stock available")
	case errors.Is(err, ErrNotInCart):
		writeJSONError(w, http.StatusNotFound, "Item not found in cart")
	case err != nil:
		s.logger.Errorf("cart update for %s: %v", caller.Email, err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
	default:
		writeJSON(w, http.StatusOK, cart)
	}
}

// handleRemoveFromCart handles DELETE /cart
func (s *Server) handleRemoveFromCart(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	var req cartRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validObjectID(req.ProductID) {
		writeJSONError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}
	writeJSON(w, http.StatusOK, s.store.RemoveCartItem(caller.Email, req.ProductID))
}

// handlePlaceOrder handles POST /orders
func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		writeJSONError(w, http.StatusBadRequest, "Shipping address is required")
		return
	}

	order, err := s.store.PlaceOrder(caller.Email, strings.TrimSpace(req.ShippingAddress))
	if errors.Is(err, ErrCartEmpty) {
		writeJSONError(w, http.StatusBadRequest, "Cart is empty")
		return
	}
	if err != nil {
		s.logger.Errorf("place order for %s: %v", caller.Email, err)
		writeJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.logger.Infof("order placed by %s: %d items, total %.2f", caller.Email, len(order.Items), order.TotalAmount)
	writeMessage(w, http.StatusCreated, "Order created successfully")
}

// handleListOrders handles GET /orders
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, s.store.Orders(caller.Email, caller.Role))
}
