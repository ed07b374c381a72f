package devserver

import (
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"storefront/client/internal/catalog"
)

const (
	roleCustomer = "customer"
	roleVendor   = "vendor"

	orderStatusPending = "pending"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrProductNotFound    = errors.New("product not found")
	ErrNotOwner           = errors.New("product belongs to another vendor")
	ErrNotInCart          = errors.New("item not found in cart")
	ErrInsufficientStock  = errors.New("not enough stock available")
	ErrCartEmpty          = errors.New("cart is empty")
)

// Account is a registered user.
type Account struct {
	Email        string
	Role         string
	passwordHash []byte
}

// ProductInput holds the writable product fields.
type ProductInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Stock       *int     `json:"stock"`
	Category    string   `json:"category"`
	Images      []string `json:"images"`
}

type cartLine struct {
	productID string
	quantity  int
}

// Store keeps all dev server data in memory.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*Account
	products map[string]*catalog.Product
	order    []string
	carts    map[string][]cartLine
	cartIDs  map[string]string
	orders   []catalog.Order
	now      func() time.Time
}

// NewStore creates an empty store. now may be nil.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		users:    make(map[string]*Account),
		products: make(map[string]*catalog.Product),
		carts:    make(map[string][]cartLine),
		cartIDs:  make(map[string]string),
		now:      now,
	}
}

func newObjectID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:12])
}

func validObjectID(id string) bool {
	if len(id) != 24 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

func validRole(role string) bool {
	return role == roleCustomer || role == roleVendor
}

// AddUser registers an account with a bcrypt password hash.
func (s *Store) AddUser(email, password, role string) error {
	email = strings.TrimSpace(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		return ErrUserExists
	}
	s.users[email] = &Account{Email: email, Role: role, passwordHash: hash}
	return nil
}

// Authenticate checks the credentials and returns the account.
func (s *Store) Authenticate(email, password string) (Account, error) {
	s.mu.RLock()
	acc, ok := s.users[strings.TrimSpace(email)]
	s.mu.RUnlock()
	if !ok {
		return Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return *acc, nil
}

// Seed inserts products loaded from seed files.
func (s *Store) Seed(seeds []ProductSeed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seed := range seeds {
		id := seed.ID
		if id == "" {
			id = newObjectID()
		}
		p := catalog.Product{
			ID:          id,
			Name:        seed.Name,
			Description: seed.Description,
			Price:       seed.Price,
			Stock:       seed.Stock,
			Category:    seed.Category,
			Images:      append([]string{}, seed.Images...),
			VendorEmail: seed.VendorEmail,
		}
		s.insertLocked(p)
	}
}

func (s *Store) insertLocked(p catalog.Product) {
	if _, exists := s.products[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.products[p.ID] = &p
}

// ListProducts returns products in insertion order, optionally filtered by category.
func (s *Store) ListProducts(category string) []catalog.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Product, 0, len(s.order))
	for _, id := range s.order {
		p := s.products[id]
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, copyProduct(p))
	}
	return out
}

// Featured returns the first limit products.
func (s *Store) Featured(limit int) []catalog.Product {
	all := s.ListProducts("")
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Product returns a single product.
func (s *Store) Product(id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, ErrProductNotFound
	}
	return copyProduct(p), nil
}

// CreateProduct stores a new product owned by vendorEmail.
func (s *Store) CreateProduct(vendorEmail string, in ProductInput) catalog.Product {
	p := catalog.Product{
		ID:          newObjectID(),
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Images:      append([]string{}, in.Images...),
		VendorEmail: vendorEmail,
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(p)
	return copyProduct(&p)
}

// UpdateProduct applies in to the product if vendorEmail owns it.
func (s *Store) UpdateProduct(id, vendorEmail string, in ProductInput) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, ErrProductNotFound
	}
	if p.VendorEmail != vendorEmail {
		return catalog.Product{}, ErrNotOwner
	}
	if in.Name != "" {
		p.Name = in.Name
	}
	p.Description = in.Description
	p.Category = in.Category
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Images != nil {
		p.Images = append([]string{}, in.Images...)
	}
	return copyProduct(p), nil
}

// DeleteProduct removes the product if vendorEmail owns it.
func (s *Store) DeleteProduct(id, vendorEmail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return ErrProductNotFound
	}
	if p.VendorEmail != vendorEmail {
		return ErrNotOwner
	}
	delete(s.products, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Cart returns the user's cart with every item carrying its product.
func (s *Store) Cart(email string) catalog.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartLocked(email)
}

func (s *Store) cartLocked(email string) catalog.Cart {
	id, ok := s.cartIDs[email]
	if !ok {
		id = newObjectID()
		s.cartIDs[email] = id
	}
	cart := catalog.Cart{ID: id, Items: []catalog.CartItem{}}
	for _, line := range s.carts[email] {
		item := catalog.CartItem{ProductID: line.productID, Quantity: line.quantity}
		if p, ok := s.products[line.productID]; ok {
			prod := copyProduct(p)
			item.Product = &prod
		}
		cart.Items = append(cart.Items, item)
	}
	return cart
}

// AddToCart sets the quantity of a product in the cart, adding the line if missing.
func (s *Store) AddToCart(email, productID string, quantity int) (catalog.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return catalog.Cart{}, ErrProductNotFound
	}
	if p.Stock < quantity {
		return catalog.Cart{}, ErrInsufficientStock
	}
	lines := s.carts[email]
	for i := range lines {
		if lines[i].productID == productID {
			lines[i].quantity = quantity
			return s.cartLocked(email), nil
		}
	}
	s.carts[email] = append(lines, cartLine{productID: productID, quantity: quantity})
	return s.cartLocked(email), nil
}

// UpdateCartItem changes the quantity of an existing line.
func (s *Store) UpdateCartItem(email, productID string, quantity int) (catalog.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return catalog.Cart{}, ErrProductNotFound
	}
	if p.Stock < quantity {
		return catalog.Cart{}, ErrInsufficientStock
	}
	lines := s.carts[email]
	for i := range lines {
		if lines[i].productID == productID {
			lines[i].quantity = quantity
			return s.cartLocked(email), nil
		}
	}
	return catalog.Cart{}, ErrNotInCart
}

// RemoveCartItem drops a line from the cart. Missing lines are ignored.
func (s *Store) RemoveCartItem(email, productID string) catalog.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.carts[email]
	kept := lines[:0]
	for _, line := range lines {
		if line.productID != productID {
			kept = append(kept, line)
		}
	}
	s.carts[email] = kept
	return s.cartLocked(email)
}

// PlaceOrder turns the cart into a pending order, decrements stock and clears the cart.
func (s *Store) PlaceOrder(email, address string) (catalog.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := s.carts[email]
	if len(lines) == 0 {
		return catalog.Order{}, ErrCartEmpty
	}

	order := catalog.Order{
		UserEmail:       email,
		Items:           make([]catalog.CartItem, 0, len(lines)),
		Status:          orderStatusPending,
		ShippingAddress: address,
		CreatedAt:       s.now().UTC().Format(time.RFC3339),
	}
	for _, line := range lines {
		p, ok := s.products[line.productID]
		if !ok {
			continue
		}
		order.Items = append(order.Items, catalog.CartItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  line.quantity,
		})
		order.TotalAmount += p.Price * float64(line.quantity)
		p.Stock -= line.quantity
		if p.Stock < 0 {
			p.Stock = 0
		}
	}
	s.orders = append(s.orders, order)
	delete(s.carts, email)
	return order, nil
}

// Orders returns the customer's own orders, or for a vendor the orders
// that contain at least one of their products. Newest first.
func (s *Store) Orders(email, role string) []catalog.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Order, 0)
	for _, o := range s.orders {
		if role == roleVendor {
			if s.containsVendorProductLocked(o, email) {
				out = append(out, o)
			}
			continue
		}
		if o.UserEmail == email {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out
}

func (s *Store) containsVendorProductLocked(o catalog.Order, vendorEmail string) bool {
	for _, item := range o.Items {
		if p, ok := s.products[item.ProductID]; ok && p.VendorEmail == vendorEmail {
			return true
		}
	}
	return false
}

func copyProduct(p *catalog.Product) catalog.Product {
	out := *p
	out.Images = append([]string{}, p.Images...)
	return out
}
