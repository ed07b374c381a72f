package state

import (
	"time"

	"storefront/client/internal/catalog"
	"storefront/client/internal/config"
	"storefront/client/internal/session"
	"storefront/client/internal/vendor"
)

// ErrorKind описывает тип ошибки, отображаемой пользователю и используемой для логики состояния.
type ErrorKind string

const (
	ErrorKindValidation   ErrorKind = "Validation"
	ErrorKindUnauthorized ErrorKind = "Unauthorized"
	ErrorKindServer       ErrorKind = "Server"
	ErrorKindNetwork      ErrorKind = "Network"
	ErrorKindConfigFailed ErrorKind = "ConfigFailed"
	ErrorKindUnknown      ErrorKind = "Unknown"
)

// View обозначает экран главного окна.
type View string

const (
	ViewCatalog View = "catalog"
	ViewCart    View = "cart"
	ViewOrders  View = "orders"
	ViewVendor  View = "vendor"
	ViewLogin   View = "login"
)

// ErrorInfo описывает ошибку для UI и логов.
type ErrorInfo struct {
	Kind             ErrorKind
	UserMessage      string
	TechnicalMessage string
	OccurredAt       time.Time
}

// ProductDialogState описывает общий диалог добавления и редактирования товара.
type ProductDialogState struct {
	Visible bool
	Title   string
	Form    vendor.Form
	Preview string
	Busy    bool
}

// UIState хранит минимально необходимую информацию для управления UI.
type UIState struct {
	View             View
	StatusText       string
	IsLoggedIn       bool
	UserEmail        string
	ShowVendorLink   bool
	Badge            catalog.Badge
	Catalog          catalog.ProductListView
	Featured         []catalog.ProductCard
	ShowFeatured     bool
	Categories       []string
	SelectedCategory string
	Cart             catalog.CartView
	Orders           catalog.OrdersView
	VendorProducts   catalog.ProductListView
	ProductDialog    ProductDialogState
	LoginInput       string
	PasswordInput    string
	RegisterEmail    string
	RegisterPassword string
	RegisterRole     session.Role
	ShippingAddress  string
	IsLoading        bool
}

// AppContext содержит всё состояние приложения. Изменяется только из петли Machine.
type AppContext struct {
	Config         *config.Config
	AuthToken      string
	User           session.User
	Products       []catalog.Product
	Featured       []catalog.Product
	Category       string
	Cart           *catalog.Cart
	Orders         []catalog.Order
	VendorProducts []catalog.Product
	// Draft не nil, пока открыт диалог товара.
	Draft     *vendor.Draft
	// DraftGen растёт при каждом открытии диалога и отсекает запоздавшие загрузки.
	DraftGen  int
	InFlight  map[string]struct{}
	LastError *ErrorInfo
	UI        UIState
	State     State
}

// NewAppContext создаёт AppContext в состоянии AppStarting.
func NewAppContext(cfg *config.Config) *AppContext {
	return &AppContext{
		Config:   cfg,
		InFlight: make(map[string]struct{}),
		State:    StateAppStarting,
		UI: UIState{
			View:         ViewCatalog,
			RegisterRole: session.RoleCustomer,
			Cart:         catalog.RenderCart(nil, ""),
		},
	}
}

// StaticRoot возвращает префикс для относительных путей картинок.
func (ctx *AppContext) StaticRoot() string {
	if ctx.Config == nil || ctx.Config.StaticRoot == "" {
		return config.DefaultStaticRoot
	}
	return ctx.Config.StaticRoot
}

// FindProduct ищет товар в каталоге и в списке продавца.
func (ctx *AppContext) FindProduct(id string) *catalog.Product {
	for i := range ctx.Products {
		if ctx.Products[i].ID == id {
			return &ctx.Products[i]
		}
	}
	for i := range ctx.VendorProducts {
		if ctx.VendorProducts[i].ID == id {
			return &ctx.VendorProducts[i]
		}
	}
	return nil
}

// LoggedIn сообщает, есть ли действующая сессия.
func (ctx *AppContext) LoggedIn() bool {
	return ctx.State == StateLoggedIn && ctx.AuthToken != ""
}
