package state

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"storefront/client/internal/catalog"
	"storefront/client/internal/logging"
	"storefront/client/internal/session"
	"storefront/client/internal/vendor"
)

// State описывает состояние сессии приложения.
type State string

const (
	StateAppStarting State = "AppStarting"
	StateLoggedOut   State = "LoggedOut"
	StateLoggedIn    State = "LoggedIn"
	StateExiting     State = "Exiting"
)

// EventType представляет собой тип события из очереди state machine.
type EventType string

const (
	EventUILaunch             EventType = "UI_LAUNCH"
	EventUICredentialsChanged EventType = "UI_CREDENTIALS_CHANGED"
	EventUIClickLogin         EventType = "UI_CLICK_LOGIN"
	EventUIRegisterChanged    EventType = "UI_REGISTER_CHANGED"
	EventUIClickRegister      EventType = "UI_CLICK_REGISTER"
	EventUIClickLogout        EventType = "UI_CLICK_LOGOUT"
	EventUIShowView           EventType = "UI_SHOW_VIEW"
	EventUISelectCategory     EventType = "UI_SELECT_CATEGORY"
	EventUIAddToCart          EventType = "UI_ADD_TO_CART"
	EventUIChangeQuantity     EventType = "UI_CHANGE_QUANTITY"
	EventUIRemoveFromCart     EventType = "UI_REMOVE_FROM_CART"
	EventUIShippingChanged    EventType = "UI_SHIPPING_CHANGED"
	EventUIPlaceOrder         EventType = "UI_PLACE_ORDER"
	EventUINewProduct         EventType = "UI_NEW_PRODUCT"
	EventUIEditProduct        EventType = "UI_EDIT_PRODUCT"
	EventUIDraftChanged       EventType = "UI_DRAFT_CHANGED"
	EventUIUploadImage        EventType = "UI_UPLOAD_IMAGE"
	EventUISaveProduct        EventType = "UI_SAVE_PRODUCT"
	EventUICloseProductDialog EventType = "UI_CLOSE_PRODUCT_DIALOG"
	EventUIDeleteProduct      EventType = "UI_DELETE_PRODUCT"
	EventUIDeleteConfirmed    EventType = "UI_DELETE_CONFIRMED"
	EventUIExit               EventType = "UI_EXIT"

	EventSysAuthSuccess           EventType = "SYS_AUTH_SUCCESS"
	EventSysAuthFailure           EventType = "SYS_AUTH_FAILURE"
	EventSysRegisterSuccess       EventType = "SYS_REGISTER_SUCCESS"
	EventSysRegisterFailure       EventType = "SYS_REGISTER_FAILURE"
	EventSysProductsLoaded        EventType = "SYS_PRODUCTS_LOADED"
	EventSysProductsFailure       EventType = "SYS_PRODUCTS_FAILURE"
	EventSysFeaturedLoaded        EventType = "SYS_FEATURED_LOADED"
	EventSysFeaturedFailure       EventType = "SYS_FEATURED_FAILURE"
	EventSysCartLoaded            EventType = "SYS_CART_LOADED"
	EventSysCartFailure           EventType = "SYS_CART_FAILURE"
	EventSysOrderPlaced           EventType = "SYS_ORDER_PLACED"
	EventSysOrderFailure          EventType = "SYS_ORDER_FAILURE"
	EventSysOrdersLoaded          EventType = "SYS_ORDERS_LOADED"
	EventSysOrdersFailure         EventType = "SYS_ORDERS_FAILURE"
	EventSysVendorProductsLoaded  EventType = "SYS_VENDOR_PRODUCTS_LOADED"
	EventSysVendorProductsFailure EventType = "SYS_VENDOR_PRODUCTS_FAILURE"
	EventSysProductLoaded         EventType = "SYS_PRODUCT_LOADED"
	EventSysProductLoadFailure    EventType = "SYS_PRODUCT_LOAD_FAILURE"
	EventSysImageUploaded         EventType = "SYS_IMAGE_UPLOADED"
	EventSysImageUploadFailure    EventType = "SYS_IMAGE_UPLOAD_FAILURE"
	EventSysProductSaved          EventType = "SYS_PRODUCT_SAVED"
	EventSysProductSaveFailure    EventType = "SYS_PRODUCT_SAVE_FAILURE"
	EventSysProductDeleted        EventType = "SYS_PRODUCT_DELETED"
	EventSysProductDeleteFailure  EventType = "SYS_PRODUCT_DELETE_FAILURE"
	EventSysUnauthorized          EventType = "SYS_UNAUTHORIZED"
	EventSysTaskDone              EventType = "SYS_TASK_DONE"
)

// Event инкапсулирует событие очереди и произвольную полезную нагрузку.
type Event struct {
	Type    EventType
	Payload any
	TS      time.Time
}

// CredentialsPayload передаёт email и пароль из формы входа.
type CredentialsPayload struct {
	Email    string
	Password string
}

// RegisterPayload передаёт поля формы регистрации.
type RegisterPayload struct {
	Email    string
	Password string
	Role     session.Role
}

// ViewPayload переключает экран.
type ViewPayload struct {
	View View
}

// CategoryPayload задаёт фильтр каталога. Пустая строка, все категории.
type CategoryPayload struct {
	Category string
}

// ProductPayload ссылается на товар по ID.
type ProductPayload struct {
	ID string
}

// QuantityPayload содержит новое количество позиции корзины.
type QuantityPayload struct {
	ProductID string
	Quantity  int
}

// AddressPayload содержит адрес доставки.
type AddressPayload struct {
	ShippingAddress string
}

// DraftPayload переносит поля формы товара.
type DraftPayload struct {
	Form vendor.Form
}

// ImageFilePayload содержит выбранный файл картинки.
type ImageFilePayload struct {
	Name string
	Data []byte
	// Draft проставляет машина: поколение черновика, для которого начата загрузка.
	Draft int
}

// AuthSuccessPayload содержит токен и данные пользователя из ответа входа.
type AuthSuccessPayload struct {
	Token string
	Email string
	Role  string
}

// NoticePayload содержит сообщение сервера об успехе.
type NoticePayload struct {
	Message string
}

// ProductsPayload содержит список товаров и фильтр, с которым он запрошен.
type ProductsPayload struct {
	Category string
	Products []catalog.Product
}

// CartOp обозначает операцию, результатом которой стала корзина.
type CartOp string

const (
	CartOpCount  CartOp = "count"
	CartOpLoad   CartOp = "load"
	CartOpAdd    CartOp = "add"
	CartOpUpdate CartOp = "update"
	CartOpRemove CartOp = "remove"
)

// CartPayload содержит корзину, полученную от сервера.
type CartPayload struct {
	Op   CartOp
	Cart *catalog.Cart
}

// OrdersPayload содержит историю заказов.
type OrdersPayload struct {
	Orders []catalog.Order
}

// ProductLoadedPayload содержит товар, открытый на редактирование.
type ProductLoadedPayload struct {
	Product catalog.Product
}

// ImageUploadedPayload содержит URL загруженной картинки.
type ImageUploadedPayload struct {
	URL   string
	Draft int
}

// ScenarioResultPayload описывает ошибку длительной операции.
// Message заполняется только текстом сервера, иначе машина подставляет свой.
type ScenarioResultPayload struct {
	Op CartOp
	// Draft заполняется для ошибок загрузки картинки.
	Draft            int
	Kind             ErrorKind
	Message          string
	TechnicalMessage string
}

// UnauthorizedPayload приходит, когда сервер ответил 401 на авторизованный запрос.
type UnauthorizedPayload struct {
	Op string
}

// TaskDonePayload снимает отметку о выполняющейся операции.
type TaskDonePayload struct {
	Key string
}

// Callbacks содержит функции, вызываемые state machine для побочных эффектов.
// Сетевые колбэки выполняются в отдельных горутинах и сообщают результат событиями SYS_*.
type Callbacks struct {
	CheckSession        func() session.CheckResult
	BeginSession        func(token string) error
	PurgeSession        func()
	StartLogin          func(email, password string)
	StartRegister       func(email, password string, role session.Role)
	LoadProducts        func(category string)
	LoadFeatured        func()
	LoadCart            func(token string, op CartOp)
	AddToCart           func(token, productID string)
	UpdateCartItem      func(token, productID string, quantity int)
	RemoveCartItem      func(token, productID string)
	PlaceOrder          func(token, shippingAddress string)
	LoadOrders          func(token string)
	LoadVendorProducts  func()
	LoadProduct         func(token, productID string)
	UploadImage         func(token string, file ImageFilePayload)
	SaveProduct         func(token string, draft vendor.Draft)
	DeleteProduct       func(token, productID string)
	Confirm             func(message string, onConfirm func())
	CleanupAndExit      func(ctx *AppContext)
	UpdateUI            func(ctx *AppContext)
	ShowModalError      func(info *ErrorInfo)
	ShowTransientNotice func(message string)
}

// Machine инкапсулирует event-loop и текущее состояние приложения.
type Machine struct {
	ctx       *AppContext
	callbacks Callbacks
	logger    *logging.Logger
	events    chan Event
	priority  chan Event
	done      chan struct{}
	stopped   atomic.Bool
	loopOnce  sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// ErrMachineStopped возвращается при попытке отправить событие после остановки петли.
var ErrMachineStopped = errors.New("state machine stopped")

// NewMachine создаёт новый state machine в состоянии AppStarting.
func NewMachine(ctx *AppContext, logger *logging.Logger, callbacks Callbacks) *Machine {
	if ctx.InFlight == nil {
		ctx.InFlight = make(map[string]struct{})
	}
	return &Machine{
		ctx:       ctx,
		callbacks: callbacks,
		logger:    logger,
		events:    make(chan Event, 64),
		priority:  make(chan Event, 8),
		done:      make(chan struct{}),
	}
}

// Start запускает event-loop в отдельной горутине.
func (m *Machine) Start() {
	m.loopOnce.Do(func() {
		go m.loopSafely()
	})
}

// Stop завершает event-loop.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() {
		m.stopped.Store(true)
		close(m.done)
	})
}

// WaitAsync ждёт завершения фоновых задач, запущенных state machine.
func (m *Machine) WaitAsync(timeout time.Duration) bool {
	if m == nil {
		return true
	}
	if timeout <= 0 {
		m.wg.Wait()
		return true
	}
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Dispatch отправляет событие в очередь state machine.
func (m *Machine) Dispatch(evt Event) error {
	if m.stopped.Load() {
		return ErrMachineStopped
	}
	m.logger.Debugf("event queued: %s", evt.Type)
	ch := m.events
	if evt.Type == EventUIExit {
		ch = m.priority
	}
	select {
	case <-m.done:
		return ErrMachineStopped
	case ch <- evt:
		return nil
	}
}

func (m *Machine) loop() {
	for {
		select {
		case <-m.done:
			return
		case evt := <-m.priority:
			m.handleEvent(evt)
			continue
		default:
		}

		select {
		case <-m.done:
			return
		case evt := <-m.priority:
			m.handleEvent(evt)
		case evt := <-m.events:
			m.handleEvent(evt)
		}
	}
}

func (m *Machine) loopSafely() {
	defer m.logPanic("state loop")
	m.loop()
}

func (m *Machine) handleEvent(evt Event) {
	if evt.TS.IsZero() {
		evt.TS = time.Now()
	}
	m.logger.Debugf("event handle: %s state=%s", evt.Type, m.ctx.State)

	switch evt.Type {
	case EventUIExit:
		m.transition(StateExiting)
		m.invokeCleanup()
		return
	case EventSysTaskDone:
		payload, _ := evt.Payload.(TaskDonePayload)
		delete(m.ctx.InFlight, payload.Key)
		m.refreshBusy()
		return
	case EventSysUnauthorized:
		payload, _ := evt.Payload.(UnauthorizedPayload)
		m.onUnauthorized(payload.Op)
		return
	}
	if payload, ok := evt.Payload.(ScenarioResultPayload); ok && payload.Kind == ErrorKindUnauthorized {
		m.onUnauthorizedFailure(evt.Type, payload)
		return
	}

	switch m.ctx.State {
	case StateAppStarting:
		m.handleAppStarting(evt)
	case StateLoggedOut:
		m.handleLoggedOut(evt)
	case StateLoggedIn:
		m.handleLoggedIn(evt)
	case StateExiting:
		// игнор
	default:
		m.logger.Debugf("state machine: unknown state %s", m.ctx.State)
	}
}

func (m *Machine) handleAppStarting(evt Event) {
	switch evt.Type {
	case EventUILaunch:
		m.checkSession()
		m.ctx.UI.View = ViewCatalog
		m.loadCatalog(m.ctx.Category)
		m.invokeLoadFeatured()
		m.refreshCartCount()
		m.refreshUI()
	case EventUICredentialsChanged, EventUIRegisterChanged:
		m.applyForms(evt)
	default:
		m.logger.Debugf("appStarting: ignored %s", evt.Type)
	}
}

func (m *Machine) handleLoggedOut(evt Event) {
	if m.handleCommon(evt) {
		return
	}
	switch evt.Type {
	case EventUIClickLogin:
		m.applyForms(evt)
		if err := session.ValidateCredentials(m.ctx.UI.LoginInput, m.ctx.UI.PasswordInput); err != nil {
			m.showError(ErrorKindValidation, validationMessage(err), err.Error())
			return
		}
		m.invokeLogin()
	case EventUIClickRegister:
		m.applyForms(evt)
		if err := session.ValidateRegistration(m.ctx.UI.RegisterEmail, m.ctx.UI.RegisterPassword, m.ctx.UI.RegisterRole); err != nil {
			m.showError(ErrorKindValidation, validationMessage(err), err.Error())
			return
		}
		m.invokeRegister()
	case EventSysAuthSuccess:
		payload, _ := evt.Payload.(AuthSuccessPayload)
		m.onAuthSuccess(payload)
	case EventSysAuthFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.showFailure(payload, MsgLoginFailed, MsgLoginError)
	case EventSysRegisterSuccess:
		m.ctx.UI.RegisterEmail = ""
		m.ctx.UI.RegisterPassword = ""
		m.ctx.UI.RegisterRole = session.RoleCustomer
		m.refreshUI()
		m.showTransient(MsgRegistered)
	case EventSysRegisterFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.showFailure(payload, MsgRegisterFailed, MsgRegisterError)
	case EventUIAddToCart:
		payload, _ := evt.Payload.(ProductPayload)
		if err := catalog.ValidateProductID(payload.ID); err != nil {
			m.showError(ErrorKindValidation, MsgInvalidProductID, err.Error())
			return
		}
		m.showError(ErrorKindUnauthorized, MsgLoginToAdd, "add to cart without session")
		m.showView(ViewLogin)
	case EventUIShowView:
		payload, _ := evt.Payload.(ViewPayload)
		switch payload.View {
		case ViewCart, ViewOrders:
			m.showView(ViewLogin)
		case ViewVendor:
			m.showView(ViewCatalog)
		default:
			m.showView(payload.View)
		}
	default:
		m.logger.Debugf("loggedOut: ignored %s", evt.Type)
	}
}

func (m *Machine) handleLoggedIn(evt Event) {
	if m.handleCommon(evt) {
		return
	}
	switch evt.Type {
	case EventUIClickLogout:
		m.invokePurge()
		m.endSession()
		m.showView(ViewCatalog)
	case EventUIShowView:
		payload, _ := evt.Payload.(ViewPayload)
		m.enterView(payload.View)
	case EventUIAddToCart:
		payload, _ := evt.Payload.(ProductPayload)
		if err := catalog.ValidateProductID(payload.ID); err != nil {
			m.showError(ErrorKindValidation, MsgInvalidProductID, err.Error())
			return
		}
		m.invokeAddToCart(payload.ID)
	case EventUIChangeQuantity:
		payload, _ := evt.Payload.(QuantityPayload)
		m.changeQuantity(payload)
	case EventUIRemoveFromCart:
		payload, _ := evt.Payload.(ProductPayload)
		m.invokeRemoveCartItem(payload.ID)
	case EventSysCartLoaded:
		payload, _ := evt.Payload.(CartPayload)
		m.onCartLoaded(payload)
	case EventSysCartFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.onCartFailure(payload)
	case EventUIShippingChanged:
		payload, _ := evt.Payload.(AddressPayload)
		m.ctx.UI.ShippingAddress = payload.ShippingAddress
	case EventUIPlaceOrder:
		payload, _ := evt.Payload.(AddressPayload)
		m.ctx.UI.ShippingAddress = payload.ShippingAddress
		address := strings.TrimSpace(payload.ShippingAddress)
		if address == "" {
			m.showError(ErrorKindValidation, MsgAddressRequired, "empty shipping address")
			return
		}
		m.invokePlaceOrder(address)
	case EventSysOrderPlaced:
		payload, _ := evt.Payload.(NoticePayload)
		m.ctx.UI.ShippingAddress = ""
		message := strings.TrimSpace(payload.Message)
		if message == "" {
			message = MsgOrderPlaced
		}
		m.showTransient(message)
		m.refreshCartCount()
		m.enterView(ViewOrders)
	case EventSysOrderFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.showFailure(payload, MsgOrderFailed, MsgOrderFailed)
	case EventSysOrdersLoaded:
		payload, _ := evt.Payload.(OrdersPayload)
		m.ctx.Orders = payload.Orders
		m.ctx.UI.Orders = catalog.RenderOrders(payload.Orders)
		m.refreshUI()
	case EventSysOrdersFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.showFailure(payload, MsgOrdersLoadFailed, MsgOrdersLoadFailed)
	default:
		if m.handleVendor(evt) {
			return
		}
		m.logger.Debugf("loggedIn: ignored %s", evt.Type)
	}
}

// handleCommon обрабатывает события, не зависящие от сессии.
func (m *Machine) handleCommon(evt Event) bool {
	switch evt.Type {
	case EventUICredentialsChanged, EventUIRegisterChanged:
		m.applyForms(evt)
	case EventUISelectCategory:
		payload, _ := evt.Payload.(CategoryPayload)
		m.loadCatalog(strings.TrimSpace(payload.Category))
		m.refreshUI()
	case EventSysProductsLoaded:
		payload, _ := evt.Payload.(ProductsPayload)
		if payload.Category != m.ctx.Category {
			m.logger.Debugf("stale product list for %q dropped", payload.Category)
			return true
		}
		m.ctx.Products = payload.Products
		m.ctx.UI.Catalog = catalog.RenderProducts(payload.Products, m.ctx.StaticRoot())
		if payload.Category == "" {
			m.ctx.UI.Categories = catalog.Categories(payload.Products)
		}
		m.refreshUI()
	case EventSysProductsFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.logger.Errorf("load products: %s", payload.TechnicalMessage)
		m.ctx.Products = nil
		m.ctx.UI.Catalog = catalog.RenderProductsError()
		m.refreshUI()
	case EventSysFeaturedLoaded:
		payload, _ := evt.Payload.(ProductsPayload)
		m.ctx.Featured = payload.Products
		m.ctx.UI.Featured = catalog.RenderProducts(payload.Products, m.ctx.StaticRoot()).Cards
		m.ctx.UI.ShowFeatured = len(m.ctx.UI.Featured) > 0
		m.refreshUI()
	case EventSysFeaturedFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.logger.Errorf("load featured products: %s", payload.TechnicalMessage)
		m.ctx.Featured = nil
		m.ctx.UI.Featured = nil
		m.ctx.UI.ShowFeatured = false
		m.refreshUI()
	case EventUIDraftChanged:
		payload, _ := evt.Payload.(DraftPayload)
		if m.ctx.Draft != nil {
			m.ctx.Draft.Form = payload.Form
			m.ctx.UI.ProductDialog.Form = payload.Form
		}
	case EventUICloseProductDialog:
		m.closeProductDialog()
		m.refreshUI()
	default:
		return false
	}
	return true
}

func (m *Machine) handleVendor(evt Event) bool {
	switch evt.Type {
	case EventUINewProduct, EventUIEditProduct, EventUIUploadImage, EventUISaveProduct,
		EventUIDeleteProduct, EventUIDeleteConfirmed:
		if !m.ctx.User.IsVendor() {
			m.showError(ErrorKindValidation, MsgVendorOnly, "vendor action by "+string(m.ctx.User.Role))
			return true
		}
	}
	switch evt.Type {
	case EventSysVendorProductsLoaded:
		payload, _ := evt.Payload.(ProductsPayload)
		m.ctx.VendorProducts = vendor.FilterOwned(payload.Products, m.ctx.User.Email)
		m.ctx.UI.VendorProducts = vendor.RenderProducts(m.ctx.VendorProducts, m.ctx.StaticRoot())
		m.refreshUI()
	case EventSysVendorProductsFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.logger.Errorf("load vendor products: %s", payload.TechnicalMessage)
		m.ctx.VendorProducts = nil
		m.ctx.UI.VendorProducts = catalog.RenderProductsError()
		m.refreshUI()
	case EventUINewProduct:
		draft := vendor.NewDraft()
		m.openProductDialog(draft)
	case EventUIEditProduct:
		payload, _ := evt.Payload.(ProductPayload)
		m.invokeLoadProduct(payload.ID)
	case EventSysProductLoaded:
		payload, _ := evt.Payload.(ProductLoadedPayload)
		m.openProductDialog(vendor.DraftFromProduct(payload.Product, m.ctx.StaticRoot()))
	case EventSysProductLoadFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.showFailure(payload, MsgProductLoadFailed, MsgProductLoadFailed)
	case EventUIUploadImage:
		payload, _ := evt.Payload.(ImageFilePayload)
		if m.ctx.Draft == nil {
			m.logger.Debugf("upload without open product dialog ignored")
			return true
		}
		if err := vendor.ValidateImageFile(payload.Name); err != nil {
			m.showError(ErrorKindValidation, validationMessage(err), err.Error())
			return true
		}
		m.invokeUploadImage(payload)
	case EventSysImageUploaded:
		payload, _ := evt.Payload.(ImageUploadedPayload)
		if !m.currentDraft(payload.Draft) {
			m.logger.Debugf("stale image upload %s for draft %d dropped", payload.URL, payload.Draft)
			return true
		}
		updated := m.ctx.Draft.WithImage(payload.URL, m.ctx.StaticRoot())
		m.ctx.Draft = &updated
		m.ctx.UI.ProductDialog.Preview = updated.Preview
		m.refreshUI()
	case EventSysImageUploadFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.logger.Errorf("upload image: %s", payload.TechnicalMessage)
		if !m.currentDraft(payload.Draft) {
			return true
		}
		m.showError(payload.Kind, MsgUploadFailed, payload.TechnicalMessage)
	case EventUISaveProduct:
		payload, _ := evt.Payload.(DraftPayload)
		if m.ctx.Draft == nil {
			draft := vendor.NewDraft()
			m.ctx.Draft = &draft
		}
		m.ctx.Draft.Form = payload.Form
		m.ctx.UI.ProductDialog.Form = payload.Form
		if _, err := m.ctx.Draft.BuildPayload(); err != nil {
			m.showError(ErrorKindValidation, validationMessage(err), err.Error())
			return true
		}
		m.invokeSaveProduct(*m.ctx.Draft)
	case EventSysProductSaved:
		m.closeProductDialog()
		m.invokeLoadVendorProducts()
		m.refreshUI()
		m.showTransient(MsgSaved)
	case EventSysProductSaveFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.logger.Errorf("save product: %s", payload.TechnicalMessage)
		m.showError(payload.Kind, MsgSaveFailed, payload.TechnicalMessage)
	case EventUIDeleteProduct:
		payload, _ := evt.Payload.(ProductPayload)
		m.confirmDelete(payload.ID)
	case EventUIDeleteConfirmed:
		payload, _ := evt.Payload.(ProductPayload)
		m.invokeDeleteProduct(payload.ID)
	case EventSysProductDeleted:
		m.invokeLoadVendorProducts()
		m.showTransient(MsgDeleted)
	case EventSysProductDeleteFailure:
		payload, _ := evt.Payload.(ScenarioResultPayload)
		m.logger.Errorf("delete product: %s", payload.TechnicalMessage)
		m.showError(payload.Kind, MsgDeleteFailed, payload.TechnicalMessage)
	default:
		return false
	}
	return true
}

func (m *Machine) checkSession() {
	if m.callbacks.CheckSession == nil {
		m.transition(StateLoggedOut)
		return
	}
	result := m.callbacks.CheckSession()
	if result.Status != session.StatusLoggedIn || result.Token == "" {
		m.logger.Infof("session check: %s", result.Reason)
		m.endSession()
		return
	}
	m.ctx.AuthToken = result.Token
	m.ctx.User = result.User
	m.transition(StateLoggedIn)
}

func (m *Machine) onAuthSuccess(payload AuthSuccessPayload) {
	if m.callbacks.BeginSession != nil {
		if err := m.callbacks.BeginSession(payload.Token); err != nil {
			m.showError(ErrorKindUnknown, MsgLoginError, err.Error())
			return
		}
	}
	user := session.User{Email: payload.Email, Role: session.Role(payload.Role)}
	if user.Email == "" || user.Role == "" {
		if claims, err := session.DecodeToken(payload.Token); err == nil {
			if user.Email == "" {
				user.Email = claims.Email
			}
			if user.Role == "" {
				user.Role = claims.Role
			}
		}
	}
	m.ctx.AuthToken = payload.Token
	m.ctx.User = user
	m.ctx.LastError = nil
	m.ctx.UI.PasswordInput = ""
	m.logger.Infof("logged in as %s (%s)", user.Email, user.Role)
	m.transition(StateLoggedIn)
	m.refreshCartCount()
	m.showView(ViewCatalog)
}

// onUnauthorized удаляет токен и завершает сессию после 401.
func (m *Machine) onUnauthorized(op string) {
	if m.ctx.State != StateLoggedIn {
		return
	}
	m.logger.Infof("session rejected by server during %s", op)
	m.invokePurge()
	m.endSession()
}

// onUnauthorizedFailure обрабатывает ошибку операции, отклонённой с 401. К этому
// моменту EventSysUnauthorized обычно уже завершил сессию.
func (m *Machine) onUnauthorizedFailure(t EventType, payload ScenarioResultPayload) {
	m.onUnauthorized(string(t))
	if t == EventSysCartFailure && payload.Op == CartOpCount {
		m.logger.Debugf("cart count rejected, badge left as is")
		return
	}
	if m.ctx.State == StateExiting {
		return
	}
	m.sessionExpired()
}

// sessionExpired показывает сообщение и открывает вход после 401 в действии пользователя.
func (m *Machine) sessionExpired() {
	m.showError(ErrorKindUnauthorized, MsgSessionExpired, "unauthorized")
	m.showView(ViewLogin)
}

func (m *Machine) endSession() {
	m.ctx.AuthToken = ""
	m.ctx.User = session.User{}
	m.ctx.Cart = nil
	m.ctx.Orders = nil
	m.ctx.VendorProducts = nil
	m.closeProductDialog()
	m.transition(StateLoggedOut)
}

func (m *Machine) enterView(view View) {
	switch view {
	case ViewCart:
		m.showView(ViewCart)
		m.invokeLoadCart(CartOpLoad)
	case ViewOrders:
		m.showView(ViewOrders)
		m.invokeLoadOrders()
	case ViewVendor:
		m.enterVendor()
	case ViewLogin:
		m.showView(ViewCatalog)
	default:
		m.showView(view)
	}
}

// enterVendor повторно проверяет токен и роль перед открытием кабинета.
func (m *Machine) enterVendor() {
	if m.callbacks.CheckSession != nil {
		result := m.callbacks.CheckSession()
		if result.Status != session.StatusLoggedIn {
			m.endSession()
			m.showView(ViewCatalog)
			return
		}
		m.ctx.User = result.User
		m.ctx.AuthToken = result.Token
	}
	if !m.ctx.User.IsVendor() {
		m.showView(ViewCatalog)
		return
	}
	m.showView(ViewVendor)
	m.invokeLoadVendorProducts()
}

func (m *Machine) changeQuantity(payload QuantityPayload) {
	if m.ctx.Cart == nil {
		return
	}
	for _, item := range m.ctx.Cart.Items {
		if item.ProductID != payload.ProductID {
			continue
		}
		quantity := catalog.ClampQuantity(payload.Quantity, item.Stock)
		if quantity == item.Quantity {
			m.refreshUI()
			return
		}
		m.invokeUpdateCartItem(payload.ProductID, quantity)
		return
	}
	m.logger.Debugf("quantity change for unknown cart item %s", payload.ProductID)
}

func (m *Machine) onCartLoaded(payload CartPayload) {
	m.ctx.Cart = payload.Cart
	m.ctx.UI.Badge = catalog.RenderBadge(payload.Cart)
	m.ctx.UI.Cart = catalog.RenderCart(payload.Cart, m.ctx.StaticRoot())
	m.refreshUI()
	if payload.Op == CartOpAdd {
		m.showTransient(MsgAddedToCart)
		m.refreshCartCount()
	}
}

func (m *Machine) onCartFailure(payload ScenarioResultPayload) {
	switch payload.Op {
	case CartOpCount:
		m.logger.Errorf("update cart count: %s", payload.TechnicalMessage)
		if payload.Kind == ErrorKindUnauthorized {
			return
		}
		m.showFailure(payload, MsgCartCountFailed, MsgCartCountFailed)
	case CartOpAdd:
		m.showFailure(payload, MsgAddToCartFailed, MsgAddToCartFailed)
	case CartOpLoad:
		m.showFailure(payload, MsgCartLoadFailed, MsgCartLoadFailed)
	default:
		m.showFailure(payload, MsgCartUpdateFailed, MsgCartUpdateFailed)
	}
}

func (m *Machine) confirmDelete(id string) {
	if strings.TrimSpace(id) == "" {
		return
	}
	if m.callbacks.Confirm == nil {
		m.logger.Debugf("delete of %s skipped: no confirmation handler", id)
		return
	}
	m.callbacks.Confirm(MsgConfirmDelete, func() {
		_ = m.Dispatch(Event{Type: EventUIDeleteConfirmed, Payload: ProductPayload{ID: id}})
	})
}

func (m *Machine) openProductDialog(draft vendor.Draft) {
	m.ctx.DraftGen++
	m.ctx.Draft = &draft
	m.ctx.UI.ProductDialog = ProductDialogState{
		Visible: true,
		Title:   draft.Title(),
		Form:    draft.Form,
		Preview: draft.Preview,
	}
	m.refreshBusy()
}

func (m *Machine) closeProductDialog() {
	m.ctx.Draft = nil
	m.ctx.UI.ProductDialog = ProductDialogState{}
}

// currentDraft сообщает, открыт ли ещё черновик поколения gen.
func (m *Machine) currentDraft(gen int) bool {
	return m.ctx.Draft != nil && gen == m.ctx.DraftGen
}

func (m *Machine) loadCatalog(category string) {
	m.ctx.Category = category
	m.ctx.UI.SelectedCategory = category
	if m.callbacks.LoadProducts != nil {
		m.runAsync(func() { m.callbacks.LoadProducts(category) })
	}
}

func (m *Machine) refreshCartCount() {
	if !m.ctx.LoggedIn() {
		return
	}
	m.invokeLoadCart(CartOpCount)
}

func (m *Machine) applyForms(evt Event) {
	switch payload := evt.Payload.(type) {
	case CredentialsPayload:
		m.ctx.UI.LoginInput = payload.Email
		m.ctx.UI.PasswordInput = payload.Password
	case RegisterPayload:
		m.ctx.UI.RegisterEmail = payload.Email
		m.ctx.UI.RegisterPassword = payload.Password
		m.ctx.UI.RegisterRole = payload.Role
	}
}

func (m *Machine) showView(view View) {
	m.ctx.UI.View = view
	m.refreshUI()
}

func (m *Machine) transition(next State) {
	if m.ctx.State == next {
		m.refreshUI()
		return
	}
	prev := m.ctx.State
	m.ctx.State = next
	m.logger.Debugf("state transition %s → %s", prev, next)
	m.updateUIForState(next)
}

func (m *Machine) updateUIForState(state State) {
	switch state {
	case StateLoggedIn:
		m.ctx.UI.IsLoggedIn = true
		m.ctx.UI.UserEmail = m.ctx.User.Email
		m.ctx.UI.ShowVendorLink = m.ctx.User.IsVendor()
	case StateLoggedOut:
		m.ctx.UI.IsLoggedIn = false
		m.ctx.UI.UserEmail = ""
		m.ctx.UI.ShowVendorLink = false
		m.ctx.UI.Cart = catalog.RenderCart(nil, m.ctx.StaticRoot())
		m.ctx.UI.Orders = catalog.RenderOrders(nil)
		m.ctx.UI.VendorProducts = catalog.ProductListView{}
		if m.ctx.UI.View == ViewCart || m.ctx.UI.View == ViewOrders || m.ctx.UI.View == ViewVendor {
			m.ctx.UI.View = ViewCatalog
		}
	}
	m.refreshUI()
}

// showFailure показывает текст сервера дословно, иначе fallback
// (networkFallback для сетевых ошибок).
func (m *Machine) showFailure(payload ScenarioResultPayload, fallback, networkFallback string) {
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		if payload.Kind == ErrorKindNetwork {
			message = networkFallback
		} else {
			message = fallback
		}
	}
	technical := payload.TechnicalMessage
	if technical == "" {
		technical = message
	}
	m.showError(payload.Kind, message, technical)
}

func (m *Machine) showError(kind ErrorKind, userMessage, technical string) {
	if kind == "" {
		kind = ErrorKindUnknown
	}
	info := &ErrorInfo{
		Kind:             kind,
		UserMessage:      userMessage,
		TechnicalMessage: technical,
		OccurredAt:       time.Now(),
	}
	m.ctx.LastError = info
	m.ctx.UI.StatusText = userMessage
	m.logger.Debugf("error shown: %s (%s)", userMessage, technical)
	if m.callbacks.ShowModalError != nil {
		m.callbacks.ShowModalError(info)
	}
	m.refreshUI()
}

func (m *Machine) invokeLogin() {
	if m.callbacks.StartLogin == nil {
		return
	}
	email := strings.TrimSpace(m.ctx.UI.LoginInput)
	password := m.ctx.UI.PasswordInput
	m.track("auth:login", func() { m.callbacks.StartLogin(email, password) })
}

func (m *Machine) invokeRegister() {
	if m.callbacks.StartRegister == nil {
		return
	}
	email := strings.TrimSpace(m.ctx.UI.RegisterEmail)
	password := m.ctx.UI.RegisterPassword
	role := m.ctx.UI.RegisterRole
	m.track("auth:register", func() { m.callbacks.StartRegister(email, password, role) })
}

func (m *Machine) invokeLoadFeatured() {
	if m.callbacks.LoadFeatured != nil {
		m.runAsync(m.callbacks.LoadFeatured)
	}
}

func (m *Machine) invokeLoadCart(op CartOp) {
	if m.callbacks.LoadCart == nil || !m.ctx.LoggedIn() {
		return
	}
	token := m.ctx.AuthToken
	m.runAsync(func() { m.callbacks.LoadCart(token, op) })
}

func (m *Machine) invokeAddToCart(productID string) {
	if m.callbacks.AddToCart == nil {
		return
	}
	token := m.ctx.AuthToken
	m.track("cart:add:"+productID, func() { m.callbacks.AddToCart(token, productID) })
}

func (m *Machine) invokeUpdateCartItem(productID string, quantity int) {
	if m.callbacks.UpdateCartItem == nil {
		return
	}
	token := m.ctx.AuthToken
	m.track("cart:update:"+productID, func() { m.callbacks.UpdateCartItem(token, productID, quantity) })
}

func (m *Machine) invokeRemoveCartItem(productID string) {
	if m.callbacks.RemoveCartItem == nil || strings.TrimSpace(productID) == "" {
		return
	}
	token := m.ctx.AuthToken
	m.track("cart:update:"+productID, func() { m.callbacks.RemoveCartItem(token, productID) })
}

func (m *Machine) invokePlaceOrder(address string) {
	if m.callbacks.PlaceOrder == nil {
		return
	}
	token := m.ctx.AuthToken
	m.track("order:place", func() { m.callbacks.PlaceOrder(token, address) })
}

func (m *Machine) invokeLoadOrders() {
	if m.callbacks.LoadOrders == nil {
		return
	}
	token := m.ctx.AuthToken
	m.runAsync(func() { m.callbacks.LoadOrders(token) })
}

func (m *Machine) invokeLoadVendorProducts() {
	if m.callbacks.LoadVendorProducts != nil {
		m.runAsync(m.callbacks.LoadVendorProducts)
	}
}

func (m *Machine) invokeLoadProduct(productID string) {
	if m.callbacks.LoadProduct == nil || strings.TrimSpace(productID) == "" {
		return
	}
	token := m.ctx.AuthToken
	m.track("product:load:"+productID, func() { m.callbacks.LoadProduct(token, productID) })
}

func (m *Machine) invokeUploadImage(file ImageFilePayload) {
	if m.callbacks.UploadImage == nil {
		return
	}
	token := m.ctx.AuthToken
	file.Draft = m.ctx.DraftGen
	m.track(fmt.Sprintf("product:upload:%d", file.Draft), func() { m.callbacks.UploadImage(token, file) })
}

func (m *Machine) invokeSaveProduct(draft vendor.Draft) {
	if m.callbacks.SaveProduct == nil {
		return
	}
	token := m.ctx.AuthToken
	m.track("product:save", func() { m.callbacks.SaveProduct(token, draft) })
}

func (m *Machine) invokeDeleteProduct(productID string) {
	if m.callbacks.DeleteProduct == nil || strings.TrimSpace(productID) == "" {
		return
	}
	token := m.ctx.AuthToken
	m.track("product:delete:"+productID, func() { m.callbacks.DeleteProduct(token, productID) })
}

func (m *Machine) invokePurge() {
	if m.callbacks.PurgeSession != nil {
		m.callbacks.PurgeSession()
	}
}

// track запускает операцию, если такая же ещё не выполняется. По завершении
// в очередь уходит EventSysTaskDone с тем же ключом.
func (m *Machine) track(key string, fn func()) bool {
	if _, busy := m.ctx.InFlight[key]; busy {
		m.logger.Debugf("duplicate request ignored: %s", key)
		return false
	}
	m.ctx.InFlight[key] = struct{}{}
	m.refreshBusy()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			_ = m.Dispatch(Event{Type: EventSysTaskDone, Payload: TaskDonePayload{Key: key}})
		}()
		defer m.logPanic("async task " + key)
		fn()
	}()
	return true
}

// InFlight сообщает, выполняется ли операция с ключом key.
func (m *Machine) InFlight(key string) bool {
	_, ok := m.ctx.InFlight[key]
	return ok
}

func (m *Machine) refreshBusy() {
	m.ctx.UI.IsLoading = len(m.ctx.InFlight) > 0
	_, saving := m.ctx.InFlight["product:save"]
	_, uploading := m.ctx.InFlight[fmt.Sprintf("product:upload:%d", m.ctx.DraftGen)]
	m.ctx.UI.ProductDialog.Busy = m.ctx.UI.ProductDialog.Visible && (saving || uploading)
	m.refreshUI()
}

func (m *Machine) runAsync(fn func()) {
	if fn == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.logPanic("async task")
		fn()
	}()
}

func (m *Machine) logPanic(scope string) {
	if r := recover(); r != nil {
		m.logger.Errorf("panic in %s: %v\n%s", scope, r, debug.Stack())
		panic(r)
	}
}

func (m *Machine) invokeCleanup() {
	if m.callbacks.CleanupAndExit != nil {
		m.callbacks.CleanupAndExit(m.ctx)
		return
	}
	m.Stop()
}

func (m *Machine) showTransient(message string) {
	if m.callbacks.ShowTransientNotice != nil {
		m.callbacks.ShowTransientNotice(message)
	} else {
		m.logger.Infof("notice: %s", message)
	}
}

func (m *Machine) refreshUI() {
	if m.callbacks.UpdateUI != nil {
		m.callbacks.UpdateUI(m.ctx)
	}
}
