package ui

import (
	"errors"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"storefront/client/internal/logging"
	"storefront/client/internal/state"
)

// Options описывает параметры инициализации UI Manager.
type Options struct {
	AppID    string
	AppName  string
	Logger   *logging.Logger
	Dispatch func(state.Event) error
	// LoadAsset скачивает картинку по пути сайта.
	LoadAsset func(url string) ([]byte, error)
	// App подменяет приложение Fyne (в тестах).
	App fyne.App
}

// Manager управляет окном Fyne и связывает его со state machine.
type Manager struct {
	app      fyne.App
	appName  string
	logger   *logging.Logger
	dispatch func(state.Event) error
	images   *imageLoader
	mainWin  fyne.Window

	content     *fyne.Container
	views       map[state.View]fyne.CanvasObject
	currentView state.View

	catalogBtn *widget.Button
	cartBtn    *widget.Button
	ordersBtn  *widget.Button
	vendorBtn  *widget.Button
	loginBtn   *widget.Button
	logoutBtn  *widget.Button
	userLabel  *widget.Label
	statusText *widget.Label
	spinner    *widget.ProgressBarInfinite

	catalog catalogView
	cart    cartView
	orders  ordersView
	login   loginView
	vendor  vendorView
	dialog  *productDialog

	onStopped    func()
	updateCh     chan uiSnapshot
	stopCh       chan struct{}
	runOnce      sync.Once
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewManager создаёт новый UI Manager.
func NewManager(opts Options) *Manager {
	appID := strings.TrimSpace(opts.AppID)
	if appID == "" {
		appID = "storefront.client"
	}
	name := strings.TrimSpace(opts.AppName)
	if name == "" {
		name = "Storefront"
	}
	fyneApp := opts.App
	if fyneApp == nil {
		fyneApp = fyneapp.NewWithID(appID)
	}
	fyneApp.Settings().SetTheme(newShopTheme())
	m := &Manager{
		app:      fyneApp,
		appName:  name,
		logger:   opts.Logger,
		dispatch: opts.Dispatch,
		updateCh: make(chan uiSnapshot, 16),
		stopCh:   make(chan struct{}),
	}
	m.images = newImageLoader(opts.LoadAsset, m.callOnUI, opts.Logger, &m.wg, m.stopCh)
	fyneApp.Lifecycle().SetOnStopped(func() {
		if m.onStopped != nil {
			m.onStopped()
		}
	})
	m.buildMainWindow()
	return m
}

// SetOnStopped задаёт колбэк остановки цикла Fyne.
func (m *Manager) SetOnStopped(fn func()) {
	m.onStopped = fn
}

// Start запускает фоновую goroutine обновлений UI.
func (m *Manager) Start() {
	m.runOnce.Do(func() {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.processUpdates()
		}()
	})
}

// RunMainLoop блокирует текущую горутину до завершения цикла Fyne.
func (m *Manager) RunMainLoop() {
	if m.app == nil {
		return
	}
	m.mainWin.Show()
	m.app.Run()
}

// Quit завершает цикл Fyne.
func (m *Manager) Quit() {
	m.callOnUI(func() {
		if m.app != nil {
			m.app.Quit()
		}
	})
}

// Shutdown останавливает обновления и закрывает окно.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.stopCh)
		m.callOnUI(func() {
			if m.mainWin != nil {
				m.mainWin.Close()
			}
			if m.app != nil {
				m.app.Quit()
			}
		})
	})
}

// WaitAsync ждёт завершения фоновых UI goroutine.
func (m *Manager) WaitAsync(timeout time.Duration) bool {
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

// UpdateUI передаёт снимок состояния UI в безопасную для Fyne goroutine.
func (m *Manager) UpdateUI(ctx *state.AppContext) {
	if ctx == nil {
		return
	}
	snap := newSnapshot(ctx)
	select {
	case <-m.stopCh:
		return
	case m.updateCh <- snap:
	default:
		select {
		case <-m.updateCh:
		default:
		}
		select {
		case m.updateCh <- snap:
		default:
		}
	}
}

// ShowModalError отображает модальное окно ошибки.
func (m *Manager) ShowModalError(info *state.ErrorInfo) {
	if info == nil {
		return
	}
	message := strings.TrimSpace(info.UserMessage)
	if message == "" {
		message = "Something went wrong"
	}
	m.callOnUI(func() {
		dialog.ShowError(errors.New(message), m.mainWin)
	})
}

// ShowTransientNotice отображает краткое уведомление.
func (m *Manager) ShowTransientNotice(message string) {
	if strings.TrimSpace(message) == "" {
		return
	}
	m.callOnUI(func() {
		dialog.ShowInformation(m.appName, message, m.mainWin)
	})
}

// Confirm спрашивает подтверждение и вызывает onConfirm только при согласии.
func (m *Manager) Confirm(message string, onConfirm func()) {
	m.callOnUI(func() {
		dialog.ShowConfirm("Confirm", message, func(ok bool) {
			if ok && onConfirm != nil {
				onConfirm()
			}
		}, m.mainWin)
	})
}

func (m *Manager) processUpdates() {
	for {
		select {
		case <-m.stopCh:
			return
		case snap := <-m.updateCh:
			m.applySnapshot(snap)
		}
	}
}

func (m *Manager) applySnapshot(snap uiSnapshot) {
	m.callOnUI(func() {
		m.updateNavigation(snap)
		m.showView(snap.View)
		m.catalog.update(m, snap)
		m.cart.update(snap)
		m.orders.update(snap)
		m.login.update(snap)
		m.vendor.update(m, snap)
		m.dialog.update(snap.Dialog)
	})
}

func (m *Manager) updateNavigation(snap uiSnapshot) {
	m.cartBtn.SetText(cartButtonText(snap.Badge))
	setVisible(m.ordersBtn, snap.IsLoggedIn)
	setVisible(m.vendorBtn, snap.ShowVendorLink)
	setVisible(m.loginBtn, !snap.IsLoggedIn)
	setVisible(m.logoutBtn, snap.IsLoggedIn)
	m.userLabel.SetText(snap.UserEmail)
	m.statusText.SetText(snap.StatusText)
	if snap.IsLoading {
		m.spinner.Show()
		m.spinner.Start()
	} else {
		m.spinner.Stop()
		m.spinner.Hide()
	}
}

func (m *Manager) showView(view state.View) {
	if view == m.currentView {
		return
	}
	obj, ok := m.views[view]
	if !ok {
		return
	}
	m.currentView = view
	m.content.Objects = []fyne.CanvasObject{obj}
	m.content.Refresh()
}

func (m *Manager) buildMainWindow() {
	win := m.app.NewWindow(m.appName)
	win.Resize(fyne.NewSize(980, 680))

	m.catalogBtn = widget.NewButton("Catalog", func() { m.showViewEvent(state.ViewCatalog) })
	m.cartBtn = widget.NewButton("Cart", func() { m.showViewEvent(state.ViewCart) })
	m.ordersBtn = widget.NewButton("Orders", func() { m.showViewEvent(state.ViewOrders) })
	m.vendorBtn = widget.NewButton("Vendor Dashboard", func() { m.showViewEvent(state.ViewVendor) })
	m.loginBtn = widget.NewButton("Login", func() { m.showViewEvent(state.ViewLogin) })
	m.logoutBtn = widget.NewButton("Logout", func() { m.sendSimpleEvent(state.EventUIClickLogout) })
	m.ordersBtn.Hide()
	m.vendorBtn.Hide()
	m.logoutBtn.Hide()
	m.userLabel = widget.NewLabel("")
	m.statusText = widget.NewLabel("")
	m.statusText.Truncation = fyne.TextTruncateEllipsis
	m.spinner = widget.NewProgressBarInfinite()
	m.spinner.Hide()

	nav := container.NewHBox(
		widget.NewLabelWithStyle(m.appName, fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		m.catalogBtn, m.cartBtn, m.ordersBtn, m.vendorBtn,
		layout.NewSpacer(),
		m.userLabel, m.loginBtn, m.logoutBtn,
	)
	statusBar := container.NewBorder(nil, nil, nil, m.spinner, m.statusText)

	m.views = map[state.View]fyne.CanvasObject{
		state.ViewCatalog: m.catalog.build(m),
		state.ViewCart:    m.cart.build(m),
		state.ViewOrders:  m.orders.build(),
		state.ViewLogin:   m.login.build(m),
		state.ViewVendor:  m.vendor.build(m),
	}
	m.currentView = state.ViewCatalog
	m.content = container.NewStack(m.views[state.ViewCatalog])
	m.dialog = newProductDialog(m, win)

	win.SetContent(container.NewBorder(
		container.NewVBox(nav, widget.NewSeparator()),
		container.NewVBox(widget.NewSeparator(), statusBar),
		nil, nil,
		container.NewPadded(m.content),
	))
	win.SetCloseIntercept(func() {
		m.sendSimpleEvent(state.EventUIExit)
	})
	m.mainWin = win
}

func (m *Manager) showViewEvent(view state.View) {
	m.dispatchEvent(state.Event{Type: state.EventUIShowView, Payload: state.ViewPayload{View: view}, TS: time.Now()})
}

func (m *Manager) sendSimpleEvent(t state.EventType) {
	m.dispatchEvent(state.Event{Type: t, TS: time.Now()})
}

func (m *Manager) dispatchEvent(evt state.Event) {
	if m.dispatch == nil {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = time.Now()
	}
	if err := m.dispatch(evt); err != nil {
		m.logger.Errorf("ui dispatch %s failed: %v", evt.Type, err)
	}
}

func (m *Manager) callOnUI(fn func()) {
	if m.app == nil || fn == nil {
		return
	}
	if drv := m.app.Driver(); drv != nil {
		drv.DoFromGoroutine(fn, true)
		return
	}
	fn()
}

func setVisible(obj fyne.CanvasObject, visible bool) {
	if obj == nil || obj.Visible() == visible {
		return
	}
	if visible {
		obj.Show()
	} else {
		obj.Hide()
	}
}
