package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/client/internal/config"
	"storefront/client/internal/logging"
	"storefront/client/internal/session"
	"storefront/client/internal/shopclient"
	"storefront/client/internal/state"
	"storefront/client/internal/tokenstore"
	"storefront/client/internal/ui"
)

// Surface описывает то, что state machine требует от UI.
type Surface interface {
	Start()
	RunMainLoop()
	UpdateUI(ctx *state.AppContext)
	ShowModalError(info *state.ErrorInfo)
	ShowTransientNotice(message string)
	Confirm(message string, onConfirm func())
	SetOnStopped(fn func())
	Quit()
	Shutdown()
	WaitAsync(timeout time.Duration) bool
}

// Application связывает state machine, сессию и API магазина.
type Application struct {
	cfg       *config.Config
	logger    *logging.Logger
	shop      *shopclient.Client
	session   *session.Manager
	machine   *state.Machine
	ctx       *state.AppContext
	ui        Surface
	shutdown  chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	stopOnce  sync.Once
}

// New создаёт Application с окном Fyne и файловым хранилищем токена.
func New(cfg *config.Config, logger *logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	store, err := tokenstore.NewFileStore(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("init token store: %w", err)
	}
	return newApplication(cfg, logger, store, func(a *Application) Surface {
		return ui.NewManager(ui.Options{
			AppID:     "storefront.client",
			AppName:   "Storefront",
			Logger:    logger.Named("ui"),
			Dispatch:  a.dispatch,
			LoadAsset: a.fetchAsset,
		})
	})
}

func newApplication(cfg *config.Config, logger *logging.Logger, store tokenstore.Store, newSurface func(*Application) Surface) (*Application, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}
	runCtx, runCancel := context.WithCancel(context.Background())
	app := &Application{
		cfg:       cfg,
		logger:    logger,
		ctx:       state.NewAppContext(cfg),
		session:   session.NewManager(store, logger.Named("session"), time.Now),
		shutdown:  make(chan struct{}),
		runCtx:    runCtx,
		runCancel: runCancel,
	}
	client, err := shopclient.New(cfg.APIBaseURL(), shopclient.Options{
		Logger:         logger.Named("shop"),
		Timeout:        cfg.Timeout,
		OnUnauthorized: app.onUnauthorized,
	})
	if err != nil {
		runCancel()
		return nil, fmt.Errorf("init shop client: %w", err)
	}
	app.shop = client

	surface := newSurface(app)
	surface.SetOnStopped(app.onAppStopped)
	app.ui = surface

	callbacks := state.Callbacks{
		CheckSession:        app.session.CheckAuthStatus,
		BeginSession:        app.session.Begin,
		PurgeSession:        app.session.Purge,
		StartLogin:          app.startLogin,
		StartRegister:       app.startRegister,
		LoadProducts:        app.loadProducts,
		LoadFeatured:        app.loadFeatured,
		LoadCart:            app.loadCart,
		AddToCart:           app.addToCart,
		UpdateCartItem:      app.updateCartItem,
		RemoveCartItem:      app.removeCartItem,
		PlaceOrder:          app.placeOrder,
		LoadOrders:          app.loadOrders,
		LoadVendorProducts:  app.loadVendorProducts,
		LoadProduct:         app.loadProduct,
		UploadImage:         app.uploadImage,
		SaveProduct:         app.saveProduct,
		DeleteProduct:       app.deleteProduct,
		Confirm:             surface.Confirm,
		CleanupAndExit:      app.cleanupAndExit,
		UpdateUI:            surface.UpdateUI,
		ShowModalError:      surface.ShowModalError,
		ShowTransientNotice: surface.ShowTransientNotice,
	}
	app.machine = state.NewMachine(app.ctx, logger.Named("machine"), callbacks)
	return app, nil
}

// Run запускает state machine и инициирует сценарий старта.
func (a *Application) Run() error {
	if a.machine == nil {
		return fmt.Errorf("machine is not initialized")
	}
	if a.ui != nil {
		a.ui.Start()
	}
	a.machine.Start()
	return a.dispatch(state.Event{Type: state.EventUILaunch, TS: time.Now()})
}

// RunUILoop запускает главный цикл Fyne и блокирует вызывающую горутину до выхода.
func (a *Application) RunUILoop() {
	if a.ui == nil {
		return
	}
	a.ui.RunMainLoop()
}

// Stop отменяет запросы и останавливает state machine.
func (a *Application) Stop() {
	a.stopOnce.Do(func() {
		if a.runCancel != nil {
			a.runCancel()
		}
		if a.ui != nil {
			a.ui.Shutdown()
			if !a.ui.WaitAsync(3 * time.Second) {
				a.logger.Errorf("ui background tasks did not finish before timeout")
			}
		}
		if a.machine != nil {
			a.machine.Stop()
			if !a.machine.WaitAsync(3 * time.Second) {
				a.logger.Errorf("state machine background tasks did not finish before timeout")
			}
		}
		close(a.shutdown)
	})
}

func (a *Application) dispatch(evt state.Event) error {
	if err := a.machine.Dispatch(evt); err != nil {
		a.logger.Errorf("dispatch %s failed: %v", evt.Type, err)
		return err
	}
	return nil
}

// Done возвращает канал, закрывающийся после полной остановки приложения.
func (a *Application) Done() <-chan struct{} {
	return a.shutdown
}

func (a *Application) cleanupAndExit(_ *state.AppContext) {
	a.logger.Infof("state machine requested shutdown")
	if a.ui != nil {
		a.ui.Quit()
	}
	a.Stop()
}

func (a *Application) onAppStopped() {
	a.logger.Infof("ui stopped")
}

// onUnauthorized вызывается клиентом на каждый 401 авторизованного запроса.
func (a *Application) onUnauthorized(op string) {
	if a.isStopping() {
		return
	}
	a.dispatch(state.Event{Type: state.EventSysUnauthorized, Payload: state.UnauthorizedPayload{Op: op}})
}
