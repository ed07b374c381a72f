package ui

import (
	"storefront/client/internal/catalog"
	"storefront/client/internal/session"
	"storefront/client/internal/state"
)

// uiSnapshot переносит срез состояния UI из state machine в goroutine UI.
type uiSnapshot struct {
	View             state.View
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
	Dialog           state.ProductDialogState
	LoginInput       string
	PasswordInput    string
	RegisterEmail    string
	RegisterPassword string
	RegisterRole     session.Role
	ShippingAddress  string
	IsLoading        bool
}

// newSnapshot копирует UIState, чтобы UI не делил слайсы с петлёй машины.
func newSnapshot(ctx *state.AppContext) uiSnapshot {
	ui := ctx.UI
	snap := uiSnapshot{
		View:             ui.View,
		StatusText:       ui.StatusText,
		IsLoggedIn:       ui.IsLoggedIn,
		UserEmail:        ui.UserEmail,
		ShowVendorLink:   ui.ShowVendorLink,
		Badge:            ui.Badge,
		Catalog:          cloneList(ui.Catalog),
		Featured:         append([]catalog.ProductCard(nil), ui.Featured...),
		ShowFeatured:     ui.ShowFeatured,
		Categories:       append([]string(nil), ui.Categories...),
		SelectedCategory: ui.SelectedCategory,
		Cart:             ui.Cart,
		Orders:           ui.Orders,
		VendorProducts:   cloneList(ui.VendorProducts),
		Dialog:           ui.ProductDialog,
		LoginInput:       ui.LoginInput,
		PasswordInput:    ui.PasswordInput,
		RegisterEmail:    ui.RegisterEmail,
		RegisterPassword: ui.RegisterPassword,
		RegisterRole:     ui.RegisterRole,
		ShippingAddress:  ui.ShippingAddress,
		IsLoading:        ui.IsLoading,
	}
	snap.Cart.Rows = append([]catalog.CartRow(nil), ui.Cart.Rows...)
	snap.Orders.Rows = append([]catalog.OrderRow(nil), ui.Orders.Rows...)
	if snap.View == "" {
		snap.View = state.ViewCatalog
	}
	return snap
}

func cloneList(v catalog.ProductListView) catalog.ProductListView {
	v.Cards = append([]catalog.ProductCard(nil), v.Cards...)
	return v
}

// cartButtonText возвращает подпись кнопки корзины с бейджем.
func cartButtonText(b catalog.Badge) string {
	if !b.Visible {
		return "Cart"
	}
	return "Cart (" + b.Text + ")"
}

// listMessage возвращает текст вместо списка: ошибку, пустое состояние или "".
func listMessage(v catalog.ProductListView) string {
	if v.ErrorMessage != "" {
		return v.ErrorMessage
	}
	if v.Empty {
		return v.EmptyMessage
	}
	return ""
}

const allCategories = "All Categories"

// categoryOptions строит варианты фильтра. Первый вариант снимает фильтр.
func categoryOptions(categories []string) []string {
	return append([]string{allCategories}, categories...)
}

func categoryFromOption(option string) string {
	if option == allCategories {
		return ""
	}
	return option
}

func optionFromCategory(category string) string {
	if category == "" {
		return allCategories
	}
	return category
}
