package ui

import (
	"fmt"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"storefront/client/internal/catalog"
	"storefront/client/internal/session"
	"storefront/client/internal/state"
)

var (
	thumbSize    = fyne.NewSize(96, 96)
	featuredSize = fyne.NewSize(160, 120)
)

func newThumb(size fyne.Size) *canvas.Image {
	img := canvas.NewImageFromResource(nil)
	img.FillMode = canvas.ImageFillContain
	img.SetMinSize(size)
	return img
}

// catalogView показывает фильтр, рекомендуемые товары и список каталога.
type catalogView struct {
	category         *widget.Select
	suppressCategory bool
	featuredBox      *fyne.Container
	featuredCard     *widget.Card
	featuredKey      string
	message          *widget.Label
	list             *widget.List
	cards            []catalog.ProductCard
}

func (v *catalogView) build(m *Manager) fyne.CanvasObject {
	v.category = widget.NewSelect(categoryOptions(nil), func(option string) {
		if v.suppressCategory {
			return
		}
		m.dispatchEvent(state.Event{Type: state.EventUISelectCategory, Payload: state.CategoryPayload{Category: categoryFromOption(option)}})
	})
	v.suppressCategory = true
	v.category.SetSelected(allCategories)
	v.suppressCategory = false

	v.featuredBox = container.NewHBox()
	v.featuredCard = widget.NewCard("Featured Products", "", container.NewHScroll(v.featuredBox))
	v.featuredCard.Hide()

	v.message = widget.NewLabel("")
	v.message.Wrapping = fyne.TextWrapWord
	v.message.Hide()

	v.list = widget.NewList(
		func() int { return len(v.cards) },
		newProductRow,
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			if id < 0 || id >= len(v.cards) {
				return
			}
			card := v.cards[id]
			row := bindProductRow(m, obj, card)
			row.action.SetText("Add to Cart")
			row.action.OnTapped = func() {
				m.dispatchEvent(state.Event{Type: state.EventUIAddToCart, Payload: state.ProductPayload{ID: card.ID}})
			}
			if card.InStock {
				row.action.Enable()
			} else {
				row.action.Disable()
			}
			row.secondary.Hide()
		},
	)

	header := container.NewVBox(
		container.NewBorder(nil, nil, widget.NewLabel("Category:"), nil, v.category),
		v.featuredCard,
		v.message,
	)
	return container.NewBorder(header, nil, nil, nil, v.list)
}

func (v *catalogView) update(m *Manager, snap uiSnapshot) {
	v.suppressCategory = true
	v.category.SetOptions(categoryOptions(snap.Categories))
	v.category.SetSelected(optionFromCategory(snap.SelectedCategory))
	v.suppressCategory = false

	v.updateFeatured(m, snap)

	if msg := listMessage(snap.Catalog); msg != "" {
		v.message.SetText(msg)
		v.message.Show()
	} else {
		v.message.Hide()
	}
	v.cards = snap.Catalog.Cards
	v.list.Refresh()
}

func (v *catalogView) updateFeatured(m *Manager, snap uiSnapshot) {
	setVisible(v.featuredCard, snap.ShowFeatured)
	ids := make([]string, 0, len(snap.Featured))
	for _, c := range snap.Featured {
		ids = append(ids, c.ID+"|"+c.ImageURL+"|"+c.PriceText)
	}
	key := strings.Join(ids, ",")
	if key == v.featuredKey {
		return
	}
	v.featuredKey = key
	objects := make([]fyne.CanvasObject, 0, len(snap.Featured))
	for _, card := range snap.Featured {
		id := card.ID
		img := newThumb(featuredSize)
		m.images.Bind(img, card.ImageURL)
		add := widget.NewButton("Add to Cart", func() {
			m.dispatchEvent(state.Event{Type: state.EventUIAddToCart, Payload: state.ProductPayload{ID: id}})
		})
		if !card.InStock {
			add.Disable()
		}
		objects = append(objects, container.NewVBox(
			img,
			widget.NewLabelWithStyle(card.Name, fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
			widget.NewLabel(card.PriceText),
			add,
		))
	}
	v.featuredBox.Objects = objects
	v.featuredBox.Refresh()
}

// productRow используется и каталогом, и кабинетом продавца.
type productRow struct {
	widget.BaseWidget
	image     *canvas.Image
	name      *widget.Label
	details   *widget.Label
	meta      *widget.Label
	action    *widget.Button
	secondary *widget.Button
}

func newProductRow() fyne.CanvasObject {
	row := &productRow{
		image:     newThumb(thumbSize),
		name:      widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		details:   widget.NewLabel(""),
		meta:      widget.NewLabel(""),
		action:    widget.NewButton("", nil),
		secondary: widget.NewButton("", nil),
	}
	row.details.Truncation = fyne.TextTruncateEllipsis
	row.ExtendBaseWidget(row)
	return row
}

func (r *productRow) CreateRenderer() fyne.WidgetRenderer {
	buttons := container.NewVBox(r.action, r.secondary)
	return widget.NewSimpleRenderer(container.NewBorder(nil, nil, r.image, buttons, container.NewVBox(r.name, r.details, r.meta)))
}

func bindProductRow(m *Manager, obj fyne.CanvasObject, card catalog.ProductCard) *productRow {
	row := obj.(*productRow)
	m.images.Bind(row.image, card.ImageURL)
	row.name.SetText(card.Name)
	row.details.SetText(card.Description)
	row.meta.SetText(fmt.Sprintf("%s   %s   %s", card.PriceText, card.StockText, card.Category))
	return row
}

// cartView показывает корзину и форму оформления заказа.
type cartView struct {
	rows     []catalog.CartRow
	list     *widget.List
	empty    *widget.Label
	total    *widget.Label
	address  *widget.Entry
	suppress bool
	checkout *widget.Button
}

type cartRow struct {
	widget.BaseWidget
	image    *canvas.Image
	name     *widget.Label
	price    *widget.Label
	minus    *widget.Button
	quantity *widget.Entry
	plus     *widget.Button
	subtotal *widget.Label
	remove   *widget.Button
}

func (v *cartView) build(m *Manager) fyne.CanvasObject {
	v.empty = widget.NewLabel(catalog.MessageCartEmpty)
	v.total = widget.NewLabelWithStyle("Total: "+catalog.FormatPrice(0), fyne.TextAlignTrailing, fyne.TextStyle{Bold: true})
	v.list = widget.NewList(
		func() int { return len(v.rows) },
		func() fyne.CanvasObject {
			r := &cartRow{
				image:    newThumb(fyne.NewSize(64, 64)),
				name:     widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
				price:    widget.NewLabel(""),
				minus:    widget.NewButton("-", nil),
				quantity: widget.NewEntry(),
				plus:     widget.NewButton("+", nil),
				subtotal: widget.NewLabel(""),
				remove:   widget.NewButton("Remove", nil),
			}
			r.ExtendBaseWidget(r)
			return r
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			if id < 0 || id >= len(v.rows) {
				return
			}
			row := v.rows[id]
			r := obj.(*cartRow)
			m.images.Bind(r.image, row.ImageURL)
			r.name.SetText(row.Name)
			r.price.SetText(row.PriceText)
			r.subtotal.SetText(row.SubtotalText)
			r.quantity.OnSubmitted = nil
			r.quantity.SetText(strconv.Itoa(row.Quantity))
			r.quantity.OnSubmitted = func(text string) {
				qty, err := strconv.Atoi(strings.TrimSpace(text))
				if err != nil {
					r.quantity.SetText(strconv.Itoa(row.Quantity))
					return
				}
				m.dispatchEvent(state.Event{Type: state.EventUIChangeQuantity, Payload: state.QuantityPayload{ProductID: row.ProductID, Quantity: qty}})
			}
			r.minus.OnTapped = func() {
				m.dispatchEvent(state.Event{Type: state.EventUIChangeQuantity, Payload: state.QuantityPayload{ProductID: row.ProductID, Quantity: row.Decrement}})
			}
			r.plus.OnTapped = func() {
				m.dispatchEvent(state.Event{Type: state.EventUIChangeQuantity, Payload: state.QuantityPayload{ProductID: row.ProductID, Quantity: row.Increment}})
			}
			r.remove.OnTapped = func() {
				m.dispatchEvent(state.Event{Type: state.EventUIRemoveFromCart, Payload: state.ProductPayload{ID: row.ProductID}})
			}
			enable(r.minus, row.CanDecrement)
			enable(r.plus, row.CanIncrement)
		},
	)

	v.address = widget.NewMultiLineEntry()
	v.address.SetPlaceHolder("Shipping address")
	v.address.SetMinRowsVisible(2)
	v.address.OnChanged = func(text string) {
		if v.suppress {
			return
		}
		m.dispatchEvent(state.Event{Type: state.EventUIShippingChanged, Payload: state.AddressPayload{ShippingAddress: text}})
	}
	v.checkout = widget.NewButton("Place Order", func() {
		m.dispatchEvent(state.Event{Type: state.EventUIPlaceOrder, Payload: state.AddressPayload{ShippingAddress: v.address.Text}})
	})
	v.checkout.Importance = widget.HighImportance

	footer := container.NewVBox(widget.NewSeparator(), v.total, v.address, v.checkout)
	header := widget.NewLabelWithStyle("Shopping Cart", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	return container.NewBorder(container.NewVBox(header, v.empty), footer, nil, nil, v.list)
}

func (r *cartRow) CreateRenderer() fyne.WidgetRenderer {
	stepper := container.NewHBox(r.minus, container.NewGridWrap(fyne.NewSize(64, 36), r.quantity), r.plus)
	right := container.NewHBox(stepper, r.subtotal, r.remove)
	return widget.NewSimpleRenderer(container.NewBorder(nil, nil, r.image, right, container.NewVBox(r.name, r.price)))
}

func (v *cartView) update(snap uiSnapshot) {
	v.rows = snap.Cart.Rows
	v.list.Refresh()
	setVisible(v.empty, snap.Cart.Empty)
	v.total.SetText("Total: " + snap.Cart.TotalText)
	enable(v.checkout, !snap.Cart.Empty)
	if v.address.Text != snap.ShippingAddress {
		v.suppress = true
		v.address.SetText(snap.ShippingAddress)
		v.suppress = false
	}
}

// ordersView показывает историю заказов.
type ordersView struct {
	rows  []catalog.OrderRow
	list  *widget.List
	empty *widget.Label
}

func (v *ordersView) build() fyne.CanvasObject {
	v.empty = widget.NewLabel(catalog.MessageNoOrders)
	v.list = widget.NewList(
		func() int { return len(v.rows) },
		func() fyne.CanvasObject {
			return container.NewVBox(
				widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
				widget.NewLabel(""),
			)
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			if id < 0 || id >= len(v.rows) {
				return
			}
			row := v.rows[id]
			box := obj.(*fyne.Container)
			box.Objects[0].(*widget.Label).SetText(fmt.Sprintf("%s  %s  %s", row.CreatedAt, row.TotalText, strings.ToUpper(row.Status)))
			box.Objects[1].(*widget.Label).SetText(fmt.Sprintf("%s, ship to: %s", row.Items, row.Address))
		},
	)
	header := widget.NewLabelWithStyle("My Orders", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	return container.NewBorder(container.NewVBox(header, v.empty), nil, nil, nil, v.list)
}

func (v *ordersView) update(snap uiSnapshot) {
	v.rows = snap.Orders.Rows
	v.list.Refresh()
	setVisible(v.empty, snap.Orders.Empty)
	if snap.Orders.Empty {
		v.empty.SetText(snap.Orders.EmptyMessage)
	}
}

// loginView содержит формы входа и регистрации.
type loginView struct {
	email       *widget.Entry
	password    *widget.Entry
	regEmail    *widget.Entry
	regPassword *widget.Entry
	regRole     *widget.RadioGroup
	suppress    bool
}

var roleOptions = []string{string(session.RoleCustomer), string(session.RoleVendor)}

func (v *loginView) build(m *Manager) fyne.CanvasObject {
	credentials := func() {
		if v.suppress {
			return
		}
		m.dispatchEvent(state.Event{Type: state.EventUICredentialsChanged, Payload: v.credentials()})
	}
	registration := func() {
		if v.suppress {
			return
		}
		m.dispatchEvent(state.Event{Type: state.EventUIRegisterChanged, Payload: v.registration()})
	}
	login := func() {
		m.dispatchEvent(state.Event{Type: state.EventUIClickLogin, Payload: v.credentials()})
	}

	v.email = widget.NewEntry()
	v.email.SetPlaceHolder("Email")
	v.email.OnChanged = func(string) { credentials() }
	v.password = widget.NewPasswordEntry()
	v.password.SetPlaceHolder("Password")
	v.password.OnChanged = func(string) { credentials() }
	v.password.OnSubmitted = func(string) { login() }
	loginBtn := widget.NewButton("Login", login)
	loginBtn.Importance = widget.HighImportance

	v.regEmail = widget.NewEntry()
	v.regEmail.SetPlaceHolder("Email")
	v.regEmail.OnChanged = func(string) { registration() }
	v.regPassword = widget.NewPasswordEntry()
	v.regPassword.SetPlaceHolder("Password")
	v.regPassword.OnChanged = func(string) { registration() }
	v.regRole = widget.NewRadioGroup(roleOptions, func(string) { registration() })
	v.regRole.Horizontal = true
	v.regRole.Required = true
	v.suppress = true
	v.regRole.SetSelected(string(session.RoleCustomer))
	v.suppress = false
	registerBtn := widget.NewButton("Register", func() {
		m.dispatchEvent(state.Event{Type: state.EventUIClickRegister, Payload: v.registration()})
	})

	loginCard := widget.NewCard("Login", "", container.NewVBox(v.email, v.password, loginBtn))
	registerCard := widget.NewCard("Register", "", container.NewVBox(v.regEmail, v.regPassword, v.regRole, registerBtn))
	return container.NewGridWithColumns(2, loginCard, registerCard)
}

func (v *loginView) credentials() state.CredentialsPayload {
	return state.CredentialsPayload{Email: v.email.Text, Password: v.password.Text}
}

func (v *loginView) registration() state.RegisterPayload {
	return state.RegisterPayload{Email: v.regEmail.Text, Password: v.regPassword.Text, Role: session.Role(v.regRole.Selected)}
}

func (v *loginView) update(snap uiSnapshot) {
	v.suppress = true
	defer func() { v.suppress = false }()
	setText(v.email, snap.LoginInput)
	setText(v.password, snap.PasswordInput)
	setText(v.regEmail, snap.RegisterEmail)
	setText(v.regPassword, snap.RegisterPassword)
	if role := string(snap.RegisterRole); role != "" && v.regRole.Selected != role {
		v.regRole.SetSelected(role)
	}
}

// vendorView показывает товары продавца.
type vendorView struct {
	message *widget.Label
	list    *widget.List
	cards   []catalog.ProductCard
}

func (v *vendorView) build(m *Manager) fyne.CanvasObject {
	add := widget.NewButton("Add New Product", func() { m.sendSimpleEvent(state.EventUINewProduct) })
	add.Importance = widget.HighImportance
	v.message = widget.NewLabel("")
	v.message.Hide()
	v.list = widget.NewList(
		func() int { return len(v.cards) },
		newProductRow,
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			if id < 0 || id >= len(v.cards) {
				return
			}
			card := v.cards[id]
			row := bindProductRow(m, obj, card)
			row.action.SetText("Edit")
			row.action.Enable()
			row.action.OnTapped = func() {
				m.dispatchEvent(state.Event{Type: state.EventUIEditProduct, Payload: state.ProductPayload{ID: card.ID}})
			}
			row.secondary.Importance = widget.DangerImportance
			row.secondary.SetText("Delete")
			row.secondary.OnTapped = func() {
				m.dispatchEvent(state.Event{Type: state.EventUIDeleteProduct, Payload: state.ProductPayload{ID: card.ID}})
			}
			row.secondary.Show()
		},
	)
	header := container.NewVBox(
		container.NewHBox(widget.NewLabelWithStyle("My Products", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}), add),
		v.message,
	)
	return container.NewBorder(header, nil, nil, nil, v.list)
}

func (v *vendorView) update(_ *Manager, snap uiSnapshot) {
	if msg := listMessage(snap.VendorProducts); msg != "" {
		v.message.SetText(msg)
		v.message.Show()
	} else {
		v.message.Hide()
	}
	v.cards = snap.VendorProducts.Cards
	v.list.Refresh()
}

func setText(e *widget.Entry, text string) {
	if e.Text != text {
		e.SetText(text)
	}
}

func enable(w fyne.Disableable, on bool) {
	if on {
		w.Enable()
	} else {
		w.Disable()
	}
}
