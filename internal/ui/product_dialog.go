package ui

import (
	"io"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"storefront/client/internal/state"
	"storefront/client/internal/vendor"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// productDialog управляет модальным окном добавления и редактирования товара.
type productDialog struct {
	m   *Manager
	win fyne.Window
	dlg *dialog.CustomDialog

	content fyne.CanvasObject
	buttons []fyne.CanvasObject

	name        *widget.Entry
	description *widget.Entry
	price       *widget.Entry
	category    *widget.Entry
	stock       *widget.Entry
	preview     *canvas.Image
	upload      *widget.Button
	save        *widget.Button

	visible    bool
	previewURL string
	suppress   bool
	hiding     bool
}

func newProductDialog(m *Manager, win fyne.Window) *productDialog {
	d := &productDialog{m: m, win: win}

	d.name = widget.NewEntry()
	d.description = widget.NewMultiLineEntry()
	d.description.SetMinRowsVisible(3)
	d.price = widget.NewEntry()
	d.price.SetPlaceHolder("0.00")
	d.category = widget.NewEntry()
	d.stock = widget.NewEntry()
	d.stock.SetPlaceHolder("0")
	for _, e := range []*widget.Entry{d.name, d.description, d.price, d.category, d.stock} {
		e.OnChanged = func(string) { d.changed() }
	}

	d.preview = newThumb(fyne.NewSize(160, 160))
	d.upload = widget.NewButton("Upload Image", d.chooseImage)
	d.save = widget.NewButton("Save", func() {
		m.dispatchEvent(state.Event{Type: state.EventUISaveProduct, Payload: state.DraftPayload{Form: d.form()}})
	})
	d.save.Importance = widget.HighImportance
	cancel := widget.NewButton("Cancel", func() { m.sendSimpleEvent(state.EventUICloseProductDialog) })

	form := widget.NewForm(
		widget.NewFormItem("Name", d.name),
		widget.NewFormItem("Description", d.description),
		widget.NewFormItem("Price", d.price),
		widget.NewFormItem("Category", d.category),
		widget.NewFormItem("Stock", d.stock),
	)
	d.content = container.NewBorder(nil, nil, nil, container.NewVBox(d.preview, d.upload), form)
	d.buttons = []fyne.CanvasObject{cancel, d.save}
	return d
}

// open показывает новое окно с заголовком title.
func (d *productDialog) open(title string) {
	if title == "" {
		title = vendor.TitleAddProduct
	}
	dlg := dialog.NewCustomWithoutButtons(title, d.content, d.win)
	dlg.SetButtons(d.buttons)
	dlg.SetOnClosed(func() {
		if d.hiding || d.dlg != dlg {
			return
		}
		d.visible = false
		d.m.sendSimpleEvent(state.EventUICloseProductDialog)
	})
	dlg.Resize(fyne.NewSize(560, 420))
	d.dlg = dlg
	dlg.Show()
}

func (d *productDialog) form() vendor.Form {
	return vendor.Form{
		Name:        d.name.Text,
		Description: d.description.Text,
		Price:       d.price.Text,
		Category:    d.category.Text,
		Stock:       d.stock.Text,
	}
}

func (d *productDialog) changed() {
	if d.suppress {
		return
	}
	d.m.dispatchEvent(state.Event{Type: state.EventUIDraftChanged, Payload: state.DraftPayload{Form: d.form()}})
}

func (d *productDialog) chooseImage() {
	open := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			d.m.logger.Warnf("image picker failed: %v", err)
			return
		}
		if reader == nil {
			return
		}
		defer reader.Close()
		data, err := io.ReadAll(reader)
		if err != nil {
			d.m.logger.Warnf("read image %s failed: %v", reader.URI().Name(), err)
			return
		}
		d.m.dispatchEvent(state.Event{
			Type:    state.EventUIUploadImage,
			Payload: state.ImageFilePayload{Name: reader.URI().Name(), Data: data},
		})
	}, d.win)
	open.SetFilter(storage.NewExtensionFileFilter(imageExtensions))
	open.Show()
}

func (d *productDialog) update(st state.ProductDialogState) {
	if !st.Visible {
		if d.visible && d.dlg != nil {
			d.hiding = true
			d.dlg.Hide()
			d.hiding = false
		}
		d.visible = false
		return
	}

	if !d.visible {
		// Поля заполняются из состояния только при открытии, дальше их ведёт пользователь.
		d.suppress = true
		d.name.SetText(st.Form.Name)
		d.description.SetText(st.Form.Description)
		d.price.SetText(st.Form.Price)
		d.category.SetText(st.Form.Category)
		d.stock.SetText(st.Form.Stock)
		d.suppress = false
		d.visible = true
		d.previewURL = ""
		d.open(st.Title)
	}

	if st.Preview != d.previewURL {
		d.previewURL = st.Preview
		d.m.images.Bind(d.preview, st.Preview)
	}
	enable(d.save, !st.Busy)
	enable(d.upload, !st.Busy)
}
