package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// shopTheme задаёт светлую палитру витрины.
type shopTheme struct {
	base fyne.Theme
}

func newShopTheme() fyne.Theme {
	return &shopTheme{base: theme.LightTheme()}
}

func (t *shopTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNameBackground:
		return color.NRGBA{R: 248, G: 248, B: 246, A: 255}
	case theme.ColorNamePrimary:
		return color.NRGBA{R: 13, G: 110, B: 253, A: 255}
	case theme.ColorNameSuccess:
		return color.NRGBA{R: 25, G: 135, B: 84, A: 255}
	case theme.ColorNameError:
		return color.NRGBA{R: 220, G: 53, B: 69, A: 255}
	case theme.ColorNameInputBackground:
		return color.White
	default:
		return t.base.Color(name, variant)
	}
}

func (t *shopTheme) Font(style fyne.TextStyle) fyne.Resource {
	return t.base.Font(style)
}

func (t *shopTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return t.base.Icon(name)
}

func (t *shopTheme) Size(name fyne.ThemeSizeName) float32 {
	if name == theme.SizeNameInnerPadding {
		return 6
	}
	return t.base.Size(name)
}
