package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PlaceholderImage содержит встроенную SVG-заглушку "No Image" для товаров без картинки
// и для картинок, которые не удалось загрузить.
const PlaceholderImage = "data:image/svg+xml;base64,PHN2ZyB3aWR0aD0iMjAwIiBoZWlnaHQ9IjIwMCIgeG1sbnM9Imh0dHA6Ly93d3cudzMub3JnLzIwMDAvc3ZnIj48cmVjdCB3aWR0aD0iMjAwIiBoZWlnaHQ9IjIwMCIgZmlsbD0iI2VlZSIvPjx0ZXh0IHg9IjUwJSIgeT0iNTAlIiBmb250LWZhbWlseT0iQXJpYWwiIGZvbnQtc2l6ZT0iMTQiIGZpbGw9IiM5OTkiIHRleHQtYW5jaG9yPSJtaWRkbGUiIGR5PSIuM2VtIj5ObyBJbWFnZTwvdGV4dD48L3N2Zz4="

// ProductIDLength задаёт длину идентификатора товара на сервере (hex ObjectId).
const ProductIDLength = 24

const (
	MessageNoProducts    = "No products available"
	MessageLoadFailed    = "Error loading products. Please try again later."
	MessageCartEmpty     = "Your cart is empty"
	MessageNoOrders      = "You have no orders yet"
	defaultStaticRoot    = "/static/images/"
	uncategorizedDisplay = "Uncategorized"
)

// ErrInvalidProductID возвращается, если идентификатор не похож на серверный.
var ErrInvalidProductID = errors.New("catalog: invalid product id format")

var pricePrinter = message.NewPrinter(language.English)

// FormatPrice форматирует сумму как "$1,234.50".
func FormatPrice(amount float64) string {
	return pricePrinter.Sprintf("$%.2f", roundCents(amount))
}

func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// ValidateProductID проверяет идентификатор до любого сетевого вызова.
func ValidateProductID(id string) error {
	if len(id) != ProductIDLength || strings.TrimSpace(id) != id {
		return ErrInvalidProductID
	}
	return nil
}

// ResolveImageURL выбирает картинку для показа: первую из images, относительный путь
// дополняется staticRoot, пробелы кодируются. Без картинок возвращается заглушка.
func ResolveImageURL(images []string, staticRoot string) string {
	if len(images) == 0 {
		return PlaceholderImage
	}
	url := strings.TrimSpace(images[0])
	if url == "" {
		return PlaceholderImage
	}
	if staticRoot == "" {
		staticRoot = defaultStaticRoot
	}
	if !strings.HasPrefix(url, "http") && !strings.HasPrefix(url, "/") {
		url = strings.TrimRight(staticRoot, "/") + "/" + url
	}
	return strings.ReplaceAll(url, " ", "%20")
}

// ProductCard описывает карточку товара в каталоге.
type ProductCard struct {
	ID            string
	Name          string
	Description   string
	Category      string
	ImageURL      string
	FallbackImage string
	PriceText     string
	StockText     string
	InStock       bool
}

// ProductListView описывает список товаров вместе с пустым состоянием и ошибкой.
type ProductListView struct {
	Cards        []ProductCard
	Empty        bool
	EmptyMessage string
	ErrorMessage string
}

// RenderProducts строит карточки без фильтрации.
func RenderProducts(products []Product, staticRoot string) ProductListView {
	if len(products) == 0 {
		return ProductListView{Empty: true, EmptyMessage: MessageNoProducts}
	}
	cards := make([]ProductCard, 0, len(products))
	for _, p := range products {
		cards = append(cards, renderCard(p, staticRoot))
	}
	return ProductListView{Cards: cards}
}

// RenderProductsError строит блок ошибки вместо каталога.
func RenderProductsError() ProductListView {
	return ProductListView{ErrorMessage: MessageLoadFailed}
}

func renderCard(p Product, staticRoot string) ProductCard {
	category := strings.TrimSpace(p.Category)
	if category == "" {
		category = uncategorizedDisplay
	}
	return ProductCard{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Category:      category,
		ImageURL:      ResolveImageURL(p.Images, staticRoot),
		FallbackImage: PlaceholderImage,
		PriceText:     "Price: " + FormatPrice(p.Price),
		StockText:     fmt.Sprintf("Stock: %d", p.Stock),
		InStock:       p.Stock > 0,
	}
}

// Categories возвращает отсортированный список категорий для фильтра.
func Categories(products []Product) []string {
	seen := make(map[string]struct{})
	result := make([]string, 0)
	for _, p := range products {
		category := strings.TrimSpace(p.Category)
		if category == "" {
			continue
		}
		if _, ok := seen[category]; ok {
			continue
		}
		seen[category] = struct{}{}
		result = append(result, category)
	}
	sort.Strings(result)
	return result
}

// Badge показывает число позиций в корзине.
type Badge struct {
	Count   int
	Text    string
	Visible bool
}

// RenderBadge скрывает бейдж, когда корзина пуста.
func RenderBadge(cart *Cart) Badge {
	count := cart.Count()
	return Badge{Count: count, Text: fmt.Sprintf("%d", count), Visible: count > 0}
}

// CartRow описывает строку корзины со степпером количества.
type CartRow struct {
	ProductID    string
	Name         string
	ImageURL     string
	PriceText    string
	SubtotalText string
	Quantity     int
	Stock        int
	Decrement    int
	Increment    int
	CanDecrement bool
	CanIncrement bool
}

// CartView описывает корзину для отрисовки.
type CartView struct {
	Rows         []CartRow
	Empty        bool
	EmptyMessage string
	Total        float64
	TotalText    string
}

// CartTotal суммирует price*quantity по всем позициям.
func CartTotal(items []CartItem) float64 {
	total := 0.0
	for _, item := range items {
		total += item.Price * float64(item.Quantity)
	}
	return roundCents(total)
}

// RenderCart строит модель корзины. nil и пустая корзина дают $0.00 и сообщение.
func RenderCart(cart *Cart, staticRoot string) CartView {
	if cart == nil || len(cart.Items) == 0 {
		return CartView{Empty: true, EmptyMessage: MessageCartEmpty, TotalText: FormatPrice(0)}
	}
	normalized := Cart{ID: cart.ID, Items: append([]CartItem(nil), cart.Items...)}
	normalized.Normalize()
	rows := make([]CartRow, 0, len(normalized.Items))
	for _, item := range normalized.Items {
		rows = append(rows, renderCartRow(item, staticRoot))
	}
	total := CartTotal(normalized.Items)
	return CartView{Rows: rows, Total: total, TotalText: FormatPrice(total)}
}

func renderCartRow(item CartItem, staticRoot string) CartRow {
	var images []string
	if item.Product != nil {
		images = item.Product.Images
	}
	limit := maxQuantity(item.Stock)
	return CartRow{
		ProductID:    item.ProductID,
		Name:         item.Name,
		ImageURL:     ResolveImageURL(images, staticRoot),
		PriceText:    "Price: " + FormatPrice(item.Price),
		SubtotalText: FormatPrice(item.Price * float64(item.Quantity)),
		Quantity:     item.Quantity,
		Stock:        item.Stock,
		Decrement:    ClampQuantity(item.Quantity-1, item.Stock),
		Increment:    ClampQuantity(item.Quantity+1, item.Stock),
		CanDecrement: item.Quantity > 1,
		CanIncrement: item.Quantity < limit,
	}
}

// ClampQuantity ограничивает количество диапазоном [1, stock].
// Неизвестный остаток (stock <= 0) ограничивает только снизу.
func ClampQuantity(quantity, stock int) int {
	if quantity < 1 {
		quantity = 1
	}
	if limit := maxQuantity(stock); quantity > limit {
		quantity = limit
	}
	return quantity
}

func maxQuantity(stock int) int {
	if stock <= 0 {
		return math.MaxInt32
	}
	return stock
}

// OrderRow описывает строку истории заказов.
type OrderRow struct {
	Status    string
	TotalText string
	Items     string
	Address   string
	CreatedAt string
}

// OrdersView описывает историю заказов.
type OrdersView struct {
	Rows         []OrderRow
	Empty        bool
	EmptyMessage string
}

// RenderOrders строит историю заказов.
func RenderOrders(orders []Order) OrdersView {
	if len(orders) == 0 {
		return OrdersView{Empty: true, EmptyMessage: MessageNoOrders}
	}
	rows := make([]OrderRow, 0, len(orders))
	for _, o := range orders {
		units := 0
		for _, item := range o.Items {
			units += item.Quantity
		}
		rows = append(rows, OrderRow{
			Status:    o.Status,
			TotalText: FormatPrice(o.TotalAmount),
			Items:     fmt.Sprintf("%d item(s)", units),
			Address:   o.ShippingAddress,
			CreatedAt: o.CreatedAt,
		})
	}
	return OrdersView{Rows: rows}
}
