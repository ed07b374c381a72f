package catalog

import "strings"

// Product описывает товар в том виде, в каком его отдаёт сервер.
type Product struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Stock       int      `json:"stock"`
	Category    string   `json:"category"`
	Images      []string `json:"images"`
	VendorEmail string   `json:"vendor_email"`
}

// CartItem описывает позицию корзины. Сервер может вложить полный товар в поле product
// вместо плоских name/price/stock.
type CartItem struct {
	ProductID string   `json:"product_id"`
	Name      string   `json:"name,omitempty"`
	Price     float64  `json:"price,omitempty"`
	Quantity  int      `json:"quantity"`
	Stock     int      `json:"stock,omitempty"`
	Product   *Product `json:"product,omitempty"`
}

// Cart хранит корзину текущего пользователя.
type Cart struct {
	ID    string     `json:"_id,omitempty"`
	Items []CartItem `json:"items"`
}

// Normalize заполняет пустые поля позиций из вложенного товара.
func (c *Cart) Normalize() {
	if c == nil {
		return
	}
	for i := range c.Items {
		item := &c.Items[i]
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.Product == nil {
			continue
		}
		if item.ProductID == "" {
			item.ProductID = item.Product.ID
		}
		if item.Name == "" {
			item.Name = item.Product.Name
		}
		if item.Price == 0 {
			item.Price = item.Product.Price
		}
		if item.Stock == 0 {
			item.Stock = item.Product.Stock
		}
	}
}

// Count возвращает число позиций (не штук) в корзине.
func (c *Cart) Count() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

// Order описывает оформленный заказ.
type Order struct {
	UserEmail       string     `json:"user_email"`
	Items           []CartItem `json:"items"`
	TotalAmount     float64    `json:"total_amount"`
	Status          string     `json:"status"`
	ShippingAddress string     `json:"shipping_address"`
	CreatedAt       string     `json:"created_at"`
}
