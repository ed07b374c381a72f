package shopclient

import (
	"errors"
	"fmt"

	"storefront/client/internal/state"
)

// LoginRequest описывает тело запроса /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse содержит токен и данные пользователя.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

// RegisterRequest описывает тело запроса /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// CartItemRequest отправляется в POST/PUT/DELETE /cart/.
type CartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity,omitempty"`
}

// OrderRequest отправляется в POST /orders/.
type OrderRequest struct {
	ShippingAddress string `json:"shipping_address"`
}

// UploadResponse содержит ответ /products/upload-image.
type UploadResponse struct {
	ImageURL string `json:"image_url"`
}

// MessageResponse содержит подтверждение операции.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse содержит тело ошибки сервера.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Error описывает проблему при запросах к API магазина.
type Error struct {
	Op      string
	Kind    state.ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "shop client error"
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Err, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage возвращает сообщение сервера дословно, если оно есть, иначе fallback.
func (e *Error) UserMessage(fallback string) string {
	if e != nil && e.Message != "" {
		return e.Message
	}
	return fallback
}

// IsUnauthorized сообщает, что запрос отклонён с 401.
func IsUnauthorized(err error) bool {
	var cErr *Error
	return errors.As(err, &cErr) && cErr.Kind == state.ErrorKindUnauthorized
}

func wrapError(op string, kind state.ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
