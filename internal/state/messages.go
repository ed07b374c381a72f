package state

import (
	"errors"

	"storefront/client/internal/session"
	"storefront/client/internal/vendor"
)

// Тексты, которые видит пользователь.
const (
	MsgFillAllFields     = "Please fill in all fields"
	MsgLoginFailed       = "Login failed"
	MsgLoginError        = "An error occurred during login"
	MsgRegistered        = "Registration successful! Please login."
	MsgRegisterFailed    = "Registration failed"
	MsgRegisterError     = "An error occurred during registration"
	MsgLoginToAdd        = "Please login to add items to cart"
	MsgLoginRequired     = "Please login to continue"
	MsgInvalidProductID  = "Invalid product ID format"
	MsgSessionExpired    = "Session expired. Please login again."
	MsgAddedToCart       = "Item added to cart successfully!"
	MsgAddToCartFailed   = "Failed to add item to cart"
	MsgCartUpdateFailed  = "Failed to update cart"
	MsgCartLoadFailed    = "Error loading cart"
	MsgCartCountFailed   = "Error updating cart count"
	MsgAddressRequired   = "Please enter a shipping address"
	MsgOrderPlaced       = "Order placed successfully!"
	MsgOrderFailed       = "Failed to place order"
	MsgOrdersLoadFailed  = "Error loading orders"
	MsgVendorOnly        = "Only vendors can manage products"
	MsgProductLoadFailed = "Error loading product"
	MsgUnsupportedImage  = "Unsupported image type"
	MsgUploadFailed      = "Failed to upload image. Please try again."
	MsgSaved             = "Product saved successfully!"
	MsgSaveFailed        = "Failed to save product"
	MsgConfirmDelete     = "Are you sure you want to delete this product?"
	MsgDeleted           = "Product deleted successfully"
	MsgDeleteFailed      = "Error deleting product"
	MsgNameRequired      = "Product name is required"
	MsgInvalidPrice      = "Price must be a valid number"
	MsgInvalidStock      = "Stock must be a whole number"
	MsgInvalidRole       = "Please choose a valid role"
)

func validationMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrEmptyFields):
		return MsgFillAllFields
	case errors.Is(err, session.ErrInvalidRole):
		return MsgInvalidRole
	case errors.Is(err, vendor.ErrNameRequired):
		return MsgNameRequired
	case errors.Is(err, vendor.ErrInvalidPrice):
		return MsgInvalidPrice
	case errors.Is(err, vendor.ErrInvalidStock):
		return MsgInvalidStock
	case errors.Is(err, vendor.ErrUnsupportedImage):
		return MsgUnsupportedImage
	default:
		return err.Error()
	}
}
