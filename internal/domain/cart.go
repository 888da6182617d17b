package domain

import "time"

// CartItem - позиция корзины.
type CartItem struct {
	ProductID string
	Quantity  int
}

// Cart - корзина пользователя. Одна на пользователя.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// Quantity возвращает количество товара в корзине.
func (c *Cart) Quantity(productID string) int {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}

// Set выставляет количество товара, сохраняя порядок позиций. qty <= 0 удаляет позицию.
func (c *Cart) Set(productID string, qty int) {
	for i, item := range c.Items {
		if item.ProductID != productID {
			continue
		}
		if qty <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
		c.Items[i].Quantity = qty
		return
	}
	if qty > 0 {
		c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: qty})
	}
}

// Remove удаляет позицию. Возвращает false, если её не было.
func (c *Cart) Remove(productID string) bool {
	for i, item := range c.Items {
		if item.ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

// Clone возвращает копию корзины.
func (c Cart) Clone() Cart {
	c.Items = append([]CartItem(nil), c.Items...)
	return c
}
