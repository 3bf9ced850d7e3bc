package orders

import "eveBot/internal/domain"

// Fill is one immutable execution against an order.
type Fill struct {
	Size       float64           `json:"size"`
	Price      float64           `json:"price"`
	TotalPrice float64           `json:"totalPrice"`
	Fee        float64           `json:"fee"`
	CreatedAt  int64             `json:"createdAt"`
	Source     domain.FillSource `json:"source"`
}
