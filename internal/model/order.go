package model

import (
	"fmt"
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusAccepted  OrderStatus = "accepted"
	StatusRejected  OrderStatus = "rejected"
	StatusDelivered OrderStatus = "delivered"
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:  {StatusAccepted, StatusRejected},
	StatusAccepted: {StatusDelivered},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return st, nil
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusDelivered:
		return true
	}
	return false
}

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID              string       `json:"id"`
	OrderNumber     string       `json:"order_number"`
	CustomerAddress string       `json:"customer_address"`
	RestaurantName  string       `json:"restaurant_name"`
	RestaurantID    string       `json:"restaurant_id"`
	CustomerID      string       `json:"customer_id"`
	DriverID        string       `json:"driver_id,omitempty"`
	TotalAmount     float64      `json:"total_amount"`
	Status          OrderStatus  `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	History         []OrderEvent `json:"status_history,omitempty"`
}

type OrderEvent struct {
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderFilter selects orders. A zero Month means no month bound, otherwise
// the whole calendar month (UTC) containing Month.
type OrderFilter struct {
	Statuses    []OrderStatus `json:"statuses,omitempty"`
	Restaurant  string        `json:"restaurant,omitempty"`
	Month       time.Time     `json:"month,omitempty"`
	MineOnly    bool          `json:"mine_only,omitempty"`
	Newest      bool          `json:"newest,omitempty"`
	WithHistory bool          `json:"with_history,omitempty"`
}

// Active is the live list shown to a driver: open orders, oldest first.
func Active() OrderFilter {
	return OrderFilter{Statuses: []OrderStatus{StatusPending, StatusAccepted}}
}

// History is the driver's own orders, newest first, with status history.
func History() OrderFilter {
	return OrderFilter{MineOnly: true, Newest: true, WithHistory: true}
}

// MonthRange returns the [start, end) bounds of the filter month.
func (f OrderFilter) MonthRange() (time.Time, time.Time, bool) {
	if f.Month.IsZero() {
		return time.Time{}, time.Time{}, false
	}
	m := f.Month.UTC()
	start := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), true
}
