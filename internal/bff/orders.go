package bff

import (
	"context"
	"fmt"

	"github.com/ghaggin/courier/internal/model"
	"go.uber.org/zap"
)

// Base is one of the two order databases kept in step by the BFF.
type Base interface {
	SetOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) error
	CountOrders(ctx context.Context) (int, error)
}

type Connection struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

type ConnectionReport struct {
	Success     bool       `json:"success"`
	Drivers     Connection `json:"drivers"`
	Restaurants Connection `json:"restaurants"`
}

type Orders struct {
	drivers     Base
	restaurants Base
	log         *zap.Logger
}

func NewOrders(drivers, restaurants Base, log *zap.Logger) *Orders {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orders{drivers: drivers, restaurants: restaurants, log: log}
}

// UpdateStatus writes the drivers base first and stops there if it fails,
// so the restaurants base never runs ahead of it.
func (o *Orders) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	if err := o.drivers.SetOrderStatus(ctx, orderID, status); err != nil {
		o.log.Error("error updating drivers base", zap.String("order_id", orderID), zap.Error(err))
		return fmt.Errorf("drivers base: %w", err)
	}
	if err := o.restaurants.SetOrderStatus(ctx, orderID, status); err != nil {
		o.log.Error("error updating restaurants base", zap.String("order_id", orderID), zap.Error(err))
		return fmt.Errorf("restaurants base: %w", err)
	}
	return nil
}

func (o *Orders) TestConnections(ctx context.Context) (ConnectionReport, error) {
	if _, err := o.drivers.CountOrders(ctx); err != nil {
		o.log.Error("drivers base unreachable", zap.Error(err))
		return ConnectionReport{}, fmt.Errorf("drivers base: %w", err)
	}
	if _, err := o.restaurants.CountOrders(ctx); err != nil {
		o.log.Error("restaurants base unreachable", zap.Error(err))
		return ConnectionReport{}, fmt.Errorf("restaurants base: %w", err)
	}
	return ConnectionReport{
		Success:     true,
		Drivers:     Connection{Connected: true, Message: "drivers base connected"},
		Restaurants: Connection{Connected: true, Message: "restaurants base connected"},
	}, nil
}
