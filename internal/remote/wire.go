package remote

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ghaggin/courier/internal/model"
)

// Request bodies shared by Client and the data service.

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type VerifyRequest struct {
	Token string `json:"token"`
}

type RecoverRequest struct {
	Email string `json:"email"`
}

type CompleteRecoveryRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type StatusRequest struct {
	Status model.OrderStatus `json:"status"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

const monthLayout = "2006-01"

// EncodeFilter turns a filter into the orders query string.
func EncodeFilter(f model.OrderFilter) url.Values {
	q := url.Values{}
	for _, s := range f.Statuses {
		q.Add("status", string(s))
	}
	if f.Restaurant != "" {
		q.Set("restaurant", f.Restaurant)
	}
	if !f.Month.IsZero() {
		q.Set("month", f.Month.UTC().Format(monthLayout))
	}
	if f.MineOnly {
		q.Set("mine", "true")
	}
	if f.Newest {
		q.Set("order", "desc")
	}
	if f.WithHistory {
		q.Set("history", "true")
	}
	return q
}

func DecodeFilter(q url.Values) (model.OrderFilter, error) {
	var f model.OrderFilter
	for _, raw := range q["status"] {
		s, err := model.ParseOrderStatus(raw)
		if err != nil {
			return model.OrderFilter{}, err
		}
		f.Statuses = append(f.Statuses, s)
	}
	f.Restaurant = q.Get("restaurant")

	if m := q.Get("month"); m != "" {
		month, err := time.Parse(monthLayout, m)
		if err != nil {
			return model.OrderFilter{}, fmt.Errorf("invalid month %q", m)
		}
		f.Month = month
	}

	var err error
	if f.MineOnly, err = parseBool(q, "mine"); err != nil {
		return model.OrderFilter{}, err
	}
	if f.WithHistory, err = parseBool(q, "history"); err != nil {
		return model.OrderFilter{}, err
	}
	switch q.Get("order") {
	case "", "asc":
	case "desc":
		f.Newest = true
	default:
		return model.OrderFilter{}, fmt.Errorf("invalid order %q", q.Get("order"))
	}
	return f, nil
}

func parseBool(q url.Values, key string) (bool, error) {
	v := q.Get(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, v)
	}
	return b, nil
}
