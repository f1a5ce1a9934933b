package service

import (
	"context"
	"net/http"
	"sync"

	"github.com/mmeshcher/paymesh/internal/model"
	"github.com/mmeshcher/paymesh/internal/peer"
	"github.com/mmeshcher/paymesh/internal/repository"
)

var errRemoteNotFound error = &peer.RejectedError{StatusCode: http.StatusNotFound, Detail: "not found"}

type stubUserRepo struct {
	mu    sync.Mutex
	users map[string]model.User

	getErr error
}

func newStubUserRepo(users ...model.User) *stubUserRepo {
	r := &stubUserRepo{users: map[string]model.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *stubUserRepo) CreateUser(ctx context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; ok {
		return repository.ErrUserExists
	}
	r.users[u.ID] = u
	return nil
}

func (r *stubUserRepo) GetUser(ctx context.Context, id string) (*model.User, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r *stubUserRepo) UserExists(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.users[id]
	return ok, nil
}

type stubOrderRepo struct {
	mu     sync.Mutex
	orders map[string]model.Order

	listErr error
}

func newStubOrderRepo(orders ...model.Order) *stubOrderRepo {
	r := &stubOrderRepo{orders: map[string]model.Order{}}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *stubOrderRepo) CreateOrder(ctx context.Context, o model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return repository.ErrOrderExists
	}
	r.orders[o.ID] = o
	return nil
}

func (r *stubOrderRepo) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &o, nil
}

func (r *stubOrderRepo) GetOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			res = append(res, o)
		}
	}
	return res, nil
}

type stubPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]model.Payment
	inserts  int

	// hideFromLookup имитирует гонку: проверка идемпотентности не видит платёж,
	// который уже записан параллельным запросом.
	hideFromLookup bool
}

func newStubPaymentRepo() *stubPaymentRepo {
	return &stubPaymentRepo{payments: map[string]model.Payment{}}
}

func (r *stubPaymentRepo) CreatePayment(ctx context.Context, p model.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if _, ok := r.payments[p.ID]; ok {
		return repository.ErrPaymentExists
	}
	r.payments[p.ID] = p
	return nil
}

func (r *stubPaymentRepo) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || r.hideFromLookup {
		return nil, repository.ErrPaymentNotFound
	}
	return &p, nil
}

func (r *stubPaymentRepo) GetLatestPaymentByOrder(ctx context.Context, orderID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.Payment
	for _, p := range r.payments {
		if p.OrderID != orderID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			cp := p
			latest = &cp
		}
	}
	if latest == nil {
		return nil, repository.ErrPaymentNotFound
	}
	return latest, nil
}

func (r *stubPaymentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

// stubUsers подменяет удалённый сервис пользователей.
type stubUsers struct {
	mu    sync.Mutex
	users map[string]model.User
	err   error
	calls int
}

func (s *stubUsers) GetUser(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, errRemoteNotFound
	}
	return &u, nil
}

// stubOrders подменяет удалённый сервис заказов.
type stubOrders struct {
	mu     sync.Mutex
	orders map[string]model.OrderStatusView
	owners map[string]model.User
	lists  map[string][]model.Order
	err    error
	calls  int
}

func (s *stubOrders) GetOrdersForUser(ctx context.Context, userID string) (*model.User, []model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, nil, s.err
	}
	u, ok := s.owners[userID]
	if !ok {
		return nil, nil, errRemoteNotFound
	}
	return &u, s.lists[userID], nil
}

func (s *stubOrders) GetOrderStatus(ctx context.Context, orderID string) (*model.OrderStatusView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	v, ok := s.orders[orderID]
	if !ok {
		return nil, errRemoteNotFound
	}
	return &v, nil
}
