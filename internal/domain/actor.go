package domain

import (
	"slices"
	"time"
)

// CapabilityAccessCheckout: право проходить оформление заказа.
const CapabilityAccessCheckout = "access checkout"

const (
	RoleAnonymous     = "anonymous"
	RoleAuthenticated = "authenticated"
)

// Session связывает токен сессии с аккаунтом и анонимными корзинами.
type Session struct {
	Token     string
	AccountID string
	// CartOrderIDs: корзины, созданные в этой сессии.
	CartOrderIDs []string
	// CompletedOrderIDs: заказы, оформленные в этой сессии (нужны гостю для страницы завершения).
	CompletedOrderIDs []string
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

func (s *Session) HasCart(orderID string) bool {
	return slices.Contains(s.CartOrderIDs, orderID)
}

func (s *Session) HasCompleted(orderID string) bool {
	return slices.Contains(s.CompletedOrderIDs, orderID)
}

// Associated: заказ был создан или оформлен в этой сессии.
func (s *Session) Associated(orderID string) bool {
	return s.HasCart(orderID) || s.HasCompleted(orderID)
}

func (s *Session) AddCart(orderID string) {
	if !s.HasCart(orderID) {
		s.CartOrderIDs = append(s.CartOrderIDs, orderID)
	}
}

func (s *Session) RemoveCart(orderID string) {
	s.CartOrderIDs = slices.DeleteFunc(s.CartOrderIDs, func(id string) bool { return id == orderID })
}

// MarkCompleted переносит заказ из корзин в оформленные.
func (s *Session) MarkCompleted(orderID string) {
	s.RemoveCart(orderID)
	if !s.HasCompleted(orderID) {
		s.CompletedOrderIDs = append(s.CompletedOrderIDs, orderID)
	}
}

// Clone возвращает копию с независимыми срезами.
func (s Session) Clone() Session {
	s.CartOrderIDs = slices.Clone(s.CartOrderIDs)
	s.CompletedOrderIDs = slices.Clone(s.CompletedOrderIDs)
	return s
}

// Actor: текущий пользователь запроса, возможно анонимный.
type Actor struct {
	AccountID string
	Email     string
	Roles     []string
	Session   Session
	// IPAddress: адрес клиента текущего запроса.
	IPAddress string
}

// AnonymousActor создаёт анонимного актора для сессии.
func AnonymousActor(session Session) Actor {
	return Actor{Roles: []string{RoleAnonymous}, Session: session}
}

// Authenticated: у актора есть аккаунт.
func (a Actor) Authenticated() bool {
	return a.AccountID != ""
}

// Associated: заказ привязан к сессии актора.
func (a Actor) Associated(orderID string) bool {
	return a.Session.Associated(orderID)
}

func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}
