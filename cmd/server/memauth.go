package main

import (
	"sync"

	"github.com/eclore/eclore/internal/models"
)

// memAuthStore keeps accounts in memory when the server runs without
// persistence. Unlike the other stores, auth cannot be nil: signup and login
// must still work.
type memAuthStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemAuthStore() *memAuthStore {
	return &memAuthStore{users: map[string]*models.User{}}
}

func (m *memAuthStore) FindUserByEmail(email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[email]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, nil
}

func (m *memAuthStore) AddUser(u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *u
	m.users[u.Email] = &copy
	return nil
}
