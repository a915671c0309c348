package model

import "github.com/google/uuid"

// NewID возвращает идентификатор UUIDv7, упорядоченный по времени создания.
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
