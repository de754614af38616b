package storage

import "errors"

// ErrKeyNotFound is returned when no key record matches the requested ID.
var ErrKeyNotFound = errors.New("api key not found")

// ErrKeyExists is returned when storing a key whose ID is already taken.
var ErrKeyExists = errors.New("api key already exists")
