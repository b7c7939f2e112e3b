// Copyright 2022 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// NewJWTAuth creates an authentication provider that signs a fresh HS256
// token for every dial. The secret is 32 bytes (256 bits), as the engine API
// requires.
//
// See https://github.com/ethereum/execution-apis/blob/main/src/engine/authentication.md
// for more details about this authentication scheme.
func NewJWTAuth(jwtsecret [32]byte) HTTPAuth {
	return func(h http.Header) error {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iat": &jwt.NumericDate{Time: time.Now()},
		})
		s, err := token.SignedString(jwtsecret[:])
		if err != nil {
			return fmt.Errorf("failed to create JWT token: %w", err)
		}
		h.Set("Authorization", "Bearer "+s)
		return nil
	}
}

// LoadJWTSecret reads a hex encoded 32 byte secret from a file. A leading
// "0x" is accepted.
func LoadJWTSecret(path string) ([32]byte, error) {
	var secret [32]byte
	data, err := os.ReadFile(path)
	if err != nil {
		return secret, err
	}
	text := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	b, err := hex.DecodeString(text)
	if err != nil {
		return secret, fmt.Errorf("invalid JWT secret in %s: %w", path, err)
	}
	if len(b) != len(secret) {
		return secret, errors.New("invalid JWT secret length, want 32 bytes")
	}
	copy(secret[:], b)
	return secret, nil
}
