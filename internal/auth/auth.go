// Package auth issues and validates the signed tickets that bind a
// websocket connection to a combatant address, plus the admin token
// check for the season-reset surface.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ticket format: addr.expiryUnix.hexSignature. The signature covers
// addr and expiry; anyone holding the secret can mint one.
func Ticket(addr, secret string, ttl time.Duration) string {
	expiry := time.Now().Add(ttl).Unix()
	payload := fmt.Sprintf("%s.%d", addr, expiry)
	sig := hex.EncodeToString(hmacSHA256([]byte(secret), []byte(payload)))
	return payload + "." + sig
}

// Validate checks a ticket's signature and expiry and returns the
// combatant address it was minted for.
func Validate(ticket, secret string) (string, error) {
	parts := strings.Split(ticket, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed ticket")
	}
	addr, expiryStr, sig := parts[0], parts[1], parts[2]
	if addr == "" {
		return "", fmt.Errorf("empty address")
	}

	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid expiry: %w", err)
	}
	if time.Now().Unix() > expiry {
		return "", fmt.Errorf("ticket expired")
	}

	payload := addr + "." + expiryStr
	want := hex.EncodeToString(hmacSHA256([]byte(secret), []byte(payload)))
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return "", fmt.Errorf("signature mismatch")
	}
	return addr, nil
}

// ValidateAdmin compares a presented token against the configured admin
// token in constant time. An empty configured token rejects everything.
func ValidateAdmin(presented, configured string) error {
	if configured == "" {
		return fmt.Errorf("admin surface disabled")
	}
	if !hmac.Equal([]byte(presented), []byte(configured)) {
		return fmt.Errorf("invalid admin token")
	}
	return nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
