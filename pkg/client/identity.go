package client

import (
	"fmt"
	"os"
	"strings"
)

// LoadToken reads a caller identity token from path. The file holds the raw
// token, optionally followed by a trailing newline; auditctl writes tokens in
// this format.
func LoadToken(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", fmt.Errorf("token file %q is empty", path)
	}
	return token, nil
}

// NewFromTokenFile creates a client authenticated with the token stored at
// path:
//
//	c, err := client.NewFromTokenFile(
//	    "https://audit.internal:8080",
//	    os.ExpandEnv("$HOME/.auditctl/token"),
//	)
func NewFromTokenFile(baseURL, path string, opts ...Option) (*Client, error) {
	token, err := LoadToken(path)
	if err != nil {
		return nil, err
	}
	return New(baseURL, append([]Option{WithToken(token)}, opts...)...), nil
}
