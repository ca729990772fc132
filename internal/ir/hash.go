package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix leaves
// room for changing the encoding later.
const (
	DomainKernel  = "tensorc/kernel/v1"
	DomainRequest = "tensorc/request/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as hex.
// The null separator keeps domain and data from running together.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// KernelID computes the content-addressed ID of a compiled kernel. Two
// compilations producing the same IR get the same ID.
func KernelID(fn *Function) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("KernelID: nil function")
	}
	canonical, err := MarshalCanonical(EncodeNode(fn))
	if err != nil {
		return "", fmt.Errorf("KernelID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainKernel, canonical), nil
}

// RequestID computes the ID of a compilation request: the concrete
// statement text, the target name and the compiler options. Options must be
// canonically encodable.
func RequestID(stmt, target string, options map[string]any) (string, error) {
	if options == nil {
		options = map[string]any{}
	}
	obj := map[string]any{
		"stmt":     stmt,
		"target":   target,
		"options":  options,
		"compiler": CompilerVersion,
		"ir":       IRVersion,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("RequestID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}

// MustKernelID is like KernelID but panics on error.
// Use only in tests or when the function is known to be valid.
func MustKernelID(fn *Function) string {
	id, err := KernelID(fn)
	if err != nil {
		panic(err)
	}
	return id
}

// MustRequestID is like RequestID but panics on error.
func MustRequestID(stmt, target string, options map[string]any) string {
	id, err := RequestID(stmt, target, options)
	if err != nil {
		panic(err)
	}
	return id
}
