package domain

import "errors"

// 核心业务错误
var (
	ErrInvalidDomain         = errors.New("invalid domain")
	ErrAddressSpaceExhausted = errors.New("address space exhausted")
	ErrRateLimited           = errors.New("rate limited")
	ErrNoDomainsAvailable    = errors.New("no domains available")
	ErrDomainNotFound        = errors.New("domain not found")
	ErrInvalidTransition     = errors.New("invalid domain state transition")
)
