package httptransport

import (
	"errors"
	"net/http"

	"ghostmail/internal/domain"
)

// 公开接口错误消息
const (
	MsgRateLimited     = "rate limited"
	MsgInvalidDomain   = "invalid domain"
	MsgNoDomain        = "no domain"
	MsgNoDomains       = "no domains available"
	MsgUnavailable     = "could not allocate mailbox, try again later"
	MsgInternalError   = "internal server error"
	MsgDomainNotFound  = "domain not found"
	MsgInvalidState    = "invalid state"
	MsgInvalidMove     = "invalid domain state transition"
	MsgPublicSubmitted = "ok"
)

type errorMapping struct {
	status int
	msg    string
}

// 业务错误 -> HTTP 状态码与消息
var errorStatus = []struct {
	err error
	errorMapping
}{
	{domain.ErrRateLimited, errorMapping{http.StatusTooManyRequests, MsgRateLimited}},
	{domain.ErrInvalidDomain, errorMapping{http.StatusBadRequest, MsgInvalidDomain}},
	{domain.ErrNoDomainsAvailable, errorMapping{http.StatusServiceUnavailable, MsgNoDomains}},
	{domain.ErrAddressSpaceExhausted, errorMapping{http.StatusInternalServerError, MsgUnavailable}},
	{domain.ErrDomainNotFound, errorMapping{http.StatusNotFound, MsgDomainNotFound}},
	{domain.ErrInvalidTransition, errorMapping{http.StatusConflict, MsgInvalidMove}},
}

// statusFor 返回错误对应的状态码和消息，未知错误按 500 处理
func statusFor(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.msg
		}
	}
	return http.StatusInternalServerError, MsgInternalError
}
