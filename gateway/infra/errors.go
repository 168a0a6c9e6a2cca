package infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"api-gateway/gateway/domain"
)

// classify traduz o erro do transporte para a taxonomia do gateway.
// O deadline da requisição tem prioridade: qualquer falha depois dele é timeout.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %w", domain.ErrBackendUnreachable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrBackendUnreachable, err)
}

// ErrorKind dá um rótulo curto para logs; o cliente sempre recebe o mesmo 504.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection_refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection_reset"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "connection_refused"
	case strings.Contains(msg, "connection reset"):
		return "connection_reset"
	case strings.Contains(msg, "EOF"):
		return "closed"
	}

	if errors.Is(err, domain.ErrBackendUnreachable) {
		return "unreachable"
	}
	return "internal"
}
