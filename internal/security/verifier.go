package security

import (
	"crypto/subtle"
	"fmt"
	"net/netip"
	"strings"

	"go.uber.org/zap"
)

// SecretHeader carries the shared webhook secret from the provider.
const SecretHeader = "X-Webhook-Secret"

// Verifier decides whether an inbound payment notification originates
// from a trusted source. Both configured checks must pass; with nothing
// configured every request is trusted, which is an explicit opt-out and
// is logged loudly at construction.
type Verifier struct {
	secret    string
	allowlist []netip.Prefix
	logger    *zap.Logger
}

func NewVerifier(secret string, cidrs []string, logger *zap.Logger) (*Verifier, error) {
	allowlist := make([]netip.Prefix, 0, len(cidrs))
	for _, raw := range cidrs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid allowlist CIDR %q: %w", raw, err)
		}

		allowlist = append(allowlist, prefix.Masked())
	}

	if secret == "" && len(allowlist) == 0 {
		logger.Warn("Webhook verification disabled: no secret and no allowlist configured, trusting every caller")
	}

	return &Verifier{
		secret:    secret,
		allowlist: allowlist,
		logger:    logger,
	}, nil
}

// IsTrusted checks the secret header and the caller address against the
// configured policy. headers holds the request headers; sourceAddress is
// the transport-level peer.
func (v *Verifier) IsTrusted(headers map[string]string, sourceAddress string) bool {
	if v.secret != "" {
		presented := headerValue(headers, SecretHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(v.secret)) != 1 {
			v.logger.Warn("Webhook rejected: secret mismatch")
			return false
		}
	}

	if len(v.allowlist) > 0 {
		addr, ok := v.resolveCaller(headers, sourceAddress)
		if !ok {
			v.logger.Warn(
				"Webhook rejected: unparseable caller address",
				zap.String("source", sourceAddress),
			)

			return false
		}

		if !v.allowed(addr) {
			v.logger.Warn(
				"Webhook rejected: caller outside allowlist",
				zap.String("caller", addr.String()),
			)

			return false
		}
	}

	return true
}

// resolveCaller prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the transport peer.
func (v *Verifier) resolveCaller(headers map[string]string, sourceAddress string) (netip.Addr, bool) {
	if forwarded := headerValue(headers, "X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if addr, err := netip.ParseAddr(first); err == nil {
			return addr.Unmap(), true
		}
	}

	if realIP := headerValue(headers, "X-Real-IP"); realIP != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(realIP)); err == nil {
			return addr.Unmap(), true
		}
	}

	host := sourceAddress
	if parsed, err := netip.ParseAddrPort(sourceAddress); err == nil {
		return parsed.Addr().Unmap(), true
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}

	return addr.Unmap(), true
}

// allowed matches the caller against the CIDR allowlist. Prefix.Contains
// compares the leading prefix bits and never matches across address
// families, so an IPv4 block can never admit an IPv6 caller.
func (v *Verifier) allowed(addr netip.Addr) bool {
	for _, prefix := range v.allowlist {
		if prefix.Contains(addr) {
			return true
		}
	}

	return false
}

func headerValue(headers map[string]string, name string) string {
	if val, ok := headers[name]; ok {
		return val
	}

	// Header maps from fasthttp arrive canonicalized, but be tolerant of
	// lowercase keys from tests and proxies.
	for k, val := range headers {
		if strings.EqualFold(k, name) {
			return val
		}
	}

	return ""
}
