package authapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Throttles are derived from recent audit_log rows rather than a separate
// counter store. Without a pool they are disabled.

func (h *Handler) checkLoginIPThrottle(ctx context.Context, ip net.IP, now time.Time) (bool, time.Duration, error) {
	if ip == nil || h.cfg.LoginIPMax <= 0 {
		return false, 0, nil
	}
	cut := now.Add(-h.cfg.LoginIPWindow)
	count, err := h.countAuditByIP(ctx, "auth.login.failed", ip, cut)
	if err != nil {
		return false, 0, err
	}
	if count >= h.cfg.LoginIPMax {
		return true, h.cfg.LoginIPWindow, nil
	}
	return false, 0, nil
}

func (h *Handler) checkRegisterIPThrottle(ctx context.Context, ip net.IP, now time.Time) (bool, time.Duration, error) {
	if ip == nil || h.cfg.RegisterIPMax <= 0 {
		return false, 0, nil
	}
	cut := now.Add(-h.cfg.RegisterIPWindow)
	count, err := h.countAuditByIP(ctx, "auth.register.success", ip, cut)
	if err != nil {
		return false, 0, err
	}
	if count >= h.cfg.RegisterIPMax {
		return true, h.cfg.RegisterIPWindow, nil
	}
	return false, 0, nil
}

func (h *Handler) countAuditByIP(ctx context.Context, action string, ip net.IP, since time.Time) (int, error) {
	if h.pool == nil || ip == nil {
		return 0, nil
	}
	var n int
	err := h.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM `+h.auditTable()+`
		WHERE action = $1
		  AND ip = $2
		  AND created_at >= $3
	`, action, ip.String(), since).Scan(&n)
	return n, err
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
