package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 认证相关 Prometheus 指标。
var (
	RegisterTotal               prometheus.Counter
	LoginSuccessTotal           prometheus.Counter
	LoginFailureTotal           prometheus.Counter
	PasswordResetRequestedTotal prometheus.Counter
	PasswordResetCompletedTotal prometheus.Counter
	ResetMailFailureTotal       prometheus.Counter
	RateLimitRejectedTotal      prometheus.Counter
)

var initOnce sync.Once

// InitMetrics 注册所有指标，可重复调用（幂等）。
func InitMetrics() {
	initOnce.Do(func() {
		RegisterTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_register_total",
			Help: "Total number of successful registrations.",
		})
		LoginSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_login_success_total",
			Help: "Total number of successful logins.",
		})
		LoginFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_login_failure_total",
			Help: "Total number of rejected logins.",
		})
		PasswordResetRequestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_password_reset_requested_total",
			Help: "Total number of password reset mails requested.",
		})
		PasswordResetCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_password_reset_completed_total",
			Help: "Total number of completed password resets.",
		})
		ResetMailFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_reset_mail_failure_total",
			Help: "Total number of reset mails that failed to send.",
		})
		RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_rate_limit_rejected_total",
			Help: "Total number of requests rejected by the rate limiter.",
		})

		prometheus.MustRegister(
			RegisterTotal,
			LoginSuccessTotal,
			LoginFailureTotal,
			PasswordResetRequestedTotal,
			PasswordResetCompletedTotal,
			ResetMailFailureTotal,
			RateLimitRejectedTotal,
		)
	})
}
