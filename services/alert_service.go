package services

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/firstnattapon/24wash-backend/config"
	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/resend/resend-go/v2"
)

const alertEmailTemplate = `<h2>24WASH system error</h2>
<p><strong>{{.Subject}}</strong></p>
<pre>{{.Detail}}</pre>
<p>Time: {{.Time}}</p>`

type AlertMetrics struct {
	sendLatency prometheus.Histogram
	errorCount  prometheus.Counter
	sentCount   prometheus.Counter
}

// AlertService emails the operator when processing ends in a system error.
// Sends are best effort and never block the reply to the user beyond the
// configured timeout.
type AlertService struct {
	config  *config.AlertConfig
	client  *resend.Client
	metrics *AlertMetrics
	timeout time.Duration
}

func NewAlertService(cfg *config.AlertConfig) *AlertService {
	return NewAlertServiceWithRegistry(cfg, prometheus.DefaultRegisterer)
}

func NewAlertServiceWithRegistry(cfg *config.AlertConfig, reg prometheus.Registerer) *AlertService {
	logger.GetLogger().Infow("Initializing alert service",
		"operator", cfg.OperatorEmail,
		"apikey", logger.MaskAPIKey(cfg.ResendAPIKey))

	metrics := &AlertMetrics{
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wash24_alert_send_duration_seconds",
			Help:    "Time taken to send operator alert emails",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		}),
		errorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wash24_alert_errors_total",
			Help: "Total number of alert sending errors",
		}),
		sentCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wash24_alerts_sent_total",
			Help: "Total number of alerts sent",
		}),
	}
	reg.MustRegister(metrics.sendLatency)
	reg.MustRegister(metrics.errorCount)
	reg.MustRegister(metrics.sentCount)

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &AlertService{
		config:  cfg,
		client:  resend.NewClient(cfg.ResendAPIKey),
		metrics: metrics,
		timeout: timeout,
	}
}

// NotifySystemError sends an alert email to the operator. Failures are
// logged, never propagated: alerting must not turn a degraded decision into
// a failed one.
func (s *AlertService) NotifySystemError(ctx context.Context, subject, detail string) {
	startTime := time.Now()
	log := logger.GetLogger()
	defer func() {
		s.metrics.sendLatency.Observe(time.Since(startTime).Seconds())
	}()

	tmpl, err := template.New("alert").Parse(alertEmailTemplate)
	if err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to parse alert template", "error", err)
		return
	}

	var body strings.Builder
	if err := tmpl.Execute(&body, map[string]string{
		"Subject": subject,
		"Detail":  detail,
		"Time":    time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to execute alert template", "error", err)
		return
	}

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromAddress),
		To:      []string{s.config.OperatorEmail},
		Subject: fmt.Sprintf("[24WASH] %s", subject),
		Html:    body.String(),
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.client.Emails.SendWithContext(sendCtx, params); err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to send operator alert",
			"error", err,
			"subject", subject)
		return
	}

	s.metrics.sentCount.Inc()
	log.Infow("Operator alert sent", "subject", subject)
}
