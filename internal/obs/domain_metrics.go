package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ReconcileTotal counts status reconciliation outcomes per trigger source.
	ReconcileTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound gateway webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// PaymentInitiateTotal counts transaction initialisation outcomes.
	PaymentInitiateTotal *prometheus.CounterVec
	// GatewayRequestTotal counts outbound gateway calls by operation and result.
	GatewayRequestTotal *prometheus.CounterVec
	// NotificationDeliveryTotal tracks notification delivery outcomes per recipient kind.
	NotificationDeliveryTotal *prometheus.CounterVec
	// NotificationAttempts counts individual email send attempts regardless of outcome.
	NotificationAttempts prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconcile_total",
			Help:      "Count of payment status reconciliation outcomes by trigger source.",
		}, []string{"source", "outcome"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed gateway webhooks by outcome.",
		}, []string{"result"})
		PaymentInitiateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_initiate_total",
			Help:      "Count of payment initialisation outcomes.",
		}, []string{"result"})
		GatewayRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_request_total",
			Help:      "Count of outbound payment gateway calls by operation and result.",
		}, []string{"op", "result"})
		NotificationDeliveryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_delivery_total",
			Help:      "Count of notification delivery outcomes by recipient kind.",
		}, []string{"recipient", "result"})
		NotificationAttempts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_attempts_total",
			Help:      "Total number of email send attempts including retries.",
		})

		mustRegisterCollector(reg, ReconcileTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReconcileTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentWebhookTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentInitiateTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentInitiateTotal = v
			}
		})
		mustRegisterCollector(reg, GatewayRequestTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				GatewayRequestTotal = v
			}
		})
		mustRegisterCollector(reg, NotificationDeliveryTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				NotificationDeliveryTotal = v
			}
		})
		mustRegisterCollector(reg, NotificationAttempts, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				NotificationAttempts = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
