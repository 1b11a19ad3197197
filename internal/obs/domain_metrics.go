package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BillsCreatedTotal counts bill creation attempts by outcome.
	BillsCreatedTotal *prometheus.CounterVec
	// StockReservationTotal counts stock reservation outcomes (ok, insufficient, not_found).
	StockReservationTotal *prometheus.CounterVec
	// PaymentTopUpTotal counts payment top-up attempts by outcome.
	PaymentTopUpTotal *prometheus.CounterVec
	// NotificationsTotal counts outbound notification deliveries by kind and outcome.
	NotificationsTotal *prometheus.CounterVec
	// BillAmountCollected accumulates collected amounts by payment mode.
	BillAmountCollected *prometheus.CounterVec
	// LowStockRecords tracks the number of records below their low-stock threshold.
	LowStockRecords prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BillsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bills_created_total",
			Help:      "Count of bill creation attempts by outcome.",
		}, []string{"result"})
		StockReservationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_reservations_total",
			Help:      "Count of stock reservation outcomes.",
		}, []string{"result"})
		PaymentTopUpTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_topups_total",
			Help:      "Count of payment top-up attempts by outcome.",
		}, []string{"result"})
		NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of outbound notification deliveries.",
		}, []string{"kind", "result"})
		BillAmountCollected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_amount_collected_total",
			Help:      "Accumulated collected amounts by payment mode.",
		}, []string{"mode"})
		LowStockRecords = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "low_stock_records",
			Help:      "Number of stock records at or below their low-stock threshold.",
		})

		registerDomain(reg, BillsCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BillsCreatedTotal = v
			}
		})
		registerDomain(reg, StockReservationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				StockReservationTotal = v
			}
		})
		registerDomain(reg, PaymentTopUpTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentTopUpTotal = v
			}
		})
		registerDomain(reg, NotificationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				NotificationsTotal = v
			}
		})
		registerDomain(reg, BillAmountCollected, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BillAmountCollected = v
			}
		})
		registerDomain(reg, LowStockRecords, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				LowStockRecords = v
			}
		})
	})
}

func registerDomain(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
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
