package metrics

import "github.com/prometheus/client_golang/prometheus"

// InboxMetrics exposes counters/histograms for ingest, AI replies and outbound sends.
type InboxMetrics struct {
	ingestTotal       *prometheus.CounterVec
	webhookLatency    *prometheus.HistogramVec
	aiRepliesTotal    *prometheus.CounterVec
	aiGenerateLatency *prometheus.HistogramVec
	dispatchTotal     *prometheus.CounterVec
	quotaDenied       *prometheus.CounterVec
}

func NewInboxMetrics(reg prometheus.Registerer) *InboxMetrics {
	m := &InboxMetrics{
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Inbound channel messages by outcome",
		}, []string{"channel", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inbox",
			Subsystem: "ingest",
			Name:      "latency_seconds",
			Help:      "Latency of inbound message ingestion",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
		aiRepliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Subsystem: "ai",
			Name:      "replies_total",
			Help:      "AI reply jobs by final status and stage",
		}, []string{"provider", "status", "stage"}),
		aiGenerateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inbox",
			Subsystem: "ai",
			Name:      "generate_latency_seconds",
			Help:      "Latency of LLM completions",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"provider"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Subsystem: "outbound",
			Name:      "sends_total",
			Help:      "Outbound channel sends by sender and status",
		}, []string{"channel", "sender", "status"}),
		quotaDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Subsystem: "quota",
			Name:      "denied_total",
			Help:      "New conversations denied by the dialog quota",
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.ingestTotal, m.webhookLatency, m.aiRepliesTotal, m.aiGenerateLatency, m.dispatchTotal, m.quotaDenied)
	return m
}

func (m *InboxMetrics) ObserveIngest(channel, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(channel, outcome).Inc()
	m.webhookLatency.WithLabelValues(channel).Observe(seconds)
}

// ObserveAIReply records the terminal state of a reply job. stage is the
// step that ended it ("persist" for a successful reply).
func (m *InboxMetrics) ObserveAIReply(provider, status, stage string) {
	if m == nil {
		return
	}
	m.aiRepliesTotal.WithLabelValues(provider, status, stage).Inc()
}

func (m *InboxMetrics) ObserveAIGenerate(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.aiGenerateLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *InboxMetrics) ObserveDispatch(channel, sender, status string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(channel, sender, status).Inc()
}

func (m *InboxMetrics) ObserveQuotaDenied(channel string) {
	if m == nil {
		return
	}
	m.quotaDenied.WithLabelValues(channel).Inc()
}
