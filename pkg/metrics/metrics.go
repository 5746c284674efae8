package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics holds application metrics
type Metrics struct {
	mu sync.RWMutex

	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64

	EndpointRequests map[string]int64
	EndpointErrors   map[string]int64
	EndpointLatency  map[string][]time.Duration

	ServiceCalls   map[string]int64
	ServiceErrors  map[string]int64
	ServiceLatency map[string][]time.Duration

	CircuitBreakerState    map[string]string
	CircuitBreakerFailures map[string]int64

	// Routing decision counters keyed by outcome (agent, ai, missed, dropped)
	RoutingOutcomes map[string]int64

	// Aging job counters
	AgingRuns       int64
	AgingScoresAged int64
	AgingQueueRows  int64

	StartTime time.Time
}

var globalMetrics = &Metrics{
	EndpointRequests:       make(map[string]int64),
	EndpointErrors:         make(map[string]int64),
	EndpointLatency:        make(map[string][]time.Duration),
	ServiceCalls:           make(map[string]int64),
	ServiceErrors:          make(map[string]int64),
	ServiceLatency:         make(map[string][]time.Duration),
	CircuitBreakerState:    make(map[string]string),
	CircuitBreakerFailures: make(map[string]int64),
	RoutingOutcomes:        make(map[string]int64),
	StartTime:              time.Now(),
}

// RecordRequest records a request
func RecordRequest(endpoint string, success bool, latency time.Duration) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.TotalRequests++
	if success {
		globalMetrics.SuccessfulRequests++
	} else {
		globalMetrics.FailedRequests++
		globalMetrics.EndpointErrors[endpoint]++
	}

	globalMetrics.EndpointRequests[endpoint]++

	// Keep only last 100 latency measurements per endpoint
	if len(globalMetrics.EndpointLatency[endpoint]) >= 100 {
		globalMetrics.EndpointLatency[endpoint] = globalMetrics.EndpointLatency[endpoint][1:]
	}
	globalMetrics.EndpointLatency[endpoint] = append(globalMetrics.EndpointLatency[endpoint], latency)
}

// RecordServiceCall records a call to an external collaborator
func RecordServiceCall(service string, success bool, latency time.Duration) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.ServiceCalls[service]++
	if !success {
		globalMetrics.ServiceErrors[service]++
	}

	if len(globalMetrics.ServiceLatency[service]) >= 100 {
		globalMetrics.ServiceLatency[service] = globalMetrics.ServiceLatency[service][1:]
	}
	globalMetrics.ServiceLatency[service] = append(globalMetrics.ServiceLatency[service], latency)
}

// UpdateCircuitBreaker updates circuit breaker metrics
func UpdateCircuitBreaker(service, state string, failures int64) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.CircuitBreakerState[service] = state
	globalMetrics.CircuitBreakerFailures[service] = failures
}

// RecordRoutingOutcome counts an inbound routing decision
func RecordRoutingOutcome(outcome string) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.RoutingOutcomes[outcome]++
}

// RecordAgingRun records a completed score aging run
func RecordAgingRun(scoresAged, queueRows int64) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()
	globalMetrics.AgingRuns++
	globalMetrics.AgingScoresAged += scoresAged
	globalMetrics.AgingQueueRows += queueRows
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	endpointAvgLatency := make(map[string]float64)
	for endpoint, latencies := range globalMetrics.EndpointLatency {
		if len(latencies) > 0 {
			var sum time.Duration
			for _, l := range latencies {
				sum += l
			}
			endpointAvgLatency[endpoint] = sum.Seconds() / float64(len(latencies))
		}
	}

	serviceAvgLatency := make(map[string]float64)
	for service, latencies := range globalMetrics.ServiceLatency {
		if len(latencies) > 0 {
			var sum time.Duration
			for _, l := range latencies {
				sum += l
			}
			serviceAvgLatency[service] = sum.Seconds() / float64(len(latencies))
		}
	}

	uptime := time.Since(globalMetrics.StartTime)

	routing := make(map[string]int64, len(globalMetrics.RoutingOutcomes))
	for k, v := range globalMetrics.RoutingOutcomes {
		routing[k] = v
	}

	return map[string]interface{}{
		"uptime_seconds": uptime.Seconds(),
		"requests": map[string]interface{}{
			"total":      globalMetrics.TotalRequests,
			"successful": globalMetrics.SuccessfulRequests,
			"failed":     globalMetrics.FailedRequests,
		},
		"endpoints": map[string]interface{}{
			"requests":            globalMetrics.EndpointRequests,
			"errors":              globalMetrics.EndpointErrors,
			"latency_avg_seconds": endpointAvgLatency,
		},
		"services": map[string]interface{}{
			"calls":               globalMetrics.ServiceCalls,
			"errors":              globalMetrics.ServiceErrors,
			"latency_avg_seconds": serviceAvgLatency,
		},
		"circuit_breakers": map[string]interface{}{
			"state":    globalMetrics.CircuitBreakerState,
			"failures": globalMetrics.CircuitBreakerFailures,
		},
		"routing": routing,
		"aging": map[string]interface{}{
			"runs":        globalMetrics.AgingRuns,
			"scores_aged": globalMetrics.AgingScoresAged,
			"queue_rows":  globalMetrics.AgingQueueRows,
		},
	}
}

// GetPrometheusMetrics returns metrics in Prometheus text format
func GetPrometheusMetrics() string {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP dialler_uptime_seconds Server uptime in seconds\n")
	b.WriteString("# TYPE dialler_uptime_seconds gauge\n")
	fmt.Fprintf(&b, "dialler_uptime_seconds %.2f\n", time.Since(globalMetrics.StartTime).Seconds())

	b.WriteString("# HELP dialler_requests_total Total number of requests\n")
	b.WriteString("# TYPE dialler_requests_total counter\n")
	fmt.Fprintf(&b, "dialler_requests_total{status=\"total\"} %d\n", globalMetrics.TotalRequests)
	fmt.Fprintf(&b, "dialler_requests_total{status=\"successful\"} %d\n", globalMetrics.SuccessfulRequests)
	fmt.Fprintf(&b, "dialler_requests_total{status=\"failed\"} %d\n", globalMetrics.FailedRequests)

	writeCounterMap(&b, "dialler_endpoint_requests_total", "Total requests per endpoint", "endpoint", globalMetrics.EndpointRequests)
	writeCounterMap(&b, "dialler_endpoint_errors_total", "Total errors per endpoint", "endpoint", globalMetrics.EndpointErrors)
	writeCounterMap(&b, "dialler_service_calls_total", "Total calls per external service", "service", globalMetrics.ServiceCalls)
	writeCounterMap(&b, "dialler_routing_outcomes_total", "Inbound routing decisions by outcome", "outcome", globalMetrics.RoutingOutcomes)

	b.WriteString("# HELP dialler_aging_runs_total Completed score aging runs\n")
	b.WriteString("# TYPE dialler_aging_runs_total counter\n")
	fmt.Fprintf(&b, "dialler_aging_runs_total %d\n", globalMetrics.AgingRuns)
	fmt.Fprintf(&b, "dialler_aging_scores_aged_total %d\n", globalMetrics.AgingScoresAged)
	fmt.Fprintf(&b, "dialler_aging_queue_rows_total %d\n", globalMetrics.AgingQueueRows)

	return b.String()
}

func writeCounterMap(b *strings.Builder, name, help, label string, values map[string]int64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", name, help, name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s=\"%s\"} %d\n", name, label, k, values[k])
	}
}
