package harmonica

import "github.com/prometheus/client_golang/prometheus"

// Lookup sources reported by the resource_lookups counter.
const (
	sourcePreExisting = "pre_existing"
	sourceCache       = "cache"
	sourceRemote      = "remote"
)

var (
	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harmonica",
			Name:      "fetches_total",
			Help:      "Remote fetches by model and result.",
		},
		[]string{"model", "result"},
	)

	fetchBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harmonica",
			Name:      "fetch_bytes_total",
			Help:      "Bytes read from remote endpoints.",
		},
		[]string{"model"},
	)

	resourceLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harmonica",
			Name:      "resource_lookups_total",
			Help:      "Resource resolutions by where the file was found.",
		},
		[]string{"model", "source"},
	)

	datasetsOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harmonica",
			Name:      "datasets_opened_total",
			Help:      "Resource groups opened as datasets.",
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(
		fetchesTotal,
		fetchBytesTotal,
		resourceLookupsTotal,
		datasetsOpenedTotal,
	)
}

func observeFetch(model string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	fetchesTotal.With(prometheus.Labels{"model": model, "result": result}).Inc()
}

func observeLookup(model, source string) {
	resourceLookupsTotal.With(prometheus.Labels{"model": model, "source": source}).Inc()
}
