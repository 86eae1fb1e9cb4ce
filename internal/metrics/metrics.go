// Package metrics declares the prometheus collectors of the bundle cache.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// ResultSuccess for success result label
	ResultSuccess = "success"
	// ResultErrored for errored result label
	ResultErrored = "errored"
	// ResultAborted for aborted result label
	ResultAborted = "aborted"
)

// RecordsWritten is a counter of the bundles registered in a cache, labelled
// by package.
var RecordsWritten = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bundlecache",
		Subsystem: "records",
		Name:      "written",

		Help: "Number of bundles written to the cache, labelled by package.",
	},
	[]string{"package"},
)

// Records is a gauge of the bundles currently recorded, labelled by package.
var Records = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "bundlecache",
		Subsystem: "records",
		Name:      "count",

		Help: "Number of bundles currently recorded in the cache, labelled by package.",
	},
	[]string{"package"},
)

// VerifyResults counts verifications labelled by level and result.
var VerifyResults = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bundlecache",
		Subsystem: "verify",
		Name:      "results",

		Help: "Number of cache file verifications, labelled by verify level and result.",
	},
	[]string{"level", "result"},
)

// ClearedRecords counts the records removed by clear operations, labelled by
// clear mode.
var ClearedRecords = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bundlecache",
		Subsystem: "clear",
		Name:      "records",

		Help: "Number of records removed by clear operations, labelled by clear mode.",
	},
	[]string{"mode"},
)

// DownloadTasks counts finished download tasks labelled by result.
var DownloadTasks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "bundlecache",
		Subsystem: "download",
		Name:      "tasks",

		Help: "Number of finished bundle download tasks, labelled by result.",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(
		RecordsWritten,
		Records,
		VerifyResults,
		ClearedRecords,
		DownloadTasks,
	)
}
