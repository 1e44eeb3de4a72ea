// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// The mstatsd tool exposes every open container's Stats() over HTTP: the
// teacher's monitor.Server pattern (expvar + pprof under /debug) plus
// Prometheus gauges under /metrics. It is a downstream consumer of the
// core libraries, not part of them.
package main

import (
	"expvar"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/glog"
	"github.com/aristanetworks/fastcollection/mhash"
	"github.com/aristanetworks/fastcollection/mlist"
	"github.com/aristanetworks/fastcollection/mmap"
	"github.com/aristanetworks/fastcollection/monitor"
	"github.com/aristanetworks/fastcollection/mqueue"
	"github.com/aristanetworks/fastcollection/mset"
	"github.com/aristanetworks/fastcollection/mstack"
	"github.com/aristanetworks/fastcollection/mstat"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fileFlag       = flag.String("file", "", "path to the fastcollection backing file")
	listenFlag     = flag.String("listenaddr", ":8080", "address to serve /debug and /metrics on")
	containersFlag = flag.String("containers", "", "comma-separated type:name pairs, e.g. list:mylist,map:mymap")
	sampleFlag     = flag.Duration("sample-interval", 5*time.Second, "how often container gauges are refreshed")
)

// statter is the common shape every container's Stats() method has.
type statter interface {
	Stats() mstat.Snapshot
}

var gauges = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "fastcollection",
	Name:      "container",
	Help:      "Per-container activity counters and current size.",
}, []string{"kind", "name", "field"})

func main() {
	flag.Parse()
	if *fileFlag == "" || *containersFlag == "" {
		fmt.Fprintln(os.Stderr, "mstatsd: -file and -containers are required")
		os.Exit(2)
	}

	log := &glog.Glog{}
	seg, err := arena.Open(*fileFlag, arena.Options{Logger: log})
	if err != nil {
		log.Fatal("mstatsd: opening segment: ", err)
	}
	defer seg.Close()

	prometheus.MustRegister(gauges)

	for _, spec := range strings.Split(*containersFlag, ",") {
		kind, name, ok := strings.Cut(spec, ":")
		if !ok {
			log.Fatalf("mstatsd: invalid -containers entry %q, want type:name", spec)
		}
		s, err := openContainer(seg, kind, name, log)
		if err != nil {
			log.Fatalf("mstatsd: opening %s %q: %v", kind, name, err)
		}
		publishContainer(kind, name, s)
	}

	go sampleLoop(*sampleFlag)

	monitor.NewMonitorServer(*listenFlag).Run()
}

func openContainer(seg *arena.Segment, kind, name string, log *glog.Glog) (statter, error) {
	switch kind {
	case "list":
		return mlist.Open(seg, name, log)
	case "queue":
		return mqueue.Open(seg, name, log)
	case "stack":
		return mstack.Open(seg, name, log)
	case "map":
		return mmap.Open(seg, name, mhash.DefaultBucketCount, log)
	case "set":
		return mset.Open(seg, name, mhash.DefaultBucketCount, log)
	default:
		return nil, fmt.Errorf("unknown container type %q", kind)
	}
}

var published []publishedContainer

type publishedContainer struct {
	kind, name string
	s          statter
}

// publishContainer registers an expvar.Func under the teacher's monitor
// /debug/vars convention, and remembers the container so sampleLoop can
// refresh its Prometheus gauges.
func publishContainer(kind, name string, s statter) {
	key := kind + ":" + name
	expvar.Publish(key, expvar.Func(func() interface{} {
		return s.Stats().String()
	}))
	published = append(published, publishedContainer{kind: kind, name: name, s: s})
}

func sampleLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		for _, pc := range published {
			snap := pc.s.Stats()
			gauges.WithLabelValues(pc.kind, pc.name, "reads").Set(float64(snap.Reads))
			gauges.WithLabelValues(pc.kind, pc.name, "writes").Set(float64(snap.Writes))
			gauges.WithLabelValues(pc.kind, pc.name, "hits").Set(float64(snap.Hits))
			gauges.WithLabelValues(pc.kind, pc.name, "misses").Set(float64(snap.Misses))
			gauges.WithLabelValues(pc.kind, pc.name, "size").Set(float64(snap.Size))
		}
	}
}

func init() {
	http.Handle("/metrics", promhttp.Handler())
}
