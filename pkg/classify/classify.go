/*
 * Copyright (C) 2022 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package classify compiles the configured dataset into an lpm table and
// answers address classification queries, either one-shot or as a
// line-oriented loop.
package classify

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/flatrie/flatrie/pkg/cidr"
	"github.com/flatrie/flatrie/pkg/config"
	"github.com/flatrie/flatrie/pkg/geoip"
	"github.com/flatrie/flatrie/pkg/lpm"
	"github.com/flatrie/flatrie/pkg/operational"
	"github.com/flatrie/flatrie/pkg/utils"
)

var log = logrus.WithField("component", "classify")

// NoMatch is printed for addresses no registered prefix covers.
const NoMatch = "-"

var (
	buildSeconds = operational.NewGauge(prometheus.GaugeOpts{
		Name: "build_seconds",
		Help: "Wall time of the last dataset compilation",
	})
	trieNodes = operational.NewGauge(prometheus.GaugeOpts{
		Name: "trie_nodes",
		Help: "Nodes allocated by the build-time trie",
	})
	flatEntries = operational.NewGauge(prometheus.GaugeOpts{
		Name: "flat_entries",
		Help: "Entries laid out in the compiled table",
	})
	flatPages = operational.NewGauge(prometheus.GaugeOpts{
		Name: "flat_pages",
		Help: "Arena pages held by the compiled table",
	})
	queriesTotal = operational.NewCounterVec(prometheus.CounterOpts{
		Name: "queries_total",
		Help: "Classification queries by result",
	}, []string{"result"})
)

// Engine answers classification queries against a compiled dataset.
type Engine struct {
	classify func(addr string) (string, bool, error)
}

// NewEngine compiles the dataset described by params. Construction is
// single-threaded; the returned engine serves concurrent readers.
func NewEngine(params *config.Parameters) (*Engine, error) {
	switch params.Dataset.Type {
	case config.DatasetGeoIP:
		return newGeoIPEngine(params)
	case config.DatasetPrefixes:
		if params.Dataset.Prefixes.Family == config.FamilyIPv6 {
			return newPrefixEngine(params, cidr.ParsePrefix128, cidr.ParseAddr128)
		}
		return newPrefixEngine(params, cidr.ParsePrefix32, cidr.ParseAddr32)
	default:
		return nil, fmt.Errorf("unknown dataset type %q", params.Dataset.Type)
	}
}

func newGeoIPEngine(params *config.Parameters) (*Engine, error) {
	if params.Aggregate {
		return nil, fmt.Errorf("aggregation is not supported for the geoip dataset")
	}
	var db *geoip.DB
	err := operational.TimeOperation(buildSeconds, func() error {
		var err error
		db, err = geoip.LoadCountry(params.Dataset.GeoIP.BlocksFile, params.Dataset.GeoIP.LocationsFile, params.Bits)
		return err
	})
	if err != nil {
		return nil, err
	}
	flatEntries.Set(float64(db.Flat().Entries()))
	flatPages.Set(float64(db.Flat().Pages()))

	return &Engine{classify: func(addr string) (string, bool, error) {
		key, err := cidr.ParseAddr32(addr)
		if err != nil {
			return "", false, err
		}
		_, label, ok := db.Lookup(key)
		return label, ok, nil
	}}, nil
}

type prefixEntry[K lpm.Key[K]] struct {
	key    K
	length int
	label  string
}

func newPrefixEngine[K lpm.Key[K]](
	params *config.Parameters,
	parsePrefix func(string) (K, int, error),
	parseAddr func(string) (K, error),
) (*Engine, error) {
	entries, err := loadPrefixList(params.Dataset.Prefixes.File, parsePrefix)
	if err != nil {
		return nil, err
	}

	if params.Aggregate {
		return buildAggregate(params.Bits, entries, parseAddr)
	}
	return buildWinner(params.Bits, entries, parseAddr)
}

func buildWinner[K lpm.Key[K]](
	bits int,
	entries []prefixEntry[K],
	parseAddr func(string) (K, error),
) (*Engine, error) {
	// the compiled table is published through a Handle so a future dataset
	// refresh can swap it under concurrent readers
	handle := &lpm.Handle[K, string]{}
	err := operational.TimeOperation(buildSeconds, func() error {
		return handle.Rebuild(bits, func(trie *lpm.PrefixTrie[K, string]) error {
			if err := insertEntries(trie, entries); err != nil {
				return err
			}
			trieNodes.Set(float64(trie.Nodes()))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	flat := handle.Load()
	flatEntries.Set(float64(flat.Entries()))
	flatPages.Set(float64(flat.Pages()))
	log.WithFields(logrus.Fields{
		"prefixes": len(entries),
		"entries":  flat.Entries(),
		"pages":    flat.Pages(),
	}).Info("prefix dataset compiled")

	return &Engine{classify: func(addr string) (string, bool, error) {
		key, err := parseAddr(addr)
		if err != nil {
			return "", false, err
		}
		label, ok, err := handle.Load().Query(key)
		return label, ok, err
	}}, nil
}

func buildAggregate[K lpm.Key[K]](
	bits int,
	entries []prefixEntry[K],
	parseAddr func(string) (K, error),
) (*Engine, error) {
	multi, err := lpm.NewMultiTrie[K, string](bits)
	if err != nil {
		return nil, err
	}
	err = operational.TimeOperation(buildSeconds, func() error {
		return insertEntries(multi, entries)
	})
	if err != nil {
		return nil, err
	}
	trieNodes.Set(float64(multi.Nodes()))
	log.WithField("prefixes", len(entries)).Info("aggregating prefix dataset compiled")

	return &Engine{classify: func(addr string) (string, bool, error) {
		key, err := parseAddr(addr)
		if err != nil {
			return "", false, err
		}
		labels := multi.AggregateQuery(key)
		if len(labels) == 0 {
			return "", false, nil
		}
		return joinSorted(labels), true, nil
	}}, nil
}

type inserter[K lpm.Key[K]] interface {
	Insert(key K, length int, value string) error
}

func insertEntries[K lpm.Key[K]](dst inserter[K], entries []prefixEntry[K]) error {
	duplicates := 0
	for _, e := range entries {
		if err := dst.Insert(e.key, e.length, e.label); err != nil {
			if errors.Is(err, lpm.ErrDuplicateInsertion) {
				duplicates++
				continue
			}
			return fmt.Errorf("inserting /%d prefix: %w", e.length, err)
		}
	}
	if duplicates > 0 {
		log.Warnf("%d duplicate prefixes, kept the last label of each", duplicates)
	}
	return nil
}

// Classify returns the label of the most specific prefix covering addr, or
// in aggregation mode the comma-joined labels of every covering prefix.
func (e *Engine) Classify(addr string) (string, bool, error) {
	return e.classify(addr)
}

// Run reads one address per line from in and writes "addr<TAB>label" to
// out until in drains or the process is asked to exit. Unparseable lines
// are counted and logged, they do not abort the loop.
func (e *Engine) Run(in io.Reader, out io.Writer) error {
	exit := utils.ExitChannel()
	w := bufio.NewWriter(out)
	defer w.Flush()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case <-exit:
			return nil
		default:
		}
		addr := strings.TrimSpace(scanner.Text())
		if addr == "" {
			continue
		}
		label, ok, err := e.Classify(addr)
		switch {
		case err != nil:
			queriesTotal.WithLabelValues("error").Inc()
			log.WithError(err).Warnf("cannot classify %q", addr)
			continue
		case ok:
			queriesTotal.WithLabelValues("hit").Inc()
		default:
			queriesTotal.WithLabelValues("miss").Inc()
			label = NoMatch
		}
		fmt.Fprintf(w, "%s\t%s\n", addr, label)
	}
	return scanner.Err()
}
