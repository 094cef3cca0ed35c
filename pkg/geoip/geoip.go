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

// Package geoip loads a GeoLite2-Country style CSV dataset (a blocks file
// mapping CIDR networks to geoname ids, and a locations file mapping ids to
// country labels) into a compiled lpm table. The dataset is read from local
// files supplied by the operator.
package geoip

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/flatrie/flatrie/pkg/cidr"
	"github.com/flatrie/flatrie/pkg/lpm"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "geoip")

// column layout of the GeoLite2-Country CSV files
const (
	blockColNetwork      = 0
	blockColGeonameID    = 1
	blockColRegisteredID = 2

	locColGeonameID = 0
	locColContinent = 2
	locColCountry   = 4
)

// DB answers country classification queries for IPv4 addresses.
type DB struct {
	flat   *lpm.Flat[lpm.Key32, int]
	labels map[int]string
}

type blockRecord struct {
	key    lpm.Key32
	length int
	id     int
}

// LoadCountry reads the blocks and locations CSV files, sorts the networks
// by prefix length and compiles them into an immutable lookup table.
func LoadCountry(blocksPath, locationsPath string, bits int) (*DB, error) {
	locFile, err := os.Open(locationsPath)
	if err != nil {
		return nil, fmt.Errorf("opening locations file: %w", err)
	}
	defer locFile.Close()
	labels, err := loadLocations(locFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", locationsPath, err)
	}

	blocksFile, err := os.Open(blocksPath)
	if err != nil {
		return nil, fmt.Errorf("opening blocks file: %w", err)
	}
	defer blocksFile.Close()
	records, err := loadBlocks(blocksFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", blocksPath, err)
	}

	flat, err := compile(records, bits)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"blocks":    len(records),
		"countries": len(labels),
		"entries":   flat.Entries(),
		"pages":     flat.Pages(),
	}).Info("geoip dataset compiled")

	return &DB{flat: flat, labels: labels}, nil
}

// Lookup returns the geoname id and country label of the most specific
// block covering key.
func (db *DB) Lookup(key lpm.Key32) (int, string, bool) {
	id, ok, err := db.flat.Query(key)
	if err != nil || !ok {
		return 0, "", false
	}
	return id, db.labels[id], true
}

// Flat exposes the compiled table, e.g. for publication through a Handle.
func (db *DB) Flat() *lpm.Flat[lpm.Key32, int] { return db.flat }

// Label resolves a geoname id to its "ContinentCountry" label.
func (db *DB) Label(id int) string { return db.labels[id] }

func loadLocations(r io.Reader) (map[int]string, error) {
	labels := map[int]string{}
	err := readCSV(r, func(row []string) error {
		if len(row) <= locColCountry {
			return fmt.Errorf("locations row has %d columns", len(row))
		}
		id, err := strconv.Atoi(row[locColGeonameID])
		if err != nil {
			return fmt.Errorf("geoname_id %q: %w", row[locColGeonameID], err)
		}
		labels[id] = row[locColContinent] + row[locColCountry]
		return nil
	})
	return labels, err
}

func loadBlocks(r io.Reader) ([]blockRecord, error) {
	var records []blockRecord
	skipped := 0
	err := readCSV(r, func(row []string) error {
		if len(row) <= blockColRegisteredID {
			return fmt.Errorf("blocks row has %d columns", len(row))
		}
		idCol := row[blockColGeonameID]
		if idCol == "" {
			// some networks only carry the registered country
			idCol = row[blockColRegisteredID]
		}
		if idCol == "" {
			skipped++
			return nil
		}
		id, err := strconv.Atoi(idCol)
		if err != nil {
			return fmt.Errorf("geoname_id %q: %w", idCol, err)
		}
		key, length, err := cidr.ParsePrefix32(row[blockColNetwork])
		if err != nil {
			return err
		}
		records = append(records, blockRecord{key: key, length: length, id: id})
		return nil
	})
	if skipped > 0 {
		log.Warnf("skipped %d blocks without any country id", skipped)
	}
	return records, err
}

// compile inserts the records in non-decreasing prefix length order and
// flattens the result. Duplicate networks keep the last value and are
// counted, not fatal.
func compile(records []blockRecord, bits int) (*lpm.Flat[lpm.Key32, int], error) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].length < records[j].length })

	trie, err := lpm.NewPrefixTrie[lpm.Key32, int](bits)
	if err != nil {
		return nil, err
	}
	duplicates := 0
	for _, rec := range records {
		if err := trie.Insert(rec.key, rec.length, rec.id); err != nil {
			if errors.Is(err, lpm.ErrDuplicateInsertion) {
				duplicates++
				continue
			}
			return nil, fmt.Errorf("inserting %s/%d: %w", cidr.FormatKey32(rec.key), rec.length, err)
		}
	}
	if duplicates > 0 {
		log.Warnf("%d duplicate networks, kept the last value of each", duplicates)
	}

	flat, err := lpm.NewFlat[lpm.Key32, int](bits)
	if err != nil {
		return nil, err
	}
	if err := flat.Build(trie); err != nil {
		return nil, err
	}
	return flat, nil
}

// readCSV streams rows to the reader function, skipping the header line.
func readCSV(r io.Reader, reader func([]string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header := true
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if header {
			header = false
			continue
		}
		if err := reader(row); err != nil {
			return err
		}
	}
}
