/*
 * Copyright (C) 2021 IBM, Inc.
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

package config

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// Options holds the command line / environment facing settings.
type Options struct {
	Parameters string
	Query      string
	Health     Health
	Profile    Profile
	Metrics    Metrics
}

type Health struct {
	Address string
	Port    string
}

type Profile struct {
	Port int
}

type Metrics struct {
	Port int
}

// dataset kinds
const (
	DatasetPrefixes = "prefixes"
	DatasetGeoIP    = "geoip"
)

// address families for the prefixes dataset
const (
	FamilyIPv4 = "v4"
	FamilyIPv6 = "v6"
)

// Parameters is the JSON payload of the --parameters flag: which dataset to
// compile and how to shape the trie.
type Parameters struct {
	Dataset   Dataset `json:"dataset"`
	Bits      int     `json:"bits"`
	Aggregate bool    `json:"aggregate"`
}

type Dataset struct {
	Type     string   `json:"type"`
	Prefixes Prefixes `json:"prefixes,omitempty"`
	GeoIP    GeoIP    `json:"geoip,omitempty"`
}

// Prefixes is a plain list file: one "cidr value" pair per line.
type Prefixes struct {
	File   string `json:"file"`
	Family string `json:"family,omitempty"`
}

// GeoIP is a GeoLite2-Country style CSV pair.
type GeoIP struct {
	BlocksFile    string `json:"blocksFile"`
	LocationsFile string `json:"locationsFile"`
}

// ParseParameters unmarshals the parameters JSON and applies defaults.
func ParseParameters(opts *Options) (Parameters, error) {
	logrus.Debugf("config.Options.Parameters = %v ", opts.Parameters)

	params := Parameters{Bits: 8}
	if opts.Parameters == "" {
		return params, fmt.Errorf("no parameters given")
	}
	var json = jsoniter.ConfigCompatibleWithStandardLibrary
	if err := json.Unmarshal([]byte(opts.Parameters), &params); err != nil {
		return params, fmt.Errorf("reading parameters: %w", err)
	}
	if params.Bits == 0 {
		params.Bits = 8
	}
	if params.Dataset.Prefixes.Family == "" {
		params.Dataset.Prefixes.Family = FamilyIPv4
	}

	switch params.Dataset.Type {
	case DatasetPrefixes:
		if params.Dataset.Prefixes.File == "" {
			return params, fmt.Errorf("dataset.prefixes.file is required")
		}
		if f := params.Dataset.Prefixes.Family; f != FamilyIPv4 && f != FamilyIPv6 {
			return params, fmt.Errorf("unknown address family %q", f)
		}
	case DatasetGeoIP:
		if params.Dataset.GeoIP.BlocksFile == "" || params.Dataset.GeoIP.LocationsFile == "" {
			return params, fmt.Errorf("dataset.geoip needs blocksFile and locationsFile")
		}
	default:
		return params, fmt.Errorf("unknown dataset type %q", params.Dataset.Type)
	}

	logrus.Debugf("params = %v ", params)
	return params, nil
}
