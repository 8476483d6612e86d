// Copyright 2018-2023 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package cfg decodes the free-form configuration blocks the Gateway hands
// the core (database DSNs, embedder settings) into typed structs.
package cfg

import (
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Defaulter is implemented by config structs that need to fill in zero
// values before validation runs.
type Defaulter interface {
	ApplyDefaults()
}

var validate = validator.New()

// Decode decodes m into out via mapstructure, applies out's defaults if it
// implements Defaulter, then validates out's `validate` struct tags.
func Decode(m map[string]any, out any) error {
	if err := mapstructure.Decode(m, out); err != nil {
		return err
	}
	if d, ok := out.(Defaulter); ok {
		d.ApplyDefaults()
	}
	return validate.Struct(out)
}
