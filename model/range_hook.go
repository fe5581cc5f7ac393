// Copyright 2023 StreamNative, Inc.
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

package model

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// ParseRange parses a range written as "start:end".
func ParseRange(s string) (Range, error) {
	startStr, endStr, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		return Range{}, errors.Errorf("invalid range '%s', expected 'start:end'", s)
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil {
		return Range{}, errors.Wrapf(err, "invalid range start in '%s'", s)
	}
	end, err := strconv.ParseInt(strings.TrimSpace(endStr), 10, 64)
	if err != nil {
		return Range{}, errors.Wrapf(err, "invalid range end in '%s'", s)
	}
	return Range{Start: start, End: end}, nil
}

// RangeViperHook lets a Range be given in the compact "start:end" form, which
// is handy for environment overrides.
func RangeViperHook() mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeOf(Range{}) {
			return data, nil
		}

		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		return ParseRange(s)
	}
}
