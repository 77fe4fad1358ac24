// SPDX-FileCopyrightText: 2024 Starblitz Studios
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.Config{
	IndentionStep:                 0,
	MarshalFloatWith6Digits:       true,
	EscapeHTML:                    false,
	SortMapKeys:                   true,
	UseNumber:                     false,
	DisallowUnknownFields:         false,
	TagKey:                        "json",
	OnlyTaggedField:               false,
	ValidateJsonRawMessage:        false,
	ObjectFieldMustBeSimpleString: true,
	CaseSensitive:                 true,
}.Froze()
