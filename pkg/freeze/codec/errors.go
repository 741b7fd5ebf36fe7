// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codec

import "errors"

var (
	// ErrUnknownType is returned by Unmarshal when an encoded object names a
	// frozen type that is not in the registry. Register the hot type first.
	ErrUnknownType = errors.New("unknown frozen type")

	// ErrMalformed is returned for input that decodes as CBOR but is not a
	// frozen graph produced by Marshal.
	ErrMalformed = errors.New("malformed frozen graph")
)
