// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/frost/pkg/freeze"
	"github.com/AleutianAI/frost/pkg/freeze/codec"
	"github.com/AleutianAI/frost/pkg/snapshot"
	"github.com/AleutianAI/frost/pkg/validation"
)

const (
	contentTypeCBOR = "application/cbor"
	contentTypeJSON = "application/json"
	contentTypeYAML = "application/yaml"
)

// snapshotKey strips the leading slash gin leaves on a catch-all param.
func snapshotKey(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("key"), "/")
}

// fail writes err as a JSON error with a status derived from its kind.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, snapshot.ErrEmptyKey), errors.Is(err, validation.ErrInvalidKey):
		status = http.StatusBadRequest
	case errors.As(err, &maxErr):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, codec.ErrMalformed), errors.Is(err, codec.ErrUnknownType),
		errors.Is(err, freeze.ErrUnsupported), errors.Is(err, freeze.ErrMaxDepth),
		errors.Is(err, freeze.ErrCycle), errors.Is(err, errBadBody):
		status = http.StatusUnprocessableEntity
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

var errBadBody = errors.New("unparseable body")

func listKeys(store *snapshot.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := store.Keys(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		if keys == nil {
			keys = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"keys": keys})
	}
}

func getSnapshot(store *snapshot.Store, opts []freeze.Option) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := snapshotKey(c)

		format := c.Query("format")
		if format == "" && c.GetHeader("Accept") == contentTypeCBOR {
			format = "cbor"
		}

		if format == "cbor" {
			data, err := store.Raw(ctx, key)
			if err != nil {
				fail(c, err)
				return
			}
			c.Data(http.StatusOK, contentTypeCBOR, data)
			return
		}

		frozen, err := store.Get(ctx, key, opts...)
		if err != nil {
			fail(c, err)
			return
		}

		var (
			body        []byte
			contentType string
		)
		switch format {
		case "", "json":
			body, err = json.Marshal(frozen)
			contentType = contentTypeJSON
		case "yaml":
			body, err = yaml.Marshal(frozen)
			contentType = contentTypeYAML
		default:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown format " + format})
			return
		}
		if err != nil {
			fail(c, err)
			return
		}
		c.Data(http.StatusOK, contentType, body)
	}
}

func putSnapshot(store *snapshot.Store, f *freeze.Freezer, opts []freeze.Option, maxBody int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := snapshotKey(c)

		data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBody))
		if err != nil {
			fail(c, err)
			return
		}

		var frozen any
		mediaType, _, _ := mime.ParseMediaType(c.ContentType())
		if mediaType == contentTypeCBOR {
			frozen, err = codec.Unmarshal(data, opts...)
		} else {
			var doc any
			if uerr := yaml.Unmarshal(data, &doc); uerr != nil {
				fail(c, errors.Join(errBadBody, uerr))
				return
			}
			frozen, err = f.Freeze(ctx, doc)
		}
		if err != nil {
			fail(c, err)
			return
		}

		if err := store.Put(ctx, key, frozen); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"key": key})
	}
}

func deleteSnapshot(store *snapshot.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Delete(c.Request.Context(), snapshotKey(c)); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
