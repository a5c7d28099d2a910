// Package models defines the core data types shared across the index.
package models

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strconv"
	"strings"
)

// Document is one indexable unit of the vault. Path is the stable unique key.
type Document struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Extension    string `json:"extension"`
	ModifiedTime int64  `json:"modified_time"` // unix nanoseconds
	Size         int64  `json:"size"`
}

// DocumentFromPath builds a minimal document descriptor from a path alone.
// Used when restoring from a persisted snapshot, where only the stable keys
// are available and file stats have not been re-read.
func DocumentFromPath(path string) Document {
	base := filepath.Base(path)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	return Document{
		Path:      path,
		Name:      strings.TrimSuffix(base, filepath.Ext(base)),
		Extension: ext,
	}
}

// HeadingInfo is the position-independent part of a heading: what the vault
// reports for a document, before ordinals are assigned.
type HeadingInfo struct {
	Text  string `json:"text"`
	Level int    `json:"level"`
	Line  int    `json:"line"`
}

// Heading is a sub-document searchable unit, identified by owning path plus
// 0-based ordinal within that document.
type Heading struct {
	Path    string `json:"path"`
	Ordinal int    `json:"ordinal"`
	Text    string `json:"text"`
	Level   int    `json:"level"`
	Line    int    `json:"line"`
}

// Key returns the composite stable key "path::ordinal".
func (h Heading) Key() string {
	return HeadingKey(h.Path, h.Ordinal)
}

// HeadingKey builds the composite stable key for a heading.
func HeadingKey(path string, ordinal int) string {
	return path + "::" + strconv.Itoa(ordinal)
}

// ParseHeadingKey splits a composite heading key into path and ordinal.
func ParseHeadingKey(key string) (path string, ordinal int, err error) {
	i := strings.LastIndex(key, "::")
	if i < 0 {
		return "", 0, fmt.Errorf("malformed heading key: %q", key)
	}
	ordinal, err = strconv.Atoi(key[i+2:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed heading key: %q", key)
	}
	return key[:i], ordinal, nil
}

// HeadingsFromInfo assigns ordinals to a document's heading list.
func HeadingsFromInfo(path string, infos []HeadingInfo) []Heading {
	out := make([]Heading, len(infos))
	for i, info := range infos {
		out[i] = Heading{Path: path, Ordinal: i, Text: info.Text, Level: info.Level, Line: info.Line}
	}
	return out
}

// InfoFromHeadings strips ordinals back off, for journal payloads.
func InfoFromHeadings(headings []Heading) []HeadingInfo {
	out := make([]HeadingInfo, len(headings))
	for i, h := range headings {
		out[i] = HeadingInfo{Text: h.Text, Level: h.Level, Line: h.Line}
	}
	return out
}

// Command is a lightweight entry from the host's action registry.
type Command struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Signature computes the structural signature of a document: extension plus
// the ordered heading (text, level) list. Two documents with equal signatures
// produce identical index entries, so a signature-preserving change never
// needs an engine re-index.
func Signature(extension string, headings []HeadingInfo) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(extension))
	for _, hd := range headings {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(hd.Text))
		_, _ = h.Write([]byte{0, byte(hd.Level)})
	}
	return h.Sum64()
}
