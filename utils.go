package main

import (
	"time"

	"github.com/atotto/clipboard"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"orgterm/internal/hierarchy"
)

var nowFunc = time.Now

// copyTree puts the stored JSON shape of tree on the system clipboard.
func copyTree(tree []hierarchy.CompactNode) error {
	raw, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode hierarchy")
	}
	return errors.Wrap(clipboard.WriteAll(string(raw)), "copy to clipboard")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
