// Copyright 2026 The Kestrel Authors.
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

// Package fbcon implements the graphical debug console: a grid of
// character cells laid over a framebuffer.
//
// Glyphs are not rasterized. The console tracks which character occupies
// each cell and reports damaged pixel rectangles to an optional Display.
package fbcon

import (
	"strings"
	"sync"
)

const (
	// CellWidth and CellHeight are the pixel dimensions of one character.
	CellWidth  = 8
	CellHeight = 16
)

// Display receives damage notifications for the pixels backing the console.
type Display interface {
	// Sync marks the w×h pixel rectangle at (x, y) as changed.
	Sync(x, y, w, h int)

	// SyncScreen marks the whole screen as changed.
	SyncScreen()
}

// Console is a text console of Cols()×Rows() cells.
type Console struct {
	display Display

	mu sync.Mutex

	// The fields below are protected by mu.
	w, h     int
	x, y     int
	cells    [][]byte
	scrolled uint64
}

// New returns a console for a width×height pixel framebuffer. display may
// be nil.
func New(width, height int, display Display) *Console {
	c := &Console{
		display: display,
		w:       width / CellWidth,
		h:       height / CellHeight,
	}
	c.cells = make([][]byte, c.h)
	for i := range c.cells {
		c.cells[i] = make([]byte, c.w)
	}
	return c
}

// Cols returns the number of character columns.
func (c *Console) Cols() int {
	return c.w
}

// Rows returns the number of character rows.
func (c *Console) Rows() int {
	return c.h
}

// Write implements io.Writer.Write. Lines wrap at the right edge; when the
// cursor passes the last row, the console scrolls up by whole rows.
func (c *Console) Write(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == 0 || c.h == 0 {
		return len(buf), nil
	}
	for _, b := range buf {
		if c.x >= c.w || b == '\n' {
			c.x = 0
			c.y++
		}
		if c.y >= c.h {
			newY := c.h - 1
			c.scrollLocked(c.y - newY)
			if c.display != nil {
				c.display.SyncScreen()
			}
			c.y = newY
		}
		if b != '\n' {
			c.cells[c.y][c.x] = b
			if c.display != nil {
				c.display.Sync(c.x*CellWidth, c.y*CellHeight, CellWidth, CellHeight)
			}
			c.x++
		}
	}
	return len(buf), nil
}

// scrollLocked moves every row up by n and clears the rows uncovered at
// the bottom.
//
// Preconditions: c.mu must be locked.
func (c *Console) scrollLocked(n int) {
	n = min(n, c.h)
	rows := make([][]byte, 0, c.h)
	rows = append(rows, c.cells[n:]...)
	rows = append(rows, c.cells[:n]...)
	for _, row := range rows[c.h-n:] {
		clear(row)
	}
	c.cells = rows
	c.scrolled += uint64(n)
}

// Cursor returns the column and row at which the next character is placed.
func (c *Console) Cursor() (x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.x, c.y
}

// Scrolled returns the total number of rows scrolled off the top.
func (c *Console) Scrolled() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scrolled
}

// Lines returns the text of every row, without trailing blank cells.
func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines := make([]string, len(c.cells))
	for i, row := range c.cells {
		lines[i] = strings.TrimRight(string(row), "\x00")
	}
	return lines
}
